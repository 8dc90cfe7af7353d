package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
)

type memoryRepo struct {
	stock     map[int64]float64
	movements []Movement
	nextID    int64
	failMove  error
}

type memoryTx struct {
	repo      *memoryRepo
	stock     map[int64]float64
	movements []Movement
}

func newMemoryRepo(products ...int64) *memoryRepo {
	repo := &memoryRepo{stock: make(map[int64]float64)}
	for _, id := range products {
		repo.stock[id] = 0
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, stock: make(map[int64]float64)}
	for k, v := range r.stock {
		tx.stock[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.stock = tx.stock
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryRepo) GetStockLevel(ctx context.Context, productID int64) (StockLevel, error) {
	qty, ok := r.stock[productID]
	if !ok {
		return StockLevel{}, ErrProductNotFound
	}
	return StockLevel{ProductID: productID, OnHand: qty}, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].ProductID == productID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (tx *memoryTx) IncrementStock(ctx context.Context, productID int64, qty float64) (float64, error) {
	cur, ok := tx.stock[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	tx.stock[productID] = cur + qty
	return cur + qty, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	if tx.repo.failMove != nil {
		return Movement{}, tx.repo.failMove
	}
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.movements = append(tx.movements, m)
	return m, nil
}

func TestCreditIncrementsStockAndRecordsMovement(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	m, err := svc.Credit(ctx, 1, 7, "approved receipt from purchase order")
	require.NoError(t, err)
	require.InDelta(t, 7.0, m.OnHand, 1e-9)
	require.Equal(t, MovementCredit, m.Kind)

	_, err = svc.Credit(ctx, 1, 2.5, "manual")
	require.NoError(t, err)

	level, err := svc.StockLevel(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 9.5, level.OnHand, 1e-9)

	moves, err := svc.Movements(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.Equal(t, "manual", moves[0].Reason)
}

func TestCreditUnknownProductIsStockError(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Credit(context.Background(), 42, 1, "x")
	require.Error(t, err)
	require.True(t, IsStockError(err))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreditRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo(1)
	svc := NewService(repo)

	_, err := svc.Credit(context.Background(), 1, 0, "x")
	require.True(t, IsStockError(err))
	require.InDelta(t, 0.0, repo.stock[1], 1e-9)
}

func TestCreditRollsBackWhenMovementFails(t *testing.T) {
	repo := newMemoryRepo(1)
	repo.failMove = errors.New("disk full")
	svc := NewService(repo)

	_, err := svc.Credit(context.Background(), 1, 3, "x")
	require.True(t, IsStockError(err))
	require.InDelta(t, 0.0, repo.stock[1], 1e-9)
	require.Empty(t, repo.movements)
}
