package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
)

// TxRepository exposes transactional operations used by the ledger.
type TxRepository interface {
	IncrementStock(ctx context.Context, productID int64, qty float64) (float64, error)
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// Repository persists stock levels and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const getStockLevelSQL = `SELECT id, stock_quantity, updated_at FROM products WHERE id = $1`

// GetStockLevel returns the on-hand quantity for a product.
func (r *Repository) GetStockLevel(ctx context.Context, productID int64) (StockLevel, error) {
	var level StockLevel
	err := r.pool.QueryRow(ctx, getStockLevelSQL, productID).Scan(&level.ProductID, &level.OnHand, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrProductNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

const listMovementsSQL = `SELECT id, product_id, quantity, kind, reason, COALESCE(ref_id, '00000000-0000-0000-0000-000000000000'::uuid), created_at
FROM stock_movements
WHERE product_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

// ListMovements returns the newest movements of a product.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, listMovementsSQL, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Quantity, &kind, &m.Reason, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxLedger credits stock on a transaction owned by another module, so the
// credit commits or rolls back together with the caller's writes.
func NewTxLedger(tx pgx.Tx) *Ledger {
	return &Ledger{tx: &txRepository{tx: tx}, now: time.Now}
}

const incrementStockSQL = `UPDATE products
SET stock_quantity = stock_quantity + $2, updated_at = NOW()
WHERE id = $1
RETURNING stock_quantity`

func (r *txRepository) IncrementStock(ctx context.Context, productID int64, qty float64) (float64, error) {
	var onHand float64
	if err := r.tx.QueryRow(ctx, incrementStockSQL, productID, qty).Scan(&onHand); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("increment stock: %w", err)
	}
	return onHand, nil
}

const insertMovementSQL = `INSERT INTO stock_movements (product_id, quantity, kind, reason, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	var ref any
	if m.RefID != uuid.Nil {
		ref = m.RefID
	}
	if err := r.tx.QueryRow(ctx, insertMovementSQL, m.ProductID, m.Quantity, string(m.Kind), m.Reason, ref, m.CreatedAt).Scan(&m.ID); err != nil {
		return Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}
