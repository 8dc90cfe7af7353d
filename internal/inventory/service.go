package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevel(ctx context.Context, productID int64) (StockLevel, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// Ledger applies credits through a TxRepository that is already inside a transaction.
type Ledger struct {
	tx  TxRepository
	now func() time.Time
}

// Credit increases on-hand stock of productID by qty and appends a movement.
func (l *Ledger) Credit(ctx context.Context, productID int64, qty float64, reason string) (Movement, error) {
	return credit(ctx, l.tx, l.now(), productID, qty, reason)
}

func credit(ctx context.Context, tx TxRepository, now time.Time, productID int64, qty float64, reason string) (Movement, error) {
	if productID <= 0 {
		return Movement{}, &StockError{ProductID: productID, Reason: "product id required"}
	}
	if qty <= 0 {
		return Movement{}, &StockError{ProductID: productID, Reason: "credit quantity must be positive"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Movement{}, &StockError{ProductID: productID, Reason: "reason required"}
	}
	onHand, err := tx.IncrementStock(ctx, productID, qty)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Movement{}, &StockError{ProductID: productID, Reason: "unknown product", Err: err}
		}
		return Movement{}, &StockError{ProductID: productID, Reason: "credit failed", Err: err}
	}
	m, err := tx.InsertMovement(ctx, Movement{
		ProductID: productID,
		Quantity:  qty,
		Kind:      MovementCredit,
		Reason:    reason,
		RefID:     uuid.New(),
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return Movement{}, &StockError{ProductID: productID, Reason: "record movement failed", Err: err}
	}
	m.OnHand = onHand
	return m, nil
}

// Service exposes the stock ledger to HTTP and other modules.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Credit runs a stand-alone credit in its own transaction.
func (s *Service) Credit(ctx context.Context, productID int64, qty float64, reason string) (Movement, error) {
	var out Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := credit(ctx, tx, s.now(), productID, qty, reason)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return out, nil
}

// StockLevel returns the current on-hand quantity.
func (s *Service) StockLevel(ctx context.Context, productID int64) (StockLevel, error) {
	if productID <= 0 {
		return StockLevel{}, ErrProductNotFound
	}
	return s.repo.GetStockLevel(ctx, productID)
}

// Movements lists the newest movements of a product.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, productID, limit)
}
