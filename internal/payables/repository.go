package payables

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LockPayable(ctx context.Context, id int64) (Payable, error)
	InsertPayable(ctx context.Context, p Payable) (Payable, error)
	UpdatePayable(ctx context.Context, p Payable) error
	DeletePayable(ctx context.Context, id int64) error
	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
}

// WithTx wraps callback in a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("payables repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetPayable loads one payable.
func (r *Repository) GetPayable(ctx context.Context, id int64) (Payable, error) {
	return scanPayable(r.pool.QueryRow(ctx, getPayableSQL, id))
}

// ListPayables returns payables matching filter ordered by due date. A zero
// limit returns every match.
func (r *Repository) ListPayables(ctx context.Context, filter ListFilter) ([]Payable, error) {
	var supplierID *int64
	if filter.SupplierID > 0 {
		supplierID = &filter.SupplierID
	}
	rows, err := r.pool.Query(ctx, listPayablesSQL,
		string(filter.Status), supplierID, filter.DueFrom, filter.DueTo, filter.UnpaidOnly, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payable
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPayments returns payment rows of a payable, oldest first.
func (r *Repository) ListPayments(ctx context.Context, payableID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, listPaymentsSQL, payableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		var kind string
		if err := rows.Scan(&p.ID, &p.PayableID, &p.Amount, &p.PaymentDate, &kind, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Type = PaymentType(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkOverdue flags open rows due before today in a single statement.
func (r *Repository) MarkOverdue(ctx context.Context, today time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, markOverdueSQL, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPayable(row pgx.Row) (Payable, error) {
	var p Payable
	var status string
	err := row.Scan(&p.ID, &p.Description, &p.SupplierID, &p.Category, &p.Notes, &p.TotalAmountDue, &p.AmountPaid,
		&p.BalanceDue, &p.DueDate, &status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payable{}, ErrPayableNotFound
		}
		return Payable{}, err
	}
	p.Status = Status(status)
	return p, nil
}
