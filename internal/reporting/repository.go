package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/procurement"
)

const orderRowColumns = `id, number, supplier_id, status, expected_delivery_date, total_amount, created_at`

const ordersCreatedBetweenSQL = `SELECT ` + orderRowColumns + `
FROM purchase_orders
WHERE ($1::date IS NULL OR created_at::date >= $1)
  AND ($2::date IS NULL OR created_at::date <= $2)
ORDER BY id`

const openOrdersExpectedBeforeSQL = `SELECT ` + orderRowColumns + `
FROM purchase_orders
WHERE status NOT IN ('received', 'cancelled')
  AND expected_delivery_date < $1::date
ORDER BY expected_delivery_date, id`

const allOrdersSQL = `SELECT ` + orderRowColumns + ` FROM purchase_orders ORDER BY id`

const payablesDueBetweenSQL = `SELECT id, supplier_id, total_amount_due, amount_paid, balance_due, due_date, status
FROM accounts_payable
WHERE ($1::date IS NULL OR due_date >= $1)
  AND ($2::date IS NULL OR due_date <= $2)
ORDER BY due_date, id`

// Repository reads report rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// OrdersCreatedBetween returns orders created inside the window.
func (r *Repository) OrdersCreatedBetween(ctx context.Context, from, to *time.Time) ([]OrderRow, error) {
	return r.queryOrders(ctx, ordersCreatedBetweenSQL, from, to)
}

// OpenOrdersExpectedBefore returns undelivered orders expected before asOf.
func (r *Repository) OpenOrdersExpectedBefore(ctx context.Context, asOf time.Time) ([]OrderRow, error) {
	return r.queryOrders(ctx, openOrdersExpectedBeforeSQL, asOf)
}

// AllOrders returns every order header.
func (r *Repository) AllOrders(ctx context.Context) ([]OrderRow, error) {
	return r.queryOrders(ctx, allOrdersSQL)
}

// PayablesDueBetween returns payables due inside the window.
func (r *Repository) PayablesDueBetween(ctx context.Context, from, to *time.Time) ([]PayableRow, error) {
	rows, err := r.pool.Query(ctx, payablesDueBetweenSQL, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PayableRow, error) {
		var p PayableRow
		var status string
		err := row.Scan(&p.ID, &p.SupplierID, &p.TotalAmountDue, &p.AmountPaid, &p.BalanceDue, &p.DueDate, &status)
		p.Status = payables.Status(status)
		return p, err
	})
}

func (r *Repository) queryOrders(ctx context.Context, sql string, args ...any) ([]OrderRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderRow, error) {
		var o OrderRow
		var status string
		err := row.Scan(&o.ID, &o.Number, &o.SupplierID, &status, &o.ExpectedDeliveryDate, &o.TotalAmount, &o.CreatedAt)
		o.Status = procurement.POStatus(status)
		return o, err
	})
}
