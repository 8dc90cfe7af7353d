package payables

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const payableColumns = `id, description, supplier_id, category, notes, total_amount_due, amount_paid, balance_due, due_date, status, created_by, created_at, updated_at`

const getPayableSQL = `SELECT ` + payableColumns + ` FROM accounts_payable WHERE id = $1`

const lockPayableSQL = `SELECT ` + payableColumns + ` FROM accounts_payable WHERE id = $1 FOR UPDATE`

const listPayablesSQL = `SELECT ` + payableColumns + `
FROM accounts_payable
WHERE ($1::text = '' OR status = $1)
  AND ($2::bigint IS NULL OR supplier_id = $2)
  AND ($3::date IS NULL OR due_date >= $3)
  AND ($4::date IS NULL OR due_date <= $4)
  AND (NOT $5::boolean OR status <> 'paid')
ORDER BY due_date, id
LIMIT NULLIF($6::int, 0) OFFSET $7`

const insertPayableSQL = `INSERT INTO accounts_payable
    (description, supplier_id, category, notes, total_amount_due, amount_paid, balance_due, due_date, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`

const updatePayableSQL = `UPDATE accounts_payable
SET description = $2, supplier_id = $3, category = $4, notes = $5, total_amount_due = $6, amount_paid = $7,
    balance_due = $8, due_date = $9, status = $10, updated_at = $11
WHERE id = $1`

const deletePayableSQL = `DELETE FROM accounts_payable WHERE id = $1`

const markOverdueSQL = `UPDATE accounts_payable
SET status = 'overdue', updated_at = NOW()
WHERE status = 'open' AND due_date < $1::date`

const insertPaymentSQL = `INSERT INTO payments (accounts_payable_id, amount, payment_date, type, description)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`

const listPaymentsSQL = `SELECT id, accounts_payable_id, amount, payment_date, type, description, created_at
FROM payments
WHERE accounts_payable_id = $1
ORDER BY payment_date, id`

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) LockPayable(ctx context.Context, id int64) (Payable, error) {
	return scanPayable(r.tx.QueryRow(ctx, lockPayableSQL, id))
}

func (r *txRepo) InsertPayable(ctx context.Context, p Payable) (Payable, error) {
	err := r.tx.QueryRow(ctx, insertPayableSQL, p.Description, p.SupplierID, p.Category, p.Notes, p.TotalAmountDue,
		p.AmountPaid, p.BalanceDue, p.DueDate, string(p.Status), p.CreatedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	return p, err
}

func (r *txRepo) UpdatePayable(ctx context.Context, p Payable) error {
	tag, err := r.tx.Exec(ctx, updatePayableSQL, p.ID, p.Description, p.SupplierID, p.Category, p.Notes, p.TotalAmountDue,
		p.AmountPaid, p.BalanceDue, p.DueDate, string(p.Status), p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayableNotFound
	}
	return nil
}

func (r *txRepo) DeletePayable(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, deletePayableSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPayableNotFound
	}
	return nil
}

func (r *txRepo) InsertPayment(ctx context.Context, payment Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, insertPaymentSQL, payment.PayableID, payment.Amount, payment.PaymentDate,
		string(payment.Type), payment.Description).Scan(&payment.ID, &payment.CreatedAt)
	return payment, err
}
