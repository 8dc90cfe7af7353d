package payables

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// Status is the lifecycle status of a payable.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// DeriveStatus is the only place a payable status is computed. A settled
// balance is paid; a positive balance demotes paid back to open and leaves
// open or overdue as they are.
func DeriveStatus(total, paid decimal.Decimal, current Status) Status {
	if total.Sub(paid).LessThanOrEqual(decimal.Zero) {
		return StatusPaid
	}
	if current == StatusPaid || current == "" {
		return StatusOpen
	}
	return current
}

// Payable is money owed to a supplier.
type Payable struct {
	ID             int64           `json:"id"`
	Description    string          `json:"description"`
	SupplierID     *int64          `json:"supplier_id,omitempty"`
	Category       string          `json:"category,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	DueDate        time.Time       `json:"due_date"`
	Status         Status          `json:"status"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// apply sets the paid amount and re-derives balance and status.
func (p *Payable) apply(total, paid decimal.Decimal) {
	p.TotalAmountDue = total
	p.AmountPaid = paid
	p.BalanceDue = total.Sub(paid)
	p.Status = DeriveStatus(total, paid, p.Status)
}

// PaymentType distinguishes payments from reversals.
type PaymentType string

const (
	PaymentExpense         PaymentType = "expense"
	PaymentExpenseReversal PaymentType = "expense_reversal"
)

// Payment is one signed movement of amount_paid. Reversals carry a negative amount.
type Payment struct {
	ID          int64           `json:"id"`
	PayableID   int64           `json:"accounts_payable_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Type        PaymentType     `json:"type"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateInput describes a new payable.
type CreateInput struct {
	Description    string
	SupplierID     *int64
	Category       string
	Notes          string
	TotalAmountDue decimal.Decimal
	AmountPaid     decimal.Decimal
	DueDate        *time.Time
	Status         Status
}

// Update is a partial update. Nil fields are left untouched.
type Update struct {
	Description    *string
	SupplierID     *int64
	Category       *string
	Notes          *string
	TotalAmountDue *decimal.Decimal
	AmountPaid     *decimal.Decimal
	DueDate        *time.Time
	Status         *Status
}

func (u Update) empty() bool {
	return u.Description == nil && u.SupplierID == nil && u.Category == nil && u.Notes == nil &&
		u.TotalAmountDue == nil && u.AmountPaid == nil && u.DueDate == nil && u.Status == nil
}

// PaymentInput registers a payment or a reversal against a payable.
type PaymentInput struct {
	PayableID      int64
	Amount         decimal.Decimal
	PaymentDate    *time.Time
	Description    string
	IdempotencyKey string
}

// PaymentResult carries the updated payable with the payment row written.
type PaymentResult struct {
	Payable Payable `json:"payable"`
	Payment Payment `json:"payment"`
}

// ListFilter narrows ListPayables. Due bounds are inclusive.
type ListFilter struct {
	Status     Status
	SupplierID int64
	DueFrom    *time.Time
	DueTo      *time.Time
	UnpaidOnly bool
	Limit      int
	Offset     int
}

// SummaryFilter restricts Summary to a due-date window.
type SummaryFilter struct {
	From *time.Time
	To   *time.Time
	AsOf time.Time
}

// Summary aggregates the ledger. TotalGeneral is TotalOpen plus TotalPaid.
type Summary struct {
	TotalOpen    decimal.Decimal `json:"total_open"`
	CountOpen    int             `json:"count_open"`
	TotalOverdue decimal.Decimal `json:"total_overdue"`
	CountOverdue int             `json:"count_overdue"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	CountPaid    int             `json:"count_paid"`
	TotalGeneral decimal.Decimal `json:"total_general"`
	Upcoming     []Payable       `json:"upcoming"`
}

// Reminders groups unpaid payables by due date relative to a day.
type Reminders struct {
	AsOf        time.Time `json:"as_of"`
	DueToday    []Payable `json:"due_today"`
	DueTomorrow []Payable `json:"due_tomorrow"`
	DueSoon     []Payable `json:"due_soon"`
	Overdue     []Payable `json:"overdue"`
}

// Empty reports whether no bucket has entries.
func (r Reminders) Empty() bool {
	return len(r.DueToday) == 0 && len(r.DueTomorrow) == 0 && len(r.DueSoon) == 0 && len(r.Overdue) == 0
}

const (
	upcomingWindowDays = 7
	upcomingLimit      = 5
	soonWindowDays     = 3
	idempotencyScope   = "payables.payment"
)

var (
	// ErrPayableNotFound indicates a missing payable.
	ErrPayableNotFound = fmt.Errorf("accounts payable %w", shared.ErrNotFound)
)

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrInvalidState, fmt.Sprintf(format, args...))
}
