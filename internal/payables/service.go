package payables

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/shopledger/shopledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayable(ctx context.Context, id int64) (Payable, error)
	ListPayables(ctx context.Context, filter ListFilter) ([]Payable, error)
	ListPayments(ctx context.Context, payableID int64) ([]Payment, error)
	MarkOverdue(ctx context.Context, today time.Time) (int64, error)
}

// Directory resolves supplier references.
type Directory interface {
	SupplierExists(ctx context.Context, id int64) error
}

// IdempotencyPort guards payment registration against replays.
type IdempotencyPort interface {
	Claim(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

// AuditPort records business events.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// Service manages payables and their payments.
type Service struct {
	repo        RepositoryPort
	directory   Directory
	idempotency IdempotencyPort
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a payables service.
func NewService(repo RepositoryPort, directory Directory, idempotency IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, idempotency: idempotency, audit: audit, logger: logger, now: time.Now}
}

// CreatePayable validates and stores a new payable.
func (s *Service) CreatePayable(ctx context.Context, input CreateInput) (Payable, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return Payable{}, shared.Invalid("description", "required")
	}
	if input.DueDate == nil || input.DueDate.IsZero() {
		return Payable{}, shared.Invalid("due_date", "required")
	}
	if err := checkAmounts(input.TotalAmountDue, input.AmountPaid); err != nil {
		return Payable{}, err
	}
	if input.Status != "" && !input.Status.Valid() {
		return Payable{}, shared.Invalid("status", fmt.Sprintf("unknown status %q", input.Status))
	}
	if err := s.checkSupplier(ctx, input.SupplierID); err != nil {
		return Payable{}, err
	}

	now := s.now().UTC()
	p := Payable{
		Description: description,
		SupplierID:  input.SupplierID,
		Category:    strings.TrimSpace(input.Category),
		Notes:       strings.TrimSpace(input.Notes),
		DueDate:     shared.DateOnly(*input.DueDate),
		Status:      input.Status,
		CreatedBy:   shared.ActorFromContext(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.apply(input.TotalAmountDue.Round(2), input.AmountPaid.Round(2))
	if input.Status != "" && p.Status != input.Status {
		return Payable{}, shared.Invalid("status", fmt.Sprintf("%s is inconsistent with a balance of %s", input.Status, p.BalanceDue.StringFixed(2)))
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertPayable(ctx, p)
		if err != nil {
			return err
		}
		if created.AmountPaid.IsPositive() {
			if _, err := tx.InsertPayment(ctx, Payment{
				PayableID:   created.ID,
				Amount:      created.AmountPaid,
				PaymentDate: shared.DateOnly(now),
				Type:        PaymentExpense,
				Description: "initial payment",
			}); err != nil {
				return err
			}
		}
		p = created
		return nil
	})
	if err != nil {
		return Payable{}, shared.Persistence("payables: create", err)
	}
	s.recordAudit(ctx, "payable.create", p.ID, map[string]any{"total": p.TotalAmountDue.StringFixed(2), "status": string(p.Status)})
	return p, nil
}

// UpdatePayable applies a partial update. When total or paid change, balance
// and status are re-derived and the paid difference is written as a payment row.
// A total below the amount already paid leaves the payable paid with a credit balance.
func (s *Service) UpdatePayable(ctx context.Context, id int64, update Update) (Payable, error) {
	if update.empty() {
		return Payable{}, shared.Invalid("update", "no fields to update")
	}
	if update.Description != nil && strings.TrimSpace(*update.Description) == "" {
		return Payable{}, shared.Invalid("description", "required")
	}
	if update.Status != nil && !update.Status.Valid() {
		return Payable{}, shared.Invalid("status", fmt.Sprintf("unknown status %q", *update.Status))
	}
	if update.DueDate != nil && update.DueDate.IsZero() {
		return Payable{}, shared.Invalid("due_date", "required")
	}
	if err := s.checkSupplier(ctx, update.SupplierID); err != nil {
		return Payable{}, err
	}

	var updated Payable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayable(ctx, id)
		if err != nil {
			return err
		}
		if update.Description != nil {
			p.Description = strings.TrimSpace(*update.Description)
		}
		if update.SupplierID != nil {
			p.SupplierID = update.SupplierID
		}
		if update.Category != nil {
			p.Category = strings.TrimSpace(*update.Category)
		}
		if update.Notes != nil {
			p.Notes = strings.TrimSpace(*update.Notes)
		}
		if update.DueDate != nil {
			p.DueDate = shared.DateOnly(*update.DueDate)
		}
		if update.Status != nil {
			p.Status = *update.Status
		}

		total, paid := p.TotalAmountDue, p.AmountPaid
		if update.TotalAmountDue != nil {
			total = update.TotalAmountDue.Round(2)
		}
		if update.AmountPaid != nil {
			paid = update.AmountPaid.Round(2)
		}
		if err := checkAdjustment(total, paid, p.AmountPaid); err != nil {
			return err
		}
		delta := paid.Sub(p.AmountPaid)
		p.apply(total, paid)
		if update.Status != nil && p.Status != *update.Status {
			return shared.Invalid("status", fmt.Sprintf("%s is inconsistent with a balance of %s", *update.Status, p.BalanceDue.StringFixed(2)))
		}
		p.UpdatedAt = s.now().UTC()

		if err := tx.UpdatePayable(ctx, p); err != nil {
			return err
		}
		if !delta.IsZero() {
			if _, err := tx.InsertPayment(ctx, signedPayment(p.ID, delta, shared.DateOnly(p.UpdatedAt), "manual adjustment")); err != nil {
				return err
			}
		}
		updated = p
		return nil
	})
	if err != nil {
		return Payable{}, shared.Persistence("payables: update", err)
	}
	s.recordAudit(ctx, "payable.update", id, map[string]any{"status": string(updated.Status), "balance": updated.BalanceDue.StringFixed(2)})
	return updated, nil
}

// RegisterPayment applies a payment. The ledger update and the payment row
// commit together; a non-empty idempotency key makes replays fail with
// shared.ErrIdempotencyConflict.
func (s *Service) RegisterPayment(ctx context.Context, input PaymentInput) (result PaymentResult, err error) {
	if !input.Amount.IsPositive() {
		return PaymentResult{}, shared.Invalid("amount", "must be greater than zero")
	}
	amount := input.Amount.Round(2)
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" && s.idempotency != nil {
		if err := s.idempotency.Claim(ctx, key, idempotencyScope); err != nil {
			return PaymentResult{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idempotency.Release(ctx, key, idempotencyScope); relErr != nil {
				s.logger.Warn("payables release idempotency key", slog.String("key", key), slog.Any("error", relErr))
			}
		}()
	}

	date := s.paymentDate(input.PaymentDate)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayable(ctx, input.PayableID)
		if err != nil {
			return err
		}
		if p.Status == StatusPaid {
			return invalidState("accounts payable %d is already paid", p.ID)
		}
		paid := p.AmountPaid.Add(amount)
		if paid.GreaterThan(p.TotalAmountDue) {
			return shared.Invalid("amount", fmt.Sprintf("%s exceeds the balance due of %s", amount.StringFixed(2), p.BalanceDue.StringFixed(2)))
		}
		p.apply(p.TotalAmountDue, paid)
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpdatePayable(ctx, p); err != nil {
			return err
		}
		payment, err := tx.InsertPayment(ctx, Payment{
			PayableID:   p.ID,
			Amount:      amount,
			PaymentDate: date,
			Type:        PaymentExpense,
			Description: strings.TrimSpace(input.Description),
		})
		if err != nil {
			return err
		}
		result = PaymentResult{Payable: p, Payment: payment}
		return nil
	})
	if err != nil {
		return PaymentResult{}, shared.Persistence("payables: register payment", err)
	}
	s.recordAudit(ctx, "payable.payment", input.PayableID, map[string]any{"amount": amount.StringFixed(2), "status": string(result.Payable.Status)})
	return result, nil
}

// ReversePayment reduces amount_paid and records a negative reversal row.
func (s *Service) ReversePayment(ctx context.Context, input PaymentInput) (PaymentResult, error) {
	if !input.Amount.IsPositive() {
		return PaymentResult{}, shared.Invalid("amount", "must be greater than zero")
	}
	amount := input.Amount.Round(2)
	date := s.paymentDate(input.PaymentDate)
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "payment reversal"
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayable(ctx, input.PayableID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(p.AmountPaid) {
			return shared.Invalid("amount", fmt.Sprintf("%s exceeds the amount paid of %s", amount.StringFixed(2), p.AmountPaid.StringFixed(2)))
		}
		p.apply(p.TotalAmountDue, p.AmountPaid.Sub(amount))
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpdatePayable(ctx, p); err != nil {
			return err
		}
		payment, err := tx.InsertPayment(ctx, signedPayment(p.ID, amount.Neg(), date, description))
		if err != nil {
			return err
		}
		result = PaymentResult{Payable: p, Payment: payment}
		return nil
	})
	if err != nil {
		return PaymentResult{}, shared.Persistence("payables: reverse payment", err)
	}
	s.recordAudit(ctx, "payable.reversal", input.PayableID, map[string]any{"amount": amount.StringFixed(2), "status": string(result.Payable.Status)})
	return result, nil
}

// DeletePayable removes a payable that has nothing paid.
func (s *Service) DeletePayable(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockPayable(ctx, id)
		if err != nil {
			return err
		}
		if p.AmountPaid.IsPositive() {
			return shared.Invalid("amount_paid", fmt.Sprintf("cannot delete a payable with %s already paid", p.AmountPaid.StringFixed(2)))
		}
		return tx.DeletePayable(ctx, id)
	})
	if err != nil {
		return shared.Persistence("payables: delete", err)
	}
	s.recordAudit(ctx, "payable.delete", id, nil)
	return nil
}

// MarkOverdue flags open payables due before asOf's calendar day and returns
// how many rows changed. Running it again on the same day changes nothing.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	today := s.today(asOf)
	affected, err := s.repo.MarkOverdue(ctx, today)
	if err != nil {
		return 0, shared.Persistence("payables: mark overdue", err)
	}
	s.logger.Info("payables overdue sweep", slog.String("as_of", today.Format(time.DateOnly)), slog.Int64("affected", affected))
	return affected, nil
}

// Summary aggregates open, overdue and paid payables within the filter window
// and lists the nearest unpaid payables due in the next week.
func (s *Service) Summary(ctx context.Context, filter SummaryFilter) (Summary, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return Summary{}, shared.Invalid("to", "must not be before from")
	}
	today := s.today(filter.AsOf)

	var (
		rows     []Payable
		upcoming []Payable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.ListPayables(gctx, ListFilter{DueFrom: filter.From, DueTo: filter.To})
		return err
	})
	g.Go(func() error {
		to := shared.AddDays(today, upcomingWindowDays)
		var err error
		upcoming, err = s.repo.ListPayables(gctx, ListFilter{DueFrom: &today, DueTo: &to, UnpaidOnly: true, Limit: upcomingLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, shared.Persistence("payables: summary", err)
	}

	summary := Summarize(rows, today)
	if upcoming == nil {
		upcoming = []Payable{}
	}
	summary.Upcoming = upcoming
	return summary, nil
}

// Summarize reduces rows into the summary totals. An unpaid payable due
// before today counts as overdue whether or not the sweep has flagged it.
func Summarize(rows []Payable, today time.Time) Summary {
	out := Summary{
		TotalOpen:    decimal.Zero,
		TotalOverdue: decimal.Zero,
		TotalPaid:    decimal.Zero,
	}
	for _, p := range rows {
		if p.Status == StatusPaid {
			out.TotalPaid = out.TotalPaid.Add(p.TotalAmountDue)
			out.CountPaid++
			continue
		}
		out.TotalOpen = out.TotalOpen.Add(p.BalanceDue)
		out.CountOpen++
		if p.DueDate.Before(today) {
			out.TotalOverdue = out.TotalOverdue.Add(p.BalanceDue)
			out.CountOverdue++
		}
	}
	out.TotalGeneral = out.TotalOpen.Add(out.TotalPaid)
	return out
}

// Reminders buckets unpaid payables into due today, tomorrow, within three
// days after today, and overdue. The four lookups run concurrently.
func (s *Service) Reminders(ctx context.Context, asOf time.Time) (Reminders, error) {
	today := s.today(asOf)
	tomorrow := shared.AddDays(today, 1)
	soon := shared.AddDays(today, soonWindowDays)
	yesterday := shared.AddDays(today, -1)

	out := Reminders{AsOf: today}
	buckets := []struct {
		target   *[]Payable
		from, to *time.Time
	}{
		{&out.DueToday, &today, &today},
		{&out.DueTomorrow, &tomorrow, &tomorrow},
		{&out.DueSoon, &tomorrow, &soon},
		{&out.Overdue, nil, &yesterday},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range buckets {
		g.Go(func() error {
			rows, err := s.repo.ListPayables(gctx, ListFilter{DueFrom: b.from, DueTo: b.to, UnpaidOnly: true})
			if err != nil {
				return err
			}
			if rows == nil {
				rows = []Payable{}
			}
			*b.target = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Reminders{}, shared.Persistence("payables: reminders", err)
	}
	return out, nil
}

// GetPayable returns a payable by id.
func (s *Service) GetPayable(ctx context.Context, id int64) (Payable, error) {
	p, err := s.repo.GetPayable(ctx, id)
	if err != nil {
		return Payable{}, shared.Persistence("payables: get", err)
	}
	return p, nil
}

// ListPayables returns payables ordered by due date.
func (s *Service) ListPayables(ctx context.Context, filter ListFilter) ([]Payable, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.DueFrom != nil && filter.DueTo != nil && filter.DueTo.Before(*filter.DueFrom) {
		return nil, shared.Invalid("due_to", "must not be before due_from")
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	rows, err := s.repo.ListPayables(ctx, filter)
	if err != nil {
		return nil, shared.Persistence("payables: list", err)
	}
	return rows, nil
}

// ListPayments returns the signed payment rows of a payable, oldest first.
func (s *Service) ListPayments(ctx context.Context, payableID int64) ([]Payment, error) {
	if _, err := s.repo.GetPayable(ctx, payableID); err != nil {
		return nil, shared.Persistence("payables: get", err)
	}
	rows, err := s.repo.ListPayments(ctx, payableID)
	if err != nil {
		return nil, shared.Persistence("payables: list payments", err)
	}
	return rows, nil
}

func checkAmounts(total, paid decimal.Decimal) error {
	if !total.IsPositive() {
		return shared.Invalid("total_amount_due", "must be greater than zero")
	}
	if paid.IsNegative() {
		return shared.Invalid("amount_paid", "must not be negative")
	}
	if paid.GreaterThan(total) {
		return shared.Invalid("amount_paid", fmt.Sprintf("%s exceeds the total due of %s", paid.StringFixed(2), total.StringFixed(2)))
	}
	return nil
}

// checkAdjustment allows lowering the total below what was already paid,
// which settles the payable with a non-positive balance. Raising the paid
// amount past the total is still an overpayment.
func checkAdjustment(total, paid, previousPaid decimal.Decimal) error {
	if !total.IsPositive() {
		return shared.Invalid("total_amount_due", "must be greater than zero")
	}
	if paid.IsNegative() {
		return shared.Invalid("amount_paid", "must not be negative")
	}
	if paid.GreaterThan(total) && paid.GreaterThan(previousPaid) {
		return shared.Invalid("amount_paid", fmt.Sprintf("%s exceeds the total due of %s", paid.StringFixed(2), total.StringFixed(2)))
	}
	return nil
}

func (s *Service) checkSupplier(ctx context.Context, supplierID *int64) error {
	if supplierID == nil || s.directory == nil {
		return nil
	}
	if *supplierID <= 0 {
		return shared.Invalid("supplier_id", "must be positive")
	}
	if err := s.directory.SupplierExists(ctx, *supplierID); err != nil {
		if shared.IsClientError(err) {
			return shared.Invalid("supplier_id", fmt.Sprintf("supplier %d does not exist", *supplierID))
		}
		return shared.Persistence("payables: check supplier", err)
	}
	return nil
}

func (s *Service) today(asOf time.Time) time.Time {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	return shared.DateOnly(asOf)
}

func (s *Service) paymentDate(d *time.Time) time.Time {
	if d == nil || d.IsZero() {
		return shared.DateOnly(s.now().UTC())
	}
	return shared.DateOnly(*d)
}

func signedPayment(payableID int64, amount decimal.Decimal, date time.Time, description string) Payment {
	kind := PaymentExpense
	if amount.IsNegative() {
		kind = PaymentExpenseReversal
	}
	return Payment{PayableID: payableID, Amount: amount, PaymentDate: date, Type: kind, Description: description}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditEntry{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "accounts_payable",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("payables audit", slog.String("action", action), slog.Int64("entity_id", entityID), slog.Any("error", err))
	}
}
