package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/procurement"
	"github.com/shopledger/shopledger/internal/shared"
)

// Range is an inclusive date window. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return shared.Invalid("to", "must not be before from")
	}
	return nil
}

func (r Range) token() string {
	return dateToken(r.From) + ":" + dateToken(r.To)
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func dateArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := shared.DateOnly(t)
	return &d
}

// OrderRow is the slice of a purchase order the reports read.
type OrderRow struct {
	ID                   int64
	Number               string
	SupplierID           int64
	Status               procurement.POStatus
	ExpectedDeliveryDate *time.Time
	TotalAmount          decimal.Decimal
	CreatedAt            time.Time
}

// PayableRow is the slice of a payable the reports read.
type PayableRow struct {
	ID             int64
	SupplierID     *int64
	TotalAmountDue decimal.Decimal
	AmountPaid     decimal.Decimal
	BalanceDue     decimal.Decimal
	DueDate        time.Time
	Status         payables.Status
}

// SupplierPurchases totals purchase orders per supplier.
type SupplierPurchases struct {
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Orders       int             `json:"orders"`
	Total        decimal.Decimal `json:"total"`
}

// OverdueOrder is an order whose expected delivery date has passed.
type OverdueOrder struct {
	ID                   int64                `json:"id"`
	Number               string               `json:"number"`
	SupplierID           int64                `json:"supplier_id"`
	SupplierName         string               `json:"supplier_name"`
	Status               procurement.POStatus `json:"status"`
	ExpectedDeliveryDate time.Time            `json:"expected_delivery_date"`
	DaysLate             int                  `json:"days_late"`
	Total                decimal.Decimal      `json:"total"`
}

// StatusStats counts orders per status.
type StatusStats struct {
	Status procurement.POStatus `json:"status"`
	Orders int                  `json:"orders"`
	Total  decimal.Decimal      `json:"total"`
}

// PayableTotals is shared by the supplier and period rollups.
type PayableTotals struct {
	Count     int             `json:"count"`
	TotalDue  decimal.Decimal `json:"total_due"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Balance   decimal.Decimal `json:"balance"`
}

func (t *PayableTotals) add(row PayableRow) {
	t.Count++
	t.TotalDue = t.TotalDue.Add(row.TotalAmountDue)
	t.TotalPaid = t.TotalPaid.Add(row.AmountPaid)
	t.Balance = t.Balance.Add(row.BalanceDue)
}

// SupplierPayables groups payables by supplier. SupplierID 0 collects payables without one.
type SupplierPayables struct {
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	PayableTotals
}

// PeriodPayables groups payables by due month (YYYY-MM).
type PeriodPayables struct {
	Period string `json:"period"`
	PayableTotals
}

var statusOrder = []procurement.POStatus{
	procurement.POStatusDraft,
	procurement.POStatusSent,
	procurement.POStatusApproved,
	procurement.POStatusReceived,
	procurement.POStatusCancelled,
}

// GroupPurchasesBySupplier sums non-cancelled orders per supplier, largest total first.
func GroupPurchasesBySupplier(rows []OrderRow) []SupplierPurchases {
	index := make(map[int64]int)
	out := make([]SupplierPurchases, 0)
	for _, row := range rows {
		if row.Status == procurement.POStatusCancelled {
			continue
		}
		i, ok := index[row.SupplierID]
		if !ok {
			i = len(out)
			index[row.SupplierID] = i
			out = append(out, SupplierPurchases{SupplierID: row.SupplierID, Total: decimal.Zero})
		}
		out[i].Orders++
		out[i].Total = out[i].Total.Add(row.TotalAmount)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	return out
}

// FilterOverdue keeps orders expected before asOf that were neither received nor cancelled, most late first.
func FilterOverdue(rows []OrderRow, asOf time.Time) []OverdueOrder {
	today := shared.DateOnly(asOf)
	out := make([]OverdueOrder, 0)
	for _, row := range rows {
		if row.ExpectedDeliveryDate == nil || row.Status.Terminal() {
			continue
		}
		expected := shared.DateOnly(*row.ExpectedDeliveryDate)
		if !expected.Before(today) {
			continue
		}
		out = append(out, OverdueOrder{
			ID:                   row.ID,
			Number:               row.Number,
			SupplierID:           row.SupplierID,
			Status:               row.Status,
			ExpectedDeliveryDate: expected,
			DaysLate:             int(today.Sub(expected).Hours() / 24),
			Total:                row.TotalAmount,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysLate != out[j].DaysLate {
			return out[i].DaysLate > out[j].DaysLate
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StatsByStatus counts orders for every status, including empty ones.
func StatsByStatus(rows []OrderRow) []StatusStats {
	index := make(map[procurement.POStatus]int, len(statusOrder))
	out := make([]StatusStats, len(statusOrder))
	for i, status := range statusOrder {
		index[status] = i
		out[i] = StatusStats{Status: status, Total: decimal.Zero}
	}
	for _, row := range rows {
		i, ok := index[row.Status]
		if !ok {
			continue
		}
		out[i].Orders++
		out[i].Total = out[i].Total.Add(row.TotalAmount)
	}
	return out
}

func zeroTotals() PayableTotals {
	return PayableTotals{TotalDue: decimal.Zero, TotalPaid: decimal.Zero, Balance: decimal.Zero}
}

// GroupPayablesBySupplier rolls payables up per supplier, largest balance first.
func GroupPayablesBySupplier(rows []PayableRow) []SupplierPayables {
	index := make(map[int64]int)
	out := make([]SupplierPayables, 0)
	for _, row := range rows {
		var id int64
		if row.SupplierID != nil {
			id = *row.SupplierID
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, SupplierPayables{SupplierID: id, PayableTotals: zeroTotals()})
		}
		out[i].add(row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Balance.Cmp(out[j].Balance); c != 0 {
			return c > 0
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	return out
}

// GroupPayablesByPeriod rolls payables up per due month in ascending order.
func GroupPayablesByPeriod(rows []PayableRow) []PeriodPayables {
	index := make(map[string]int)
	out := make([]PeriodPayables, 0)
	for _, row := range rows {
		period := row.DueDate.Format("2006-01")
		i, ok := index[period]
		if !ok {
			i = len(out)
			index[period] = i
			out = append(out, PeriodPayables{Period: period, PayableTotals: zeroTotals()})
		}
		out[i].add(row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}
