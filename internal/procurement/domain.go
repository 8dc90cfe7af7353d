package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusApproved  POStatus = "approved"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	switch s {
	case POStatusDraft, POStatusSent, POStatusApproved, POStatusReceived, POStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further mutation is allowed.
func (s POStatus) Terminal() bool {
	return s == POStatusReceived || s == POStatusCancelled
}

// allowedTransitions lists manual transitions; received is reachable only through receiving.
var allowedTransitions = map[POStatus][]POStatus{
	POStatusDraft:    {POStatusSent, POStatusCancelled},
	POStatusSent:     {POStatusApproved, POStatusCancelled},
	POStatusApproved: {POStatusCancelled},
}

// CanTransition reports whether from → to is a permitted manual transition.
func CanTransition(from, to POStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PurchaseOrder is the order header; TotalAmount always equals the sum of item subtotals.
type PurchaseOrder struct {
	ID                   int64               `json:"id"`
	Number               string              `json:"number"`
	SupplierID           int64               `json:"supplier_id"`
	Status               POStatus            `json:"status"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	Notes                string              `json:"notes"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Items                []PurchaseOrderItem `json:"items,omitempty"`
}

// PurchaseOrderItem is an order line.
type PurchaseOrderItem struct {
	ID               int64           `json:"id"`
	PurchaseOrderID  int64           `json:"purchase_order_id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  float64         `json:"quantity_ordered"`
	QuantityReceived float64         `json:"quantity_received"`
	QuantityApproved float64         `json:"quantity_approved"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Subtotal         decimal.Decimal `json:"subtotal"`
}

// Outstanding is the quantity still expected from the supplier.
func (i PurchaseOrderItem) Outstanding() float64 {
	if i.QuantityReceived >= i.QuantityOrdered {
		return 0
	}
	return i.QuantityOrdered - i.QuantityReceived
}

// LineSubtotal computes quantity × unit price rounded to cents.
func LineSubtotal(qty float64, unitPrice decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(unitPrice).Round(2)
}

// SumSubtotals adds item subtotals.
func SumSubtotals(items []PurchaseOrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// InspectionStatus is derived from approved/rejected quantities.
type InspectionStatus string

const (
	InspectionApproved InspectionStatus = "approved"
	InspectionRejected InspectionStatus = "rejected"
	InspectionPartial  InspectionStatus = "partial"
)

// DeriveInspectionStatus maps inspected quantities to a status.
func DeriveInspectionStatus(approved, rejected float64) InspectionStatus {
	switch {
	case rejected > 0 && approved > 0:
		return InspectionPartial
	case rejected > 0:
		return InspectionRejected
	default:
		return InspectionApproved
	}
}

// QualityControlRecord is one append-only inspection pass over an item.
type QualityControlRecord struct {
	ID                  int64            `json:"id"`
	PurchaseOrderItemID int64            `json:"purchase_order_item_id"`
	InspectorID         string           `json:"inspector_id"`
	InspectionDate      time.Time        `json:"inspection_date"`
	Status              InspectionStatus `json:"status"`
	ApprovedQuantity    float64          `json:"approved_quantity"`
	RejectedQuantity    float64          `json:"rejected_quantity"`
	Notes               string           `json:"notes"`
	DefectsFound        []string         `json:"defects_found"`
}

// ReceivingPolicy controls whether quantities may exceed their upstream bound.
type ReceivingPolicy struct {
	AllowOverReceipt  bool
	AllowOverApproval bool
}

// CreatePurchaseOrderInput describes a new order header.
type CreatePurchaseOrderInput struct {
	SupplierID           int64
	ExpectedDeliveryDate *time.Time
	Notes                string
}

// ItemInput describes a new order line.
type ItemInput struct {
	ProductID int64
	Quantity  float64
	UnitPrice decimal.Decimal
}

// ItemUpdate is a partial update of an order line. Nil fields are left untouched.
type ItemUpdate struct {
	ProductID *int64
	Quantity  *float64
	UnitPrice *decimal.Decimal
}

// ReceivedItem sets the received quantity of one item.
type ReceivedItem struct {
	ItemID           int64
	QuantityReceived float64
}

// OutstandingItem reports what is still expected for an item after a receipt.
type OutstandingItem struct {
	ItemID      int64   `json:"item_id"`
	ProductID   int64   `json:"product_id"`
	Ordered     float64 `json:"ordered"`
	Received    float64 `json:"received"`
	Outstanding float64 `json:"outstanding"`
}

// ReceiptResult is returned by ReceiveItems.
type ReceiptResult struct {
	Order       PurchaseOrder     `json:"order"`
	Complete    bool              `json:"complete"`
	Outstanding []OutstandingItem `json:"outstanding"`
}

// InspectionInput describes one quality control pass.
type InspectionInput struct {
	ItemID           int64
	InspectorID      string
	ApprovedQuantity float64
	RejectedQuantity float64
	Notes            string
	Defects          []string
}

// InspectionResult carries the stored record and the updated item.
type InspectionResult struct {
	Record        QualityControlRecord `json:"record"`
	Item          PurchaseOrderItem    `json:"item"`
	StockCredited float64              `json:"stock_credited"`
}

// ListFilter narrows ListPurchaseOrders.
type ListFilter struct {
	SupplierID int64
	Status     POStatus
	Limit      int
	Offset     int
}

// StockCreditReason tags stock movements created by approved inspections.
const StockCreditReason = "approved receipt from purchase order"

var (
	// ErrOrderNotFound indicates a missing purchase order.
	ErrOrderNotFound = fmt.Errorf("purchase order %w", shared.ErrNotFound)
	// ErrItemNotFound indicates a missing purchase order item.
	ErrItemNotFound = fmt.Errorf("purchase order item %w", shared.ErrNotFound)
)

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrInvalidState, fmt.Sprintf(format, args...))
}
