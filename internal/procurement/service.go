package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/inventory"
	"github.com/shopledger/shopledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error)
	ListInspections(ctx context.Context, itemID int64) ([]QualityControlRecord, error)
}

// StockLedger credits on-hand stock inside the caller's transaction.
type StockLedger interface {
	Credit(ctx context.Context, productID int64, qty float64, reason string) (inventory.Movement, error)
}

// Directory resolves supplier and product references.
type Directory interface {
	SupplierExists(ctx context.Context, id int64) error
	ProductExists(ctx context.Context, id int64) error
}

// AuditPort records business events.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// Service orchestrates purchase orders, receiving and quality control.
type Service struct {
	repo      RepositoryPort
	directory Directory
	audit     AuditPort
	policy    ReceivingPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs procurement service. directory and audit may be nil.
func NewService(repo RepositoryPort, directory Directory, audit AuditPort, policy ReceivingPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, audit: audit, policy: policy, logger: logger, now: time.Now}
}

// CreatePurchaseOrder inserts a draft order with a zero total.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePurchaseOrderInput) (PurchaseOrder, error) {
	if err := s.validateHeader(ctx, input); err != nil {
		return PurchaseOrder{}, err
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := s.insertOrder(ctx, tx, input)
		if err != nil {
			return err
		}
		created = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, shared.Persistence("procurement: create purchase order", err)
	}
	s.recordAudit(ctx, "po.create", created.ID, map[string]any{"number": created.Number, "supplier_id": created.SupplierID})
	return created, nil
}

// CreateCompletePurchaseOrder creates the order and all items atomically and returns the populated order.
func (s *Service) CreateCompletePurchaseOrder(ctx context.Context, input CreatePurchaseOrderInput, items []ItemInput) (PurchaseOrder, error) {
	if err := s.validateHeader(ctx, input); err != nil {
		return PurchaseOrder{}, err
	}
	if len(items) == 0 {
		return PurchaseOrder{}, shared.Invalid("items", "at least one item is required")
	}
	for i, item := range items {
		if err := s.validateItem(ctx, item); err != nil {
			return PurchaseOrder{}, fmt.Errorf("item %d: %w", i, err)
		}
	}
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := s.insertOrder(ctx, tx, input)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.InsertItem(ctx, newItem(po.ID, item)); err != nil {
				return err
			}
		}
		if _, err := tx.RecomputeTotal(ctx, po.ID); err != nil {
			return err
		}
		orderID = po.ID
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, shared.Persistence("procurement: create complete purchase order", err)
	}
	po, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, shared.Persistence("procurement: reload purchase order", err)
	}
	s.recordAudit(ctx, "po.create", po.ID, map[string]any{"number": po.Number, "items": len(po.Items), "total": po.TotalAmount.StringFixed(2)})
	return po, nil
}

// AddItem inserts a line and recomputes the order total.
func (s *Service) AddItem(ctx context.Context, orderID int64, input ItemInput) (PurchaseOrderItem, error) {
	if err := s.validateItem(ctx, input); err != nil {
		return PurchaseOrderItem{}, err
	}
	var created PurchaseOrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return invalidState("cannot add items to a %s purchase order", po.Status)
		}
		item, err := tx.InsertItem(ctx, newItem(orderID, input))
		if err != nil {
			return err
		}
		if _, err := tx.RecomputeTotal(ctx, orderID); err != nil {
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return PurchaseOrderItem{}, shared.Persistence("procurement: add item", err)
	}
	return created, nil
}

// UpdateItem applies a partial update and recomputes subtotal and order total.
func (s *Service) UpdateItem(ctx context.Context, itemID int64, update ItemUpdate) (PurchaseOrderItem, error) {
	if update.ProductID == nil && update.Quantity == nil && update.UnitPrice == nil {
		return PurchaseOrderItem{}, shared.Invalid("update", "no fields to update")
	}
	if update.Quantity != nil && *update.Quantity <= 0 {
		return PurchaseOrderItem{}, shared.Invalid("quantity_ordered", "must be greater than zero")
	}
	if update.UnitPrice != nil && update.UnitPrice.IsNegative() {
		return PurchaseOrderItem{}, shared.Invalid("unit_price", "must not be negative")
	}
	if update.ProductID != nil {
		if err := s.checkProduct(ctx, *update.ProductID); err != nil {
			return PurchaseOrderItem{}, err
		}
	}
	var updated PurchaseOrderItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		po, err := tx.LockOrder(ctx, item.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return invalidState("cannot change items of a %s purchase order", po.Status)
		}
		if update.ProductID != nil {
			item.ProductID = *update.ProductID
		}
		if update.Quantity != nil {
			if !s.policy.AllowOverReceipt && *update.Quantity < item.QuantityReceived {
				return shared.Invalid("quantity_ordered", fmt.Sprintf("%.3f is below the %.3f already received", *update.Quantity, item.QuantityReceived))
			}
			item.QuantityOrdered = *update.Quantity
		}
		if update.UnitPrice != nil {
			item.UnitPrice = *update.UnitPrice
		}
		if update.Quantity != nil || update.UnitPrice != nil {
			item.Subtotal = LineSubtotal(item.QuantityOrdered, item.UnitPrice)
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if _, err := tx.RecomputeTotal(ctx, item.PurchaseOrderID); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return PurchaseOrderItem{}, shared.Persistence("procurement: update item", err)
	}
	return updated, nil
}

// RemoveItem deletes a line and recomputes the total of its parent order.
func (s *Service) RemoveItem(ctx context.Context, itemID int64) error {
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		po, err := tx.LockOrder(ctx, item.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return invalidState("cannot remove items from a %s purchase order", po.Status)
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		if _, err := tx.RecomputeTotal(ctx, po.ID); err != nil {
			return err
		}
		orderID = po.ID
		return nil
	})
	if err != nil {
		return shared.Persistence("procurement: remove item", err)
	}
	s.recordAudit(ctx, "po.item.remove", orderID, map[string]any{"item_id": itemID})
	return nil
}

// ReceiveItems records received quantities and marks the order received once every item is complete.
func (s *Service) ReceiveItems(ctx context.Context, orderID int64, received []ReceivedItem) (ReceiptResult, error) {
	if len(received) == 0 {
		return ReceiptResult{}, shared.Invalid("items", "at least one received item is required")
	}
	seen := make(map[int64]struct{}, len(received))
	for _, r := range received {
		if r.ItemID <= 0 {
			return ReceiptResult{}, shared.Invalid("item_id", "required")
		}
		if r.QuantityReceived < 0 {
			return ReceiptResult{}, shared.Invalid("quantity_received", "must not be negative")
		}
		if _, dup := seen[r.ItemID]; dup {
			return ReceiptResult{}, shared.Invalid("item_id", fmt.Sprintf("item %d listed more than once", r.ItemID))
		}
		seen[r.ItemID] = struct{}{}
	}

	var result ReceiptResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if po.Status.Terminal() {
			return invalidState("cannot receive items on a %s purchase order", po.Status)
		}
		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		index := make(map[int64]int, len(items))
		for i, item := range items {
			index[item.ID] = i
		}
		for _, r := range received {
			i, ok := index[r.ItemID]
			if !ok {
				return shared.Invalid("item_id", fmt.Sprintf("item %d does not belong to purchase order %d", r.ItemID, orderID))
			}
			item := items[i]
			if !s.policy.AllowOverReceipt && r.QuantityReceived > item.QuantityOrdered {
				return shared.Invalid("quantity_received", fmt.Sprintf("item %d: %.3f exceeds the %.3f ordered", item.ID, r.QuantityReceived, item.QuantityOrdered))
			}
			if !s.policy.AllowOverApproval && r.QuantityReceived < item.QuantityApproved {
				return shared.Invalid("quantity_received", fmt.Sprintf("item %d: %.3f is below the %.3f already approved", item.ID, r.QuantityReceived, item.QuantityApproved))
			}
			if err := tx.SetItemReceived(ctx, item.ID, r.QuantityReceived); err != nil {
				return err
			}
			items[i].QuantityReceived = r.QuantityReceived
		}

		complete := len(items) > 0
		outstanding := make([]OutstandingItem, 0, len(items))
		for _, item := range items {
			if item.QuantityReceived < item.QuantityOrdered {
				complete = false
			}
			outstanding = append(outstanding, OutstandingItem{
				ItemID:      item.ID,
				ProductID:   item.ProductID,
				Ordered:     item.QuantityOrdered,
				Received:    item.QuantityReceived,
				Outstanding: item.Outstanding(),
			})
		}
		if complete {
			if err := tx.UpdateOrderStatus(ctx, orderID, POStatusReceived); err != nil {
				return err
			}
			po.Status = POStatusReceived
		}
		po.Items = items
		result = ReceiptResult{Order: po, Complete: complete, Outstanding: outstanding}
		return nil
	})
	if err != nil {
		return ReceiptResult{}, shared.Persistence("procurement: receive items", err)
	}
	s.recordAudit(ctx, "po.receive", orderID, map[string]any{"items": len(received), "complete": result.Complete})
	return result, nil
}

// SendPurchaseOrder moves a draft order with at least one item to sent.
func (s *Service) SendPurchaseOrder(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, POStatusSent)
}

// ApprovePurchaseOrder moves a sent order to approved.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, POStatusApproved)
}

// CancelPurchaseOrder cancels any order that is not yet received.
func (s *Service) CancelPurchaseOrder(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	return s.transition(ctx, orderID, POStatusCancelled)
}

func (s *Service) transition(ctx context.Context, orderID int64, to POStatus) (PurchaseOrder, error) {
	var out PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(po.Status, to) {
			return invalidState("cannot move purchase order from %s to %s", po.Status, to)
		}
		if to == POStatusSent {
			items, err := tx.ListItems(ctx, orderID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return shared.Invalid("items", "purchase order has no items")
			}
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, to); err != nil {
			return err
		}
		po.Status = to
		out = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, shared.Persistence("procurement: change status", err)
	}
	s.recordAudit(ctx, "po.status", orderID, map[string]any{"status": string(to)})
	return out, nil
}

// DeletePurchaseOrder removes a draft or cancelled order with its items and inspections.
func (s *Service) DeletePurchaseOrder(ctx context.Context, orderID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft && po.Status != POStatusCancelled {
			return invalidState("only draft or cancelled purchase orders can be deleted, order is %s", po.Status)
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return shared.Persistence("procurement: delete purchase order", err)
	}
	s.recordAudit(ctx, "po.delete", orderID, nil)
	return nil
}

// GetPurchaseOrder returns an order with its items.
func (s *Service) GetPurchaseOrder(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	po, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, shared.Persistence("procurement: get purchase order", err)
	}
	return po, nil
}

// ListPurchaseOrders returns order headers, newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	orders, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Persistence("procurement: list purchase orders", err)
	}
	return orders, nil
}

func (s *Service) insertOrder(ctx context.Context, tx TxRepository, input CreatePurchaseOrderInput) (PurchaseOrder, error) {
	seq, err := tx.NextOrderNumber(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now().UTC()
	return tx.InsertOrder(ctx, PurchaseOrder{
		Number:               formatOrderNumber(seq),
		SupplierID:           input.SupplierID,
		Status:               POStatusDraft,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		TotalAmount:          decimal.Zero,
		Notes:                input.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
}

func (s *Service) validateHeader(ctx context.Context, input CreatePurchaseOrderInput) error {
	if input.SupplierID <= 0 {
		return shared.Invalid("supplier_id", "required")
	}
	if s.directory == nil {
		return nil
	}
	if err := s.directory.SupplierExists(ctx, input.SupplierID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Invalid("supplier_id", fmt.Sprintf("supplier %d does not exist", input.SupplierID))
		}
		return shared.Persistence("procurement: lookup supplier", err)
	}
	return nil
}

func (s *Service) validateItem(ctx context.Context, input ItemInput) error {
	if input.ProductID <= 0 {
		return shared.Invalid("product_id", "required")
	}
	if input.Quantity <= 0 {
		return shared.Invalid("quantity_ordered", "must be greater than zero")
	}
	if input.UnitPrice.IsNegative() {
		return shared.Invalid("unit_price", "must not be negative")
	}
	return s.checkProduct(ctx, input.ProductID)
}

func (s *Service) checkProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return shared.Invalid("product_id", "required")
	}
	if s.directory == nil {
		return nil
	}
	if err := s.directory.ProductExists(ctx, productID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Invalid("product_id", fmt.Sprintf("product %d does not exist", productID))
		}
		return shared.Persistence("procurement: lookup product", err)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditEntry{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "purchase_order",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.Int64("entity_id", entityID), slog.Any("error", err))
	}
}

func newItem(orderID int64, input ItemInput) PurchaseOrderItem {
	return PurchaseOrderItem{
		PurchaseOrderID: orderID,
		ProductID:       input.ProductID,
		QuantityOrdered: input.Quantity,
		UnitPrice:       input.UnitPrice,
		Subtotal:        LineSubtotal(input.Quantity, input.UnitPrice),
	}
}

func formatOrderNumber(seq int64) string {
	return fmt.Sprintf("PO-%06d", seq)
}
