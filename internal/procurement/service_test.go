package procurement

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/directory"
	"github.com/shopledger/shopledger/internal/inventory"
	"github.com/shopledger/shopledger/internal/shared"
)

type procState struct {
	orders      map[int64]PurchaseOrder
	items       map[int64]PurchaseOrderItem
	inspections []QualityControlRecord
	stock       map[int64]float64
	seq         int64
	nextID      int64
}

func (s procState) clone() procState {
	out := procState{
		orders:      make(map[int64]PurchaseOrder, len(s.orders)),
		items:       make(map[int64]PurchaseOrderItem, len(s.items)),
		inspections: append([]QualityControlRecord(nil), s.inspections...),
		stock:       make(map[int64]float64, len(s.stock)),
		seq:         s.seq,
		nextID:      s.nextID,
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	return out
}

type memoryProcRepo struct {
	state          procState
	failInsertItem int
	failStock      bool
}

type memoryProcTx struct {
	repo    *memoryProcRepo
	state   *procState
	inserts int
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{state: procState{
		orders: make(map[int64]PurchaseOrder),
		items:  make(map[int64]PurchaseOrderItem),
		stock:  make(map[int64]float64),
	}}
}

func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	tx := &memoryProcTx{repo: r, state: &work}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryProcRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.state.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	po.Items = itemsOf(&r.state, id)
	return po, nil
}

func (r *memoryProcRepo) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range r.state.orders {
		if filter.SupplierID != 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryProcRepo) GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error) {
	item, ok := r.state.items[id]
	if !ok {
		return PurchaseOrderItem{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryProcRepo) ListInspections(ctx context.Context, itemID int64) ([]QualityControlRecord, error) {
	var out []QualityControlRecord
	for _, rec := range r.state.inspections {
		if rec.PurchaseOrderItemID == itemID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func itemsOf(state *procState, orderID int64) []PurchaseOrderItem {
	var items []PurchaseOrderItem
	for _, item := range state.items {
		if item.PurchaseOrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (tx *memoryProcTx) id() int64 {
	tx.state.nextID++
	return tx.state.nextID
}

func (tx *memoryProcTx) NextOrderNumber(ctx context.Context) (int64, error) {
	tx.state.seq++
	return tx.state.seq, nil
}

func (tx *memoryProcTx) InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	po.ID = tx.id()
	tx.state.orders[po.ID] = po
	return po, nil
}

func (tx *memoryProcTx) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := tx.state.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	return po, nil
}

func (tx *memoryProcTx) UpdateOrderStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := tx.state.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	po.Status = status
	tx.state.orders[id] = po
	return nil
}

func (tx *memoryProcTx) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := tx.state.orders[id]; !ok {
		return ErrOrderNotFound
	}
	delete(tx.state.orders, id)
	for itemID, item := range tx.state.items {
		if item.PurchaseOrderID == id {
			delete(tx.state.items, itemID)
		}
	}
	return nil
}

func (tx *memoryProcTx) ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error) {
	return itemsOf(tx.state, orderID), nil
}

func (tx *memoryProcTx) GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error) {
	item, ok := tx.state.items[id]
	if !ok {
		return PurchaseOrderItem{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryProcTx) InsertItem(ctx context.Context, item PurchaseOrderItem) (PurchaseOrderItem, error) {
	tx.inserts++
	if tx.repo.failInsertItem > 0 && tx.inserts == tx.repo.failInsertItem {
		return PurchaseOrderItem{}, errors.New("connection reset")
	}
	item.ID = tx.id()
	tx.state.items[item.ID] = item
	return item, nil
}

func (tx *memoryProcTx) UpdateItem(ctx context.Context, item PurchaseOrderItem) error {
	if _, ok := tx.state.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	tx.state.items[item.ID] = item
	return nil
}

func (tx *memoryProcTx) DeleteItem(ctx context.Context, id int64) error {
	if _, ok := tx.state.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(tx.state.items, id)
	return nil
}

func (tx *memoryProcTx) SetItemReceived(ctx context.Context, id int64, qty float64) error {
	item, ok := tx.state.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.QuantityReceived = qty
	tx.state.items[id] = item
	return nil
}

func (tx *memoryProcTx) SetItemApproved(ctx context.Context, id int64, qty float64) error {
	item, ok := tx.state.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.QuantityApproved = qty
	tx.state.items[id] = item
	return nil
}

func (tx *memoryProcTx) RecomputeTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	po, ok := tx.state.orders[orderID]
	if !ok {
		return decimal.Zero, ErrOrderNotFound
	}
	po.TotalAmount = SumSubtotals(itemsOf(tx.state, orderID))
	tx.state.orders[orderID] = po
	return po.TotalAmount, nil
}

func (tx *memoryProcTx) InsertInspection(ctx context.Context, rec QualityControlRecord) (QualityControlRecord, error) {
	rec.ID = tx.id()
	tx.state.inspections = append(tx.state.inspections, rec)
	return rec, nil
}

func (tx *memoryProcTx) Stock() StockLedger {
	return memoryStock{tx: tx}
}

type memoryStock struct {
	tx *memoryProcTx
}

func (s memoryStock) Credit(ctx context.Context, productID int64, qty float64, reason string) (inventory.Movement, error) {
	if s.tx.repo.failStock {
		return inventory.Movement{}, &inventory.StockError{ProductID: productID, Reason: "unknown product", Err: inventory.ErrProductNotFound}
	}
	s.tx.state.stock[productID] += qty
	return inventory.Movement{ProductID: productID, Quantity: qty, Kind: inventory.MovementCredit, Reason: reason, OnHand: s.tx.state.stock[productID]}, nil
}

type stubDirectory struct {
	suppliers map[int64]bool
	products  map[int64]bool
}

func (d stubDirectory) SupplierExists(ctx context.Context, id int64) error {
	if !d.suppliers[id] {
		return directory.ErrSupplierNotFound
	}
	return nil
}

func (d stubDirectory) ProductExists(ctx context.Context, id int64) error {
	if !d.products[id] {
		return directory.ErrProductNotFound
	}
	return nil
}

type memoryAudit struct {
	entries []shared.AuditEntry
}

func (a *memoryAudit) Record(ctx context.Context, entry shared.AuditEntry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func newTestService(policy ReceivingPolicy) (*Service, *memoryProcRepo, *memoryAudit) {
	repo := newMemoryProcRepo()
	audit := &memoryAudit{}
	dir := stubDirectory{
		suppliers: map[int64]bool{1: true},
		products:  map[int64]bool{10: true, 11: true, 12: true},
	}
	svc := NewService(repo, dir, audit, policy, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }
	return svc, repo, audit
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func twoItemOrder(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po, err := svc.CreateCompletePurchaseOrder(context.Background(), CreatePurchaseOrderInput{SupplierID: 1}, []ItemInput{
		{ProductID: 10, Quantity: 10, UnitPrice: money("5")},
		{ProductID: 11, Quantity: 4, UnitPrice: money("12.50")},
	})
	require.NoError(t, err)
	return po
}

func assertTotalInvariant(t *testing.T, repo *memoryProcRepo, orderID int64) {
	t.Helper()
	po, err := repo.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.True(t, po.TotalAmount.Equal(SumSubtotals(po.Items)), "total %s != sum %s", po.TotalAmount, SumSubtotals(po.Items))
}

func TestCreateCompletePurchaseOrderComputesTotal(t *testing.T) {
	svc, repo, audit := newTestService(ReceivingPolicy{})

	po := twoItemOrder(t, svc)

	require.Equal(t, "PO-000001", po.Number)
	require.Equal(t, POStatusDraft, po.Status)
	require.Len(t, po.Items, 2)
	require.Equal(t, "100.00", po.TotalAmount.StringFixed(2))
	require.Equal(t, "50.00", po.Items[1].Subtotal.StringFixed(2))
	assertTotalInvariant(t, repo, po.ID)
	require.NotEmpty(t, audit.entries)
}

func TestCreateCompletePurchaseOrderRollsBackOnItemFailure(t *testing.T) {
	svc, repo, _ := newTestService(ReceivingPolicy{})
	repo.failInsertItem = 2

	_, err := svc.CreateCompletePurchaseOrder(context.Background(), CreatePurchaseOrderInput{SupplierID: 1}, []ItemInput{
		{ProductID: 10, Quantity: 1, UnitPrice: money("1")},
		{ProductID: 11, Quantity: 1, UnitPrice: money("1")},
	})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Empty(t, repo.state.orders)
	require.Empty(t, repo.state.items)
}

func TestCreatePurchaseOrderRejectsUnknownReferences(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()

	_, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{SupplierID: 99})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateCompletePurchaseOrder(ctx, CreatePurchaseOrderInput{SupplierID: 1}, []ItemInput{{ProductID: 404, Quantity: 1, UnitPrice: money("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateCompletePurchaseOrder(ctx, CreatePurchaseOrderInput{SupplierID: 1}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestItemMutationsKeepTotalInvariant(t *testing.T) {
	svc, repo, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()

	po, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{SupplierID: 1, Notes: "restock"})
	require.NoError(t, err)
	require.True(t, po.TotalAmount.IsZero())

	first, err := svc.AddItem(ctx, po.ID, ItemInput{ProductID: 10, Quantity: 3, UnitPrice: money("19.99")})
	require.NoError(t, err)
	assertTotalInvariant(t, repo, po.ID)

	second, err := svc.AddItem(ctx, po.ID, ItemInput{ProductID: 11, Quantity: 2.5, UnitPrice: money("4.10")})
	require.NoError(t, err)
	require.Equal(t, "10.25", second.Subtotal.StringFixed(2))
	assertTotalInvariant(t, repo, po.ID)

	qty := 5.0
	updated, err := svc.UpdateItem(ctx, first.ID, ItemUpdate{Quantity: &qty})
	require.NoError(t, err)
	require.Equal(t, "99.95", updated.Subtotal.StringFixed(2))
	assertTotalInvariant(t, repo, po.ID)

	product := int64(12)
	updated, err = svc.UpdateItem(ctx, second.ID, ItemUpdate{ProductID: &product})
	require.NoError(t, err)
	require.Equal(t, "10.25", updated.Subtotal.StringFixed(2))

	require.NoError(t, svc.RemoveItem(ctx, first.ID))
	assertTotalInvariant(t, repo, po.ID)

	got, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, "10.25", got.TotalAmount.StringFixed(2))

	require.NoError(t, svc.RemoveItem(ctx, second.ID))
	got, err = svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.True(t, got.TotalAmount.IsZero())

	_, err = svc.UpdateItem(ctx, second.ID, ItemUpdate{Quantity: &qty})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.UpdateItem(ctx, second.ID, ItemUpdate{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiveItemsPartialThenComplete(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()
	po := twoItemOrder(t, svc)
	item1, item2 := po.Items[0], po.Items[1]

	res, err := svc.ReceiveItems(ctx, po.ID, []ReceivedItem{
		{ItemID: item1.ID, QuantityReceived: 10},
		{ItemID: item2.ID, QuantityReceived: 2},
	})
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Equal(t, POStatusDraft, res.Order.Status)
	require.Len(t, res.Outstanding, 2)
	require.InDelta(t, 0.0, res.Outstanding[0].Outstanding, 1e-9)
	require.InDelta(t, 2.0, res.Outstanding[1].Outstanding, 1e-9)

	got, err := svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, got.Status)

	res, err = svc.ReceiveItems(ctx, po.ID, []ReceivedItem{{ItemID: item2.ID, QuantityReceived: 4}})
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, POStatusReceived, res.Order.Status)

	got, err = svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)

	_, err = svc.ReceiveItems(ctx, po.ID, []ReceivedItem{{ItemID: item2.ID, QuantityReceived: 4}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.AddItem(ctx, po.ID, ItemInput{ProductID: 10, Quantity: 1, UnitPrice: money("1")})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReceiveItemsValidation(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()
	po := twoItemOrder(t, svc)
	other := twoItemOrder(t, svc)

	_, err := svc.ReceiveItems(ctx, po.ID, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveItems(ctx, po.ID, []ReceivedItem{{ItemID: po.Items[0].ID, QuantityReceived: -1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveItems(ctx, po.ID, []ReceivedItem{{ItemID: other.Items[0].ID, QuantityReceived: 1}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveItems(ctx, po.ID, []ReceivedItem{{ItemID: po.Items[0].ID, QuantityReceived: 11}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ReceiveItems(ctx, 999, []ReceivedItem{{ItemID: po.Items[0].ID, QuantityReceived: 1}})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestReceiveItemsAllowsOverReceiptWhenConfigured(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{AllowOverReceipt: true})
	ctx := context.Background()
	po := twoItemOrder(t, svc)

	res, err := svc.ReceiveItems(ctx, po.ID, []ReceivedItem{
		{ItemID: po.Items[0].ID, QuantityReceived: 12},
		{ItemID: po.Items[1].ID, QuantityReceived: 4},
	})
	require.NoError(t, err)
	require.True(t, res.Complete)
}

func TestStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()

	empty, err := svc.CreatePurchaseOrder(ctx, CreatePurchaseOrderInput{SupplierID: 1})
	require.NoError(t, err)
	_, err = svc.SendPurchaseOrder(ctx, empty.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	po := twoItemOrder(t, svc)
	_, err = svc.ApprovePurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	sent, err := svc.SendPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusSent, sent.Status)

	approved, err := svc.ApprovePurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, approved.Status)

	require.ErrorIs(t, svc.DeletePurchaseOrder(ctx, po.ID), shared.ErrInvalidState)

	cancelled, err := svc.CancelPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusCancelled, cancelled.Status)

	_, err = svc.CancelPurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.ErrorIs(t, svc.RemoveItem(ctx, po.Items[0].ID), shared.ErrInvalidState)

	require.NoError(t, svc.DeletePurchaseOrder(ctx, po.ID))
	_, err = svc.GetPurchaseOrder(ctx, po.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListPurchaseOrdersFilters(t *testing.T) {
	svc, _, _ := newTestService(ReceivingPolicy{})
	ctx := context.Background()
	first := twoItemOrder(t, svc)
	twoItemOrder(t, svc)
	_, err := svc.SendPurchaseOrder(ctx, first.ID)
	require.NoError(t, err)

	sent, err := svc.ListPurchaseOrders(ctx, ListFilter{Status: POStatusSent})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, first.ID, sent[0].ID)

	_, err = svc.ListPurchaseOrders(ctx, ListFilter{Status: "shipped"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestLineSubtotalRoundsToCents(t *testing.T) {
	require.Equal(t, "3.33", LineSubtotal(0.333, money("10")).StringFixed(2))
	require.Equal(t, "0.00", LineSubtotal(1, decimal.Zero).StringFixed(2))
}
