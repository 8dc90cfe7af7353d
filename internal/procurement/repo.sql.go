package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/inventory"
)

const orderColumns = `id, number, supplier_id, status, expected_delivery_date, total_amount, notes, created_at, updated_at`

const itemColumns = `id, purchase_order_id, product_id, quantity_ordered, quantity_received, quantity_approved, unit_price, subtotal`

const getOrderSQL = `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1`

const lockOrderSQL = `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id = $1 FOR UPDATE`

const listOrdersSQL = `SELECT ` + orderColumns + `
FROM purchase_orders
WHERE ($1::bigint = 0 OR supplier_id = $1)
  AND ($2::text = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

const nextOrderNumberSQL = `SELECT nextval('purchase_order_number_seq')`

const insertOrderSQL = `INSERT INTO purchase_orders (number, supplier_id, status, expected_delivery_date, total_amount, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

const updateOrderStatusSQL = `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`

const deleteOrderSQL = `DELETE FROM purchase_orders WHERE id = $1`

const recomputeTotalSQL = `UPDATE purchase_orders
SET total_amount = COALESCE((SELECT SUM(subtotal) FROM purchase_order_items WHERE purchase_order_id = $1), 0),
    updated_at = NOW()
WHERE id = $1
RETURNING total_amount`

const listItemsSQL = `SELECT ` + itemColumns + ` FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`

const getItemSQL = `SELECT ` + itemColumns + ` FROM purchase_order_items WHERE id = $1`

const insertItemSQL = `INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity_ordered, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

const updateItemSQL = `UPDATE purchase_order_items
SET product_id = $2, quantity_ordered = $3, unit_price = $4, subtotal = $5, updated_at = NOW()
WHERE id = $1`

const deleteItemSQL = `DELETE FROM purchase_order_items WHERE id = $1`

const setItemReceivedSQL = `UPDATE purchase_order_items SET quantity_received = $2, updated_at = NOW() WHERE id = $1`

const setItemApprovedSQL = `UPDATE purchase_order_items SET quantity_approved = $2, updated_at = NOW() WHERE id = $1`

const insertInspectionSQL = `INSERT INTO quality_control_records
    (purchase_order_item_id, inspector_id, inspection_date, status, approved_quantity, rejected_quantity, notes, defects_found)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

const listInspectionsSQL = `SELECT id, purchase_order_item_id, inspector_id, inspection_date, status, approved_quantity, rejected_quantity, notes, defects_found
FROM quality_control_records
WHERE purchase_order_item_id = $1
ORDER BY inspection_date, id`

type txRepo struct {
	tx    pgx.Tx
	stock *inventory.Ledger
}

func newTxRepo(tx pgx.Tx) *txRepo {
	return &txRepo{tx: tx, stock: inventory.NewTxLedger(tx)}
}

func (r *txRepo) Stock() StockLedger {
	return r.stock
}

func (r *txRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, nextOrderNumberSQL).Scan(&seq)
	return seq, err
}

func (r *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, insertOrderSQL, po.Number, po.SupplierID, string(po.Status), po.ExpectedDeliveryDate,
		po.TotalAmount, po.Notes, po.CreatedAt, po.UpdatedAt).Scan(&po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *txRepo) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return scanOrder(r.tx.QueryRow(ctx, lockOrderSQL, id))
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status POStatus) error {
	return execOne(ctx, r.tx, ErrOrderNotFound, updateOrderStatusSQL, id, string(status))
}

func (r *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	return execOne(ctx, r.tx, ErrOrderNotFound, deleteOrderSQL, id)
}

func (r *txRepo) ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error) {
	return queryItems(ctx, r.tx, orderID)
}

func (r *txRepo) GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error) {
	return scanItem(r.tx.QueryRow(ctx, getItemSQL, id))
}

func (r *txRepo) InsertItem(ctx context.Context, item PurchaseOrderItem) (PurchaseOrderItem, error) {
	err := r.tx.QueryRow(ctx, insertItemSQL, item.PurchaseOrderID, item.ProductID, item.QuantityOrdered, item.UnitPrice, item.Subtotal).Scan(&item.ID)
	if err != nil {
		return PurchaseOrderItem{}, err
	}
	return item, nil
}

func (r *txRepo) UpdateItem(ctx context.Context, item PurchaseOrderItem) error {
	return execOne(ctx, r.tx, ErrItemNotFound, updateItemSQL, item.ID, item.ProductID, item.QuantityOrdered, item.UnitPrice, item.Subtotal)
}

func (r *txRepo) DeleteItem(ctx context.Context, id int64) error {
	return execOne(ctx, r.tx, ErrItemNotFound, deleteItemSQL, id)
}

func (r *txRepo) SetItemReceived(ctx context.Context, id int64, qty float64) error {
	return execOne(ctx, r.tx, ErrItemNotFound, setItemReceivedSQL, id, qty)
}

func (r *txRepo) SetItemApproved(ctx context.Context, id int64, qty float64) error {
	return execOne(ctx, r.tx, ErrItemNotFound, setItemApprovedSQL, id, qty)
}

func (r *txRepo) RecomputeTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.tx.QueryRow(ctx, recomputeTotalSQL, orderID).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrOrderNotFound
		}
		return decimal.Zero, err
	}
	return total, nil
}

func (r *txRepo) InsertInspection(ctx context.Context, rec QualityControlRecord) (QualityControlRecord, error) {
	defects := rec.DefectsFound
	if defects == nil {
		defects = []string{}
	}
	err := r.tx.QueryRow(ctx, insertInspectionSQL, rec.PurchaseOrderItemID, rec.InspectorID, rec.InspectionDate,
		string(rec.Status), rec.ApprovedQuantity, rec.RejectedQuantity, rec.Notes, defects).Scan(&rec.ID)
	if err != nil {
		return QualityControlRecord{}, err
	}
	rec.DefectsFound = defects
	return rec, nil
}

func execOne(ctx context.Context, tx pgx.Tx, notFound error, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
