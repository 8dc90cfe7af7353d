package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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
	NextOrderNumber(ctx context.Context) (int64, error)
	InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	LockOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrderStatus(ctx context.Context, id int64, status POStatus) error
	DeleteOrder(ctx context.Context, id int64) error
	ListItems(ctx context.Context, orderID int64) ([]PurchaseOrderItem, error)
	GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error)
	InsertItem(ctx context.Context, item PurchaseOrderItem) (PurchaseOrderItem, error)
	UpdateItem(ctx context.Context, item PurchaseOrderItem) error
	DeleteItem(ctx context.Context, id int64) error
	SetItemReceived(ctx context.Context, id int64, qty float64) error
	SetItemApproved(ctx context.Context, id int64, qty float64) error
	RecomputeTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)
	InsertInspection(ctx context.Context, rec QualityControlRecord) (QualityControlRecord, error)
	Stock() StockLedger
}

// WithTx wraps callback in a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepo(tx))
	})
}

// GetOrder returns the order and its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	return po, nil
}

// ListOrders returns order headers matching filter.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, filter.SupplierID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, id int64) (PurchaseOrderItem, error) {
	return scanItem(r.pool.QueryRow(ctx, getItemSQL, id))
}

// ListInspections returns the inspections of an item, oldest first.
func (r *Repository) ListInspections(ctx context.Context, itemID int64) ([]QualityControlRecord, error) {
	rows, err := r.pool.Query(ctx, listInspectionsSQL, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QualityControlRecord
	for rows.Next() {
		var rec QualityControlRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.PurchaseOrderItemID, &rec.InspectorID, &rec.InspectionDate, &status,
			&rec.ApprovedQuantity, &rec.RejectedQuantity, &rec.Notes, &rec.DefectsFound); err != nil {
			return nil, err
		}
		rec.Status = InspectionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, orderID int64) ([]PurchaseOrderItem, error) {
	rows, err := q.Query(ctx, listItemsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseOrderItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &po.ExpectedDeliveryDate, &po.TotalAmount, &po.Notes, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrOrderNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func scanItem(row pgx.Row) (PurchaseOrderItem, error) {
	var item PurchaseOrderItem
	err := row.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.QuantityOrdered, &item.QuantityReceived,
		&item.QuantityApproved, &item.UnitPrice, &item.Subtotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrderItem{}, ErrItemNotFound
		}
		return PurchaseOrderItem{}, err
	}
	return item, nil
}
