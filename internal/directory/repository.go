package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads suppliers and products from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const getSupplierSQL = `SELECT id, name, document, phone, email, active, created_at FROM suppliers WHERE id = $1`

// GetSupplier loads a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, getSupplierSQL, id).Scan(&s.ID, &s.Name, &s.Document, &s.Phone, &s.Email, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrSupplierNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

const getProductSQL = `SELECT id, sku, name FROM products WHERE id = $1`

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.SKU, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

const listSuppliersSQL = `SELECT id, name, document, phone, email, active, created_at
FROM suppliers
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
ORDER BY name, id
LIMIT $2 OFFSET $3`

// ListSuppliers returns suppliers whose name contains search.
func (r *Repository) ListSuppliers(ctx context.Context, search string, limit, offset int) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, listSuppliersSQL, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Document, &s.Phone, &s.Email, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
