package directory

import (
	"fmt"
	"time"

	"github.com/shopledger/shopledger/internal/shared"
)

// Supplier is the read model of a supplier referenced by orders and payables.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is the read model of a product referenced by order items.
// On-hand quantity belongs to inventory and is not carried here.
type Product struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

var (
	// ErrSupplierNotFound indicates the supplier does not exist.
	ErrSupplierNotFound = fmt.Errorf("supplier %w", shared.ErrNotFound)
	// ErrProductNotFound indicates the product does not exist.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
)
