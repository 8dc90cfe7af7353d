package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopledger/shopledger/internal/shared"
)

// MovementKind enumerates stock movements recorded by the ledger.
type MovementKind string

const (
	// MovementCredit increases on-hand quantity.
	MovementCredit MovementKind = "credit"
)

// Movement is one append-only entry of the stock ledger.
type Movement struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product_id"`
	Quantity  float64      `json:"quantity"`
	Kind      MovementKind `json:"kind"`
	Reason    string       `json:"reason"`
	RefID     uuid.UUID    `json:"ref_id"`
	OnHand    float64      `json:"on_hand"`
	CreatedAt time.Time    `json:"created_at"`
}

// StockLevel is the current on-hand quantity of a product.
type StockLevel struct {
	ProductID int64     `json:"product_id"`
	OnHand    float64   `json:"on_hand"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrProductNotFound indicates the product row does not exist.
var ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)

// StockError reports a stock ledger rejection.
type StockError struct {
	ProductID int64
	Reason    string
	Err       error
}

func (e *StockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inventory: product %d: %s: %v", e.ProductID, e.Reason, e.Err)
	}
	return fmt.Sprintf("inventory: product %d: %s", e.ProductID, e.Reason)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// IsStockError reports whether err carries a *StockError.
func IsStockError(err error) bool {
	var se *StockError
	return errors.As(err, &se)
}
