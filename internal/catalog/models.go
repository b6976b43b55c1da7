package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError reports a reservation that would oversell a product.
// Available is the stock observed under the row lock at the time of the check.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
