package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	Status          Status          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address,omitempty"`
	ShippedDate     *time.Time      `json:"shipped_date,omitempty"`
	DeliveredDate   *time.Time      `json:"delivered_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Items           []OrderItem     `json:"items"`
}

// OrderItem captures unit price and line total at order time; later catalog
// price changes never touch persisted items.
type OrderItem struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
