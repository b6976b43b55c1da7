package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
)

// CatalogStore is the narrow contract to product data. The service never
// touches stock except through ReserveStock/ReleaseStock.
type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	ReserveStock(ctx context.Context, id string, qty int) error
	ReleaseStock(ctx context.Context, id string, qty int) error
}

type CustomerStore interface {
	GetCustomer(ctx context.Context, id string) (*customers.Customer, error)
}

// OrderStore persists orders. InsertOrder must write the order and its items
// as one durable unit and assign identity and timestamps. UpdateStatus must
// apply Transition under single-row atomicity.
type OrderStore interface {
	InsertOrder(ctx context.Context, o *Order) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, to Status) (*Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

type Service struct {
	catalog   CatalogStore
	customers CustomerStore
	orders    OrderStore
	log       *zap.Logger
}

func NewService(cat CatalogStore, cust CustomerStore, ord OrderStore, log *zap.Logger) *Service {
	return &Service{catalog: cat, customers: cust, orders: ord, log: log}
}

type CreateOrderInput struct {
	CustomerID      string      `json:"customer_id"`
	ShippingAddress string      `json:"shipping_address"`
	Items           []ItemInput `json:"items"`
}

type reservedLine struct {
	productID  string
	qty        int
	unit, line decimal.Decimal
}

// CreateOrder runs the whole intake as one logical unit: validate, reserve
// stock item by item in request order, price at reservation time, persist.
// Any failure after the first successful reservation releases everything
// reserved by this attempt before the error is returned, so no partial
// deduction ever survives and no reader sees an order that does not match
// its reservations.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrValidation)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return nil, fmt.Errorf("%w: item product_id is required", ErrValidation)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrValidation, it.ProductID)
		}
	}

	if _, err := s.customers.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, wrapStore(err)
	}

	reserved := make([]reservedLine, 0, len(in.Items))
	for _, it := range in.Items {
		// A cancelled request must unwind exactly like a failed item.
		if err := ctx.Err(); err != nil {
			s.releaseAll(reserved)
			return nil, err
		}
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			s.releaseAll(reserved)
			return nil, wrapStore(err)
		}
		if err := s.catalog.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.releaseAll(reserved)
			return nil, wrapStore(err)
		}
		unit, line := Line(p.Price, it.Quantity)
		reserved = append(reserved, reservedLine{productID: it.ProductID, qty: it.Quantity, unit: unit, line: line})
	}

	total := decimal.Zero
	items := make([]OrderItem, 0, len(reserved))
	for _, r := range reserved {
		total = total.Add(r.line)
		items = append(items, OrderItem{
			ProductID:  r.productID,
			Quantity:   r.qty,
			UnitPrice:  r.unit,
			TotalPrice: r.line,
		})
	}

	order := &Order{
		CustomerID:      in.CustomerID,
		Status:          StatusPending,
		TotalAmount:     total,
		ShippingAddress: in.ShippingAddress,
		Items:           items,
	}
	persisted, err := s.orders.InsertOrder(ctx, order)
	if err != nil {
		s.releaseAll(reserved)
		return nil, wrapStore(err)
	}
	return persisted, nil
}

// releaseAll compensates reservations of a failed attempt, newest first.
// Runs on a fresh context so an already-cancelled request still cleans up.
func (s *Service) releaseAll(reserved []reservedLine) {
	if len(reserved) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.catalog.ReleaseStock(ctx, r.productID, r.qty); err != nil {
			s.log.Error("release reserved stock",
				zap.String("product_id", r.productID),
				zap.Int("quantity", r.qty),
				zap.Error(err))
		}
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	return o, wrapStore(err)
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	out, err := s.orders.ListOrders(ctx)
	return out, wrapStore(err)
}

func (s *Service) ListOrdersByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		return nil, wrapStore(err)
	}
	out, err := s.orders.ListOrdersByCustomer(ctx, customerID)
	return out, wrapStore(err)
}

// UpdateStatus drives the order through the lifecycle graph. Entering
// CANCELLED hands every item's quantity back to the ledger; the edge is not
// re-enterable, so the release runs exactly once per order.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.orders.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, wrapStore(err)
	}
	if to == StatusCancelled {
		s.releaseItems(o.Items)
	}
	return o, nil
}

// DeleteOrder removes the order and its items. Stock goes back to the ledger
// only while the goods never left the warehouse (PENDING/PROCESSING); a
// cancelled order was already released, a shipped one is gone.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return wrapStore(err)
	}
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return wrapStore(err)
	}
	if o.Status == StatusPending || o.Status == StatusProcessing {
		s.releaseItems(o.Items)
	}
	return nil
}

func (s *Service) releaseItems(items []OrderItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, it := range items {
		if err := s.catalog.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.log.Error("release stock",
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err))
		}
	}
}
