package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/shopspring/decimal"
)

type memCatalog struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
}

func (m *memCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memCatalog) ReserveStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	if p.StockQuantity < qty {
		return &catalog.InsufficientStockError{ProductID: id, Requested: qty, Available: p.StockQuantity}
	}
	p.StockQuantity -= qty
	return nil
}

func (m *memCatalog) ReleaseStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.StockQuantity += qty
	}
	return nil
}

type memCustomers struct{ id string }

func (m *memCustomers) GetCustomer(_ context.Context, id string) (*customers.Customer, error) {
	if id != m.id {
		return nil, customers.ErrCustomerNotFound
	}
	return &customers.Customer{ID: id, Name: "t", Email: "t@example.com"}, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
}

func (m *memOrders) InsertOrder(_ context.Context, o *orders.Order) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.NewString()
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	m.orders[o.ID] = &cp
	return o, nil
}

func (m *memOrders) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOrders(_ context.Context) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrders) ListOrdersByCustomer(_ context.Context, customerID string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, to orders.Status) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	if err := orders.Transition(o, to, time.Now().UTC()); err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return orders.ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

const testCustomer = "cust-42"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := zap.NewNop()
	cat := &memCatalog{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "widget", Price: decimal.RequireFromString("10.00"), StockQuantity: 10},
		"p2": {ID: "p2", Name: "gadget", Price: decimal.RequireFromString("5.00"), StockQuantity: 3},
	}}
	svc := orders.NewService(cat, &memCustomers{id: testCustomer}, &memOrders{orders: map[string]*orders.Order{}}, log)

	r := NewRouter()
	h := &OrdersHandler{
		Svc:            svc,
		ProducerCreate: kafkax.NewProducer([]string{"127.0.0.1:1"}, orders.TopicOrderCreated, 64, log),
		ProducerStatus: kafkax.NewProducer([]string{"127.0.0.1:1"}, orders.TopicOrderStatus, 64, log),
		Redis:          redisx.New("127.0.0.1:1"),
		Service:        "test-api",
		Log:            log,
	}
	h.Register(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createTestOrder(t *testing.T, h http.Handler) orders.Order {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/orders", orders.CreateOrderInput{
		CustomerID:      testCustomer,
		ShippingAddress: "1 Test Street",
		Items: []orders.ItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var o orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func TestCreateOrderEndpoint(t *testing.T) {
	h := newTestRouter(t)
	o := createTestOrder(t, h)

	require.Equal(t, orders.StatusPending, o.Status)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.00")), "total %s", o.TotalAmount)
	require.Len(t, o.Items, 2)
}

func TestCreateOrderEndpointBadJSON(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte("{oops")))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderEndpointInsufficientStock(t *testing.T) {
	h := newTestRouter(t)
	w := doJSON(t, h, http.MethodPost, "/orders", orders.CreateOrderInput{
		CustomerID: testCustomer,
		Items:      []orders.ItemInput{{ProductID: "p2", Quantity: 99}},
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "p2", body["product_id"])
	require.EqualValues(t, 99, body["requested"])
	require.EqualValues(t, 3, body["available"])
}

func TestCreateOrderEndpointUnknownProduct(t *testing.T) {
	h := newTestRouter(t)
	w := doJSON(t, h, http.MethodPost, "/orders", orders.CreateOrderInput{
		CustomerID: testCustomer,
		Items:      []orders.ItemInput{{ProductID: "ghost", Quantity: 1}},
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderEndpointNotFound(t *testing.T) {
	h := newTestRouter(t)
	w := doJSON(t, h, http.MethodGet, "/orders/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	h := newTestRouter(t)
	o := createTestOrder(t, h)

	w := doJSON(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", updateStatusReq{Status: "PROCESSING"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// skipping PROCESSING->SHIPPED->DELIVERED is rejected
	w = doJSON(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", updateStatusReq{Status: "DELIVERED"})
	require.Equal(t, http.StatusConflict, w.Code)

	// unknown status value is a validation error
	w = doJSON(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", updateStatusReq{Status: "LOST"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteOrderEndpoint(t *testing.T) {
	h := newTestRouter(t)
	o := createTestOrder(t, h)

	w := doJSON(t, h, http.MethodDelete, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodGet, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderStatusEndpoint(t *testing.T) {
	h := newTestRouter(t)
	o := createTestOrder(t, h)

	// cache is unreachable in tests, so this exercises the DB fallback
	w := doJSON(t, h, http.MethodGet, "/orders/"+o.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "PENDING", body["status"])
}

func TestListCustomerOrdersEndpoint(t *testing.T) {
	h := newTestRouter(t)
	createTestOrder(t, h)

	w := doJSON(t, h, http.MethodGet, "/customers/"+testCustomer+"/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = doJSON(t, h, http.MethodGet, "/customers/nobody/orders", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
