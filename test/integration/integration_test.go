package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/postgres"
)

type env struct {
	catalog   *catalog.Store
	customers *customers.Store
	orders    *orders.Store
	svc       *orders.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}
	ctx := context.Background()

	pgc, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("fulfillment"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgc) })

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, postgres.EnsureSchema(ctx, db))

	cat := &catalog.Store{DB: db}
	cust := &customers.Store{DB: db}
	ord := &orders.Store{DB: db}
	return &env{
		catalog:   cat,
		customers: cust,
		orders:    ord,
		svc:       orders.NewService(cat, cust, ord, zap.NewNop()),
	}
}

func (e *env) product(t *testing.T, name, price string, stock int) *catalog.Product {
	t.Helper()
	p, err := e.catalog.CreateProduct(context.Background(), &catalog.Product{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func (e *env) customer(t *testing.T, name, email string) *customers.Customer {
	t.Helper()
	c, err := e.customers.CreateCustomer(context.Background(), &customers.Customer{Name: name, Email: email})
	require.NoError(t, err)
	return c
}

func TestLedgerConcurrentReservations(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p := e.product(t, "contested", "1.00", 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.catalog.ReserveStock(ctx, p.ID, 5); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				var ise *catalog.InsufficientStockError
				require.True(t, errors.As(err, &ise), "unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	got, err := e.catalog.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.StockQuantity, "stock must never go negative")

	require.NoError(t, e.catalog.ReleaseStock(ctx, p.ID, 5))
	got, err = e.catalog.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.StockQuantity)
}

func TestLedgerUnknownProduct(t *testing.T) {
	e := setup(t)
	err := e.catalog.ReserveStock(context.Background(), "nope", 1)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestOrderRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p1 := e.product(t, "widget", "10.00", 10)
	p2 := e.product(t, "gadget", "5.00", 10)
	c := e.customer(t, "Ada", "ada@example.com")

	o, err := e.svc.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:      c.ID,
		ShippingAddress: "1 Integration Way",
		Items: []orders.ItemInput{
			{ProductID: p1.ID, Quantity: 2},
			{ProductID: p2.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.00")), "total %s", o.TotalAmount)

	got, err := e.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, got.Status)
	require.Len(t, got.Items, 2)
	require.True(t, got.TotalAmount.Equal(o.TotalAmount))

	p1After, err := e.catalog.GetProduct(ctx, p1.ID)
	require.NoError(t, err)
	require.Equal(t, 8, p1After.StockQuantity)
	p2After, err := e.catalog.GetProduct(ctx, p2.ID)
	require.NoError(t, err)
	require.Equal(t, 9, p2After.StockQuantity)

	// lifecycle: pending -> processing -> shipped, dates stamped once
	_, err = e.svc.UpdateStatus(ctx, o.ID, orders.StatusProcessing)
	require.NoError(t, err)
	shipped, err := e.svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedDate)

	again, err := e.svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	require.NoError(t, err)
	require.True(t, again.ShippedDate.Equal(*shipped.ShippedDate))

	_, err = e.svc.UpdateStatus(ctx, o.ID, orders.StatusPending)
	var ite *orders.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}

func TestOrderCreationRollsBackOnShortage(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p1 := e.product(t, "plenty", "10.00", 10)
	p2 := e.product(t, "scarce", "5.00", 1)
	c := e.customer(t, "Bob", "bob@example.com")

	_, err := e.svc.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID: c.ID,
		Items: []orders.ItemInput{
			{ProductID: p1.ID, Quantity: 3},
			{ProductID: p2.ID, Quantity: 2},
		},
	})
	var ise *catalog.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, p2.ID, ise.ProductID)
	require.Equal(t, 1, ise.Available)

	// every reservation of the failed attempt is compensated
	p1After, err := e.catalog.GetProduct(ctx, p1.ID)
	require.NoError(t, err)
	require.Equal(t, 10, p1After.StockQuantity)
	p2After, err := e.catalog.GetProduct(ctx, p2.ID)
	require.NoError(t, err)
	require.Equal(t, 1, p2After.StockQuantity)

	list, err := e.svc.ListOrdersByCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestOrderDeleteCascadesAndReleases(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p := e.product(t, "thing", "2.50", 8)
	c := e.customer(t, "Cleo", "cleo@example.com")

	o, err := e.svc.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID: c.ID,
		Items:      []orders.ItemInput{{ProductID: p.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	require.NoError(t, e.svc.DeleteOrder(ctx, o.ID))

	_, err = e.svc.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, orders.ErrOrderNotFound)

	// pending order: deletion hands the stock back
	pAfter, err := e.catalog.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 8, pAfter.StockQuantity)
}

func TestSeedIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, postgres.Seed(ctx, e.catalog.DB))
	ps, err := e.catalog.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 5)

	// second run must not duplicate anything
	require.NoError(t, postgres.Seed(ctx, e.catalog.DB))
	ps, err = e.catalog.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 5)

	// seeded orders carry totals equal to the sum of their items
	all, err := e.orders.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, o := range all {
		sum := decimal.Zero
		for _, it := range o.Items {
			sum = sum.Add(it.TotalPrice)
		}
		require.True(t, o.TotalAmount.Equal(sum), "order %s total %s != %s", o.ID, o.TotalAmount, sum)
	}
}
