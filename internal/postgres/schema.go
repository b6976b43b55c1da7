package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const ddl = `
CREATE TABLE IF NOT EXISTS customers (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT NOT NULL UNIQUE,
	phone       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	price          NUMERIC(18,2) NOT NULL CHECK (price >= 0),
	stock_quantity INT NOT NULL CHECK (stock_quantity >= 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_id      TEXT NOT NULL REFERENCES customers(id),
	status           TEXT NOT NULL,
	total_amount     NUMERIC(18,2) NOT NULL,
	shipping_address TEXT NOT NULL DEFAULT '',
	shipped_date     TIMESTAMPTZ,
	delivered_date   TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);

CREATE TABLE IF NOT EXISTS order_items (
	id          TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id  TEXT NOT NULL REFERENCES products(id),
	quantity    INT NOT NULL CHECK (quantity > 0),
	unit_price  NUMERIC(18,2) NOT NULL,
	total_price NUMERIC(18,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
`

// EnsureSchema creates all tables if they do not exist yet.
// The stock_quantity CHECK is the last line of defense against oversell.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type seedProduct struct {
	name, description string
	price             string
	stock             int
}

type seedCustomer struct {
	name, email, phone, address string
}

// Seed loads demo catalog data, but only into an empty database: if either
// products or customers already contain rows the seed is skipped entirely.
func Seed(ctx context.Context, db *pgxpool.Pool) error {
	var products, customers int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&products); err != nil {
		return err
	}
	if err := db.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&customers); err != nil {
		return err
	}
	if products > 0 || customers > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	prodRows := []seedProduct{
		{"Laptop", "High-performance laptop with 16GB RAM and 512GB SSD", "6999.99", 25},
		{"Smartphone", "Latest model with 128GB storage and 5G", "4999.99", 50},
		{"Headphones", "Noise-cancelling over-ear headphones", "999.99", 100},
		{"Tablet", "10-inch tablet with 64GB storage", "2499.99", 30},
		{"Smart Watch", "Fitness tracking and notifications", "1499.99", 40},
	}
	prodIDs := make([]string, len(prodRows))
	for i, p := range prodRows {
		prodIDs[i] = uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO products(id, name, description, price, stock_quantity)
			VALUES ($1,$2,$3,$4,$5)`,
			prodIDs[i], p.name, p.description, p.price, p.stock); err != nil {
			return fmt.Errorf("seed product %q: %w", p.name, err)
		}
	}

	custRows := []seedCustomer{
		{"Zhang San", "zhangsan@example.com", "138-1234-5678", "123 Haidian District, Beijing"},
		{"Li Si", "lisi@example.com", "139-8765-4321", "456 Pudong New Area, Shanghai"},
		{"Wang Wu", "wangwu@example.com", "137-5555-7777", "789 Tianhe District, Guangzhou"},
	}
	custIDs := make([]string, len(custRows))
	for i, c := range custRows {
		custIDs[i] = uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO customers(id, name, email, phone, address)
			VALUES ($1,$2,$3,$4,$5)`,
			custIDs[i], c.name, c.email, c.phone, c.address); err != nil {
			return fmt.Errorf("seed customer %q: %w", c.name, err)
		}
	}

	now := time.Now().UTC()
	type seedItem struct {
		product int
		qty     int
	}
	type seedOrder struct {
		customer  int
		status    string
		created   time.Time
		shipped   *time.Time
		delivered *time.Time
		items     []seedItem
	}
	ts := func(daysAgo int) *time.Time {
		t := now.AddDate(0, 0, -daysAgo)
		return &t
	}
	orderRows := []seedOrder{
		{0, "DELIVERED", now.AddDate(0, 0, -10), ts(8), ts(5), []seedItem{{0, 1}, {2, 2}}},
		{1, "SHIPPED", now.AddDate(0, 0, -3), ts(1), nil, []seedItem{{1, 1}, {4, 1}}},
		{2, "PROCESSING", now.AddDate(0, 0, -1), nil, nil, []seedItem{{3, 2}}},
	}
	for _, o := range orderRows {
		orderID := uuid.NewString()
		total := decimal.Zero
		type line struct {
			product     string
			qty         int
			unit, total string
		}
		lines := make([]line, 0, len(o.items))
		for _, it := range o.items {
			unit, err := decimal.NewFromString(prodRows[it.product].price)
			if err != nil {
				return err
			}
			lineTotal := unit.Mul(decimal.NewFromInt(int64(it.qty)))
			total = total.Add(lineTotal)
			lines = append(lines, line{prodIDs[it.product], it.qty, unit.String(), lineTotal.String()})
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders(id, customer_id, status, total_amount, shipping_address,
			                   shipped_date, delivered_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
			orderID, custIDs[o.customer], o.status, total.String(),
			custRows[o.customer].address, o.shipped, o.delivered, o.created); err != nil {
			return fmt.Errorf("seed order: %w", err)
		}
		for _, l := range lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items(id, order_id, product_id, quantity, unit_price, total_price)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				uuid.NewString(), orderID, l.product, l.qty, l.unit, l.total); err != nil {
				return fmt.Errorf("seed order item: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}
