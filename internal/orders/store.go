package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the Postgres-backed OrderStore.
type Store struct{ DB *pgxpool.Pool }

const orderCols = `id, customer_id, status, total_amount::text, shipping_address,
	shipped_date, delivered_date, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status, total string
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &total, &o.ShippingAddress,
		&o.ShippedDate, &o.DeliveredDate, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = Status(status)
	var err error
	o.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) InsertOrder(ctx context.Context, o *Order) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o.ID = uuid.NewString()
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, total_amount, shipping_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		o.ID, o.CustomerID, string(o.Status), o.TotalAmount.String(), o.ShippingAddress, now); err != nil {
		return nil, err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.ID = uuid.NewString()
		it.OrderID = o.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice.String(), it.TotalPrice.String()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]Order, error) {
	return s.listOrders(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC`)
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderCols+` FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
}

func (s *Store) listOrders(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items, err = s.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price::text, total_price::text
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		var unit, total string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &unit, &total); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus locks the order row, validates the transition against the
// lifecycle graph and writes the new status plus date stamps in one tx.
func (s *Store) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := Transition(o, to, time.Now().UTC()); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, shipped_date=$3, delivered_date=$4, updated_at=$5
		WHERE id=$1`,
		id, string(o.Status), o.ShippedDate, o.DeliveredDate, o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.Items, err = s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DeleteOrder removes the order; items go with it via ON DELETE CASCADE.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
