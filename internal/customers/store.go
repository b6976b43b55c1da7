package customers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var ErrCustomerNotFound = errors.New("customer not found")

type Store struct{ DB *pgxpool.Pool }

const customerCols = `id, name, email, phone, address, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	c, err := scanCustomer(s.DB.QueryRow(ctx, `SELECT `+customerCols+` FROM customers WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+customerCols+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, c *Customer) (*Customer, error) {
	c.ID = uuid.NewString()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.DB.Exec(ctx, `
		INSERT INTO customers(id, name, email, phone, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, now)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, id string, c *Customer) (*Customer, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE customers SET name=$2, email=$3, phone=$4, address=$5, updated_at=now()
		WHERE id=$1`,
		id, c.Name, c.Email, c.Phone, c.Address)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrCustomerNotFound
	}
	return s.GetCustomer(ctx, id)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
