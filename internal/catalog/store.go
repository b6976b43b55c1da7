package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct{ DB *pgxpool.Pool }

const productCols = `id, name, description, price::text, stock_quantity, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	p.ID = uuid.NewString()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, price, stock_quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		p.ID, p.Name, p.Description, p.Price.String(), p.StockQuantity, now)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, p *Product) (*Product, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		SET name=$2, description=$3, price=$4, stock_quantity=$5, updated_at=now()
		WHERE id=$1`,
		id, p.Name, p.Description, p.Price.String(), p.StockQuantity)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
