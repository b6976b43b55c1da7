package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ReserveStock atomically decrements a product's stock by qty. The row is
// locked for the duration of the check, so no interleaving of concurrent
// reservations can drive stock below zero. On shortage nothing is mutated
// and the returned InsufficientStockError carries the stock observed under
// the lock.
func (s *Store) ReserveStock(ctx context.Context, productID string, qty int) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if stock < qty {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReleaseStock is the inverse of ReserveStock, used on cancellation and on
// compensating rollback of a failed multi-item reservation.
func (s *Store) ReleaseStock(ctx context.Context, productID string, qty int) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
