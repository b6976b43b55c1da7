package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
)

var (
	ErrValidation       = errors.New("invalid order request")
	ErrOrderNotFound    = errors.New("order not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// wrapStore passes domain errors through untouched and tags everything else
// as a persistence failure, so callers can tell a rule violation from an
// unavailable backing store.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, catalog.ErrProductNotFound) ||
		errors.Is(err, customers.ErrCustomerNotFound) {
		return err
	}
	var ise *catalog.InsufficientStockError
	var ite *InvalidTransitionError
	if errors.As(err, &ise) || errors.As(err, &ite) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
