package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto transport status codes. This is the only
// place that knows both vocabularies.
func writeErr(w http.ResponseWriter, err error) {
	var ise *catalog.InsufficientStockError
	if errors.As(err, &ise) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      ise.Error(),
			"product_id": ise.ProductID,
			"requested":  ise.Requested,
			"available":  ise.Available,
		})
		return
	}
	var ite *orders.InvalidTransitionError
	if errors.As(err, &ite) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": ite.Error()})
		return
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, customers.ErrCustomerNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
