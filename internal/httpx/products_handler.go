package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-fulfillment/internal/catalog"
)

type ProductsHandler struct {
	Store *catalog.Store
}

type productReq struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.list)
	r.Post("/products", h.create)
	r.Get("/products/{id}", h.get)
	r.Put("/products/{id}", h.update)
	r.Delete("/products/{id}", h.delete)
}

func (h *ProductsHandler) decode(w http.ResponseWriter, r *http.Request) (*catalog.Product, bool) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return nil, false
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return nil, false
	}
	if req.Price.IsNegative() || req.StockQuantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price and stock_quantity must be non-negative"})
		return nil, false
	}
	return &catalog.Product{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	}, true
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decode(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	created, err := h.Store.CreateProduct(ctx, p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decode(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.Store.UpdateProduct(ctx, chi.URLParam(r, "id"), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
