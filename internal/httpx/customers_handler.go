package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-order-fulfillment/internal/customers"
)

type CustomersHandler struct {
	Store *customers.Store
}

type customerReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *CustomersHandler) Register(r *chi.Mux) {
	r.Get("/customers", h.list)
	r.Post("/customers", h.create)
	r.Get("/customers/{id}", h.get)
	r.Put("/customers/{id}", h.update)
	r.Delete("/customers/{id}", h.delete)
}

func (h *CustomersHandler) decode(w http.ResponseWriter, r *http.Request) (*customers.Customer, bool) {
	var req customerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return nil, false
	}
	if req.Name == "" || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and email are required"})
		return nil, false
	}
	return &customers.Customer{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}, true
}

func (h *CustomersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cs, err := h.Store.ListCustomers(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if cs == nil {
		cs = []customers.Customer{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CustomersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Store.GetCustomer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomersHandler) create(w http.ResponseWriter, r *http.Request) {
	c, ok := h.decode(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	created, err := h.Store.CreateCustomer(ctx, c)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CustomersHandler) update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.decode(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.Store.UpdateCustomer(ctx, chi.URLParam(r, "id"), c)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CustomersHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.DeleteCustomer(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
