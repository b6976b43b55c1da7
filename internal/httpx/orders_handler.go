package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

type OrdersHandler struct {
	Svc            *orders.Service
	ProducerCreate *kafkax.Producer // order.created
	ProducerStatus *kafkax.Producer // order.status
	Redis          *redis.Client
	Service        string
	Log            *zap.Logger
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Delete("/orders/{id}", h.deleteOrder)
	r.Get("/customers/{id}/orders", h.listCustomerOrders)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.CreateOrder(ctx, req)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publishCreated(o, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves the lightweight status probe: redis first, DB on miss.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	o, err := h.Svc.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Svc.ListOrders(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Svc.ListOrdersByCustomer(ctx, customerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, id, to)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	h.publishStatusChanged(o, to, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.DeleteOrder(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
	w.WriteHeader(http.StatusNoContent)
}

// cacheStatus keeps a short-lived status shortcut in redis; failures are
// ignored, the database stays the source of truth.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publishCreated(o *orders.Order, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:     o.ID,
			CustomerID:  o.CustomerID,
			Items:       o.Items,
			TotalAmount: o.TotalAmount.String(),
		}),
	}
	h.ProducerCreate.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishStatusChanged(o *orders.Order, to orders.Status, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderStatusChangedPayload{
			OrderID: o.ID,
			To:      to,
		}),
	}
	h.ProducerStatus.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
