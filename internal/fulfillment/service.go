package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

// StatusUpdater is the slice of the order service the worker needs.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, to orders.Status) (*orders.Order, error)
}

// Service picks up freshly created orders and moves them into fulfillment:
// PENDING -> PROCESSING, through the same lifecycle graph as everyone else.
type Service struct {
	Orders      StatusUpdater
	Redis       *redis.Client
	Producer    *kafkax.Producer // publishes order.status
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderCreated is wired as the consumer handler for order.created.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil // ignore
	}

	// dedup via redis (event_id); a miss just means we may process twice,
	// which the transition graph absorbs
	dkey := fmt.Sprintf(redisx.KeyDedup, "fulfillment", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	o, err := s.Orders.UpdateStatus(ctx, p.OrderID, orders.StatusProcessing)
	if err != nil {
		// an order that is gone or already past PENDING is not retryable
		var ite *orders.InvalidTransitionError
		if errors.Is(err, orders.ErrOrderNotFound) || errors.As(err, &ite) {
			s.Log.Info("skip order",
				zap.String("order_id", p.OrderID),
				zap.Error(err))
			return nil
		}
		return err
	}

	s.publishStatusChanged(o.ID, orders.StatusPending, o.Status, env.TraceID)
	return nil
}

func (s *Service) publishStatusChanged(orderID string, from, to orders.Status, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(orders.OrderStatusChangedPayload{OrderID: orderID, From: from, To: to}),
	}
	s.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
