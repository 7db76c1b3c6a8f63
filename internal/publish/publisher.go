package publish

import (
	"context"
	"encoding/json"
	"time"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
)

// Transport is the underlying fan-out mechanism. Delivery is best-effort and
// at-most-once per message; trackers recover from missed pushes by re-reading
// the store.
type Transport interface {
	Publish(ctx context.Context, topic, correlationID string, body []byte) error
}

// Publisher decides what gets announced and on which topic. It never fails
// the operation it is attached to: transport errors are logged and dropped.
type Publisher struct {
	transport Transport
	lg        *logger.Logger
}

func New(t Transport, lg *logger.Logger) *Publisher {
	return &Publisher{transport: t, lg: lg}
}

// OrderChanged notifies subscribers of one order (topic "order.<kind>").
func (p *Publisher) OrderChanged(ctx context.Context, ev domain.OrderEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	p.send(ctx, "order."+ev.Kind, ev.OrderID, ev)
}

// QueueShifted notifies subscribers of a restaurant's queue that positions
// need recomputing (topic "queue.<restaurant_id>").
func (p *Publisher) QueueShifted(ctx context.Context, restaurantID, orderID string) {
	ev := domain.QueueEvent{
		RestaurantID: restaurantID,
		Kind:         domain.ChangeQueueShifted,
		OrderID:      orderID,
		OccurredAt:   time.Now().UTC(),
	}
	p.send(ctx, "queue."+restaurantID, orderID, ev)
}

func (p *Publisher) send(ctx context.Context, topic, correlationID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.lg.Error("publish_marshal_failed", err, map[string]any{"topic": topic})
		return
	}
	if err := p.transport.Publish(ctx, topic, correlationID, body); err != nil {
		p.lg.Error("publish_failed", err, map[string]any{"topic": topic})
		return
	}
	p.lg.Debug("published", map[string]any{"topic": topic, "correlation_id": correlationID})
}
