package notify

import (
	"context"
	"encoding/json"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/common/mq"
)

// Run consumes the notifications queue and logs every order/queue event.
// This is a diagnostic tap on the fan-out, not part of the correctness path:
// trackers that miss a push recover by polling the store.
func Run(ctx context.Context, client *mq.Client, lg *logger.Logger) error {
	deliveries, err := client.Consume(mq.NotificationsQueue, "notification-subscriber", 10)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			lg.Info("graceful_shutdown", nil)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var payload map[string]any
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				lg.Error("notification_malformed", err, map[string]any{"routing_key": d.RoutingKey})
				_ = d.Nack(false, false)
				continue
			}
			lg.Info("notification_received", map[string]any{
				"routing_key":    d.RoutingKey,
				"correlation_id": d.CorrelationId,
				"payload":        payload,
			})
			_ = d.Ack(false)
		}
	}
}
