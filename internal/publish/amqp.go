package publish

import (
	"context"

	"github.com/google/uuid"

	"campus-eats/internal/common/mq"
)

// AMQPTransport publishes to the orders topic exchange, one routing key per
// publisher topic.
type AMQPTransport struct {
	client *mq.Client
}

func NewAMQPTransport(c *mq.Client) *AMQPTransport { return &AMQPTransport{client: c} }

func (t *AMQPTransport) Publish(ctx context.Context, topic, correlationID string, body []byte) error {
	return t.client.Publish(ctx, topic, uuid.NewString(), correlationID, body)
}
