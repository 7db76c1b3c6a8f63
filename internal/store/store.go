package store

import (
	"context"

	"campus-eats/internal/domain"
)

// OrderStore is the durable-state surface the engine consumes. The store is
// the single source of truth; nothing above it keeps its own copy of order or
// queue state.
type OrderStore interface {
	// GetOrder loads an order with its items. Returns domain.ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// GetOrderForUser is GetOrder with an ownership filter. A missing order and
	// a foreign order are indistinguishable to the caller
	// (domain.ErrNotFoundOrUnauthorized).
	GetOrderForUser(ctx context.Context, orderID, userID string) (domain.Order, error)

	// AttachSessionIf stores the payment session reference on the order only if
	// the stored reference still equals oldRef (empty for none). Returns false
	// when a concurrent checkout attached a different session first.
	AttachSessionIf(ctx context.Context, orderID, oldRef, newRef string) (bool, error)

	// MarkPaidAndPreparing atomically moves payment_status pending->paid and
	// status->preparing in one conditional update. Returns false when the order
	// was already paid. This is the single idempotency gate for admission.
	MarkPaidAndPreparing(ctx context.Context, orderID string) (bool, error)

	// NextQueueNumber allocates the next number from the restaurant's
	// monotonic sequence. Numbers are never reused.
	NextQueueNumber(ctx context.Context, restaurantID string) (int64, error)

	InsertQueueEntry(ctx context.Context, e domain.QueueEntry) error

	// QueueEntry returns the entry for an order, active or not
	// (domain.ErrNotQueued when absent).
	QueueEntry(ctx context.Context, orderID string) (domain.QueueEntry, error)

	// ActiveEntries returns one consistent snapshot of a restaurant's active
	// entries ranked by (is_priority desc, queue_number asc).
	ActiveEntries(ctx context.Context, restaurantID string) ([]domain.QueueEntry, error)

	// TransitionOrder conditionally moves an order from one status to another,
	// optionally deactivating its queue entry in the same transaction. Returns
	// false when the order was not in the expected status.
	TransitionOrder(ctx context.Context, orderID string, from, to domain.OrderStatus, deactivateEntry bool) (bool, error)

	Restaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error)
}
