package fulfillment

import (
	"context"
	"fmt"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
	"campus-eats/internal/publish"
	"campus-eats/internal/store"
)

// DefaultPrepMinutes is the estimate of last resort, when neither the items
// nor the restaurant carry a preparation time.
const DefaultPrepMinutes = 10

// Queue ranks a restaurant's admitted orders and walks them through
// preparation. It holds no state of its own: position is recomputed from the
// store on every call, so completions ahead of an order are reflected
// immediately and there is no second copy to drift.
type Queue struct {
	store store.OrderStore
	pub   *publish.Publisher
	lg    *logger.Logger
}

func New(s store.OrderStore, pub *publish.Publisher, lg *logger.Logger) *Queue {
	return &Queue{store: s, pub: pub, lg: lg}
}

// Position returns the 1-based rank of the order among its restaurant's
// active entries, ordered by (is_priority desc, queue_number asc). Two-tier
// and stable: priority orders outrank all others, admission order decides
// within a tier. Returns domain.ErrNotQueued for orders without an active
// entry.
func (q *Queue) Position(ctx context.Context, orderID string) (int, error) {
	entry, err := q.store.QueueEntry(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if !entry.Active {
		return 0, domain.ErrNotQueued
	}
	// Single snapshot read; concurrent readers ranking the same data agree.
	active, err := q.store.ActiveEntries(ctx, entry.RestaurantID)
	if err != nil {
		return 0, fmt.Errorf("rank entries: %w", err)
	}
	for i, e := range active {
		if e.OrderID == orderID {
			return i + 1, nil
		}
	}
	return 0, domain.ErrNotQueued
}

// EstimateWaitMinutes is the order's own preparation time: the longest
// per-item prep time when known, else the restaurant's configured average,
// else DefaultPrepMinutes. Deliberately not cumulative over orders ahead in
// the queue.
func (q *Queue) EstimateWaitMinutes(ctx context.Context, orderID string) (int, error) {
	order, err := q.store.GetOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if m := order.MaxPrepMinutes(); m > 0 {
		return m, nil
	}
	if r, err := q.store.Restaurant(ctx, order.RestaurantID); err == nil && r.AveragePrepTimeMinutes > 0 {
		return r.AveragePrepTimeMinutes, nil
	}
	return DefaultPrepMinutes, nil
}

// Advance moves an order's status forward (preparing -> ready -> completed),
// or to cancelled from any non-terminal state. Reaching ready, completed or
// cancelled deactivates the queue entry so it stops occupying a position;
// the queue_number is kept for the audit trail.
func (q *Queue) Advance(ctx context.Context, orderID string, newStatus domain.OrderStatus) error {
	order, err := q.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	from := order.Status
	if !validTransition(from, newStatus) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, newStatus)
	}

	deactivate := newStatus == domain.StatusReady || newStatus.Terminal()
	moved, err := q.store.TransitionOrder(ctx, orderID, from, newStatus, deactivate)
	if err != nil {
		return fmt.Errorf("advance order: %w", err)
	}
	if !moved {
		// Lost a race with another staff action; the caller sees the fresh
		// status on the next read.
		return fmt.Errorf("%w: order no longer %s", domain.ErrInvalidTransition, from)
	}

	q.pub.OrderChanged(ctx, domain.OrderEvent{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Kind:         domain.ChangeStatusUpdated,
		OldStatus:    from,
		NewStatus:    newStatus,
		ScheduledFor: order.ScheduledFor,
	})
	if deactivate {
		// Everyone behind this order just moved up one place.
		q.pub.QueueShifted(ctx, order.RestaurantID, order.ID)
	}

	q.lg.Info("order_advanced", map[string]any{
		"order_id": orderID, "from": string(from), "to": string(newStatus),
	})
	return nil
}

// Snapshot returns the restaurant's active entries in rank order, positions
// filled in. Used by staff boards and the queue endpoint.
func (q *Queue) Snapshot(ctx context.Context, restaurantID string) ([]RankedEntry, error) {
	active, err := q.store.ActiveEntries(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}
	out := make([]RankedEntry, 0, len(active))
	for i, e := range active {
		out = append(out, RankedEntry{QueueEntry: e, Position: i + 1})
	}
	return out, nil
}

type RankedEntry struct {
	domain.QueueEntry
	Position int
}

func validTransition(from, to domain.OrderStatus) bool {
	if to == domain.StatusCancelled {
		return !from.Terminal()
	}
	switch from {
	case domain.StatusPreparing:
		return to == domain.StatusReady
	case domain.StatusReady:
		return to == domain.StatusCompleted
	default:
		return false
	}
}
