package domain

import "time"

// Change kinds carried on published events. Routing keys are derived from
// these, so renaming one is a wire change.
const (
	ChangePaidAdmitted  = "paid_admitted"
	ChangeStatusUpdated = "status_updated"
	ChangeQueueShifted  = "queue_shifted"
)

// OrderEvent is the fan-out payload for a single order's state change.
// Trackers treat it as a hint to refresh; delivery is best-effort.
type OrderEvent struct {
	OrderID      string      `json:"order_id"`
	RestaurantID string      `json:"restaurant_id"`
	Kind         string      `json:"kind"`
	OldStatus    OrderStatus `json:"old_status,omitempty"`
	NewStatus    OrderStatus `json:"new_status,omitempty"`
	QueueNumber  int64       `json:"queue_number,omitempty"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// QueueEvent tells subscribers of a restaurant's queue that active positions
// may have shifted and should be recomputed.
type QueueEvent struct {
	RestaurantID string    `json:"restaurant_id"`
	Kind         string    `json:"kind"`
	OrderID      string    `json:"order_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
