package domain

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Order struct {
	ID                  string
	UserID              string
	RestaurantID        string
	Status              OrderStatus
	PaymentStatus       PaymentStatus
	TotalCents          int64
	Currency            string
	SessionRef          string // empty until a checkout session is created
	SpecialInstructions string
	ScheduledFor        *time.Time
	Items               []OrderItem
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type OrderItem struct {
	ID              string
	OrderID         string
	MenuItemID      string
	Name            string
	Quantity        int
	UnitPriceCents  int64
	PrepTimeMinutes int // 0 = unknown
	IsPriorityItem  bool
	Customizations  map[string]string
}

// IsPriority is true only when every line item is priority-eligible.
func (o Order) IsPriority() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if !it.IsPriorityItem {
			return false
		}
	}
	return true
}

// MaxPrepMinutes is the longest per-item preparation time, 0 if none is known.
func (o Order) MaxPrepMinutes() int {
	max := 0
	for _, it := range o.Items {
		if it.PrepTimeMinutes > max {
			max = it.PrepTimeMinutes
		}
	}
	return max
}

type Restaurant struct {
	ID                     string
	Name                   string
	Slug                   string
	AveragePrepTimeMinutes int
}

type QueueEntry struct {
	ID           string
	RestaurantID string
	OrderID      string
	QueueNumber  int64
	IsPriority   bool
	EnqueuedAt   time.Time
	Active       bool
}

// SessionHandle is what the checkout flow hands back to the client so it can
// mount the gateway's hosted payment page.
type SessionHandle struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
}
