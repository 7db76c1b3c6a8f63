package gateway

import (
	"context"
	"time"
)

type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

type Session struct {
	ID           string
	ClientSecret string
	Status       SessionStatus
	ExpiresAt    time.Time
}

// Open reports whether the session can still be paid.
func (s Session) Open(now time.Time) bool {
	if s.Status != SessionOpen {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type LineItem struct {
	Name            string
	Description     string
	UnitAmountCents int64
	Quantity        int64
}

type CreateSessionParams struct {
	OrderID   string
	UserID    string
	Currency  string
	LineItems []LineItem
}

// PaymentGateway is the hosted-checkout provider. The engine only ever
// creates sessions and re-reads their state; completion arrives separately
// through the webhook/confirm path.
type PaymentGateway interface {
	CreateSession(ctx context.Context, p CreateSessionParams) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}
