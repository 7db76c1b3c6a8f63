package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
	"campus-eats/internal/gateway"
	"campus-eats/internal/store"
)

// Coordinator maps an order to at most one open payment session. Re-entering
// checkout (page refresh, double click) hands back the existing session
// instead of creating a duplicate.
type Coordinator struct {
	store store.OrderStore
	gw    gateway.PaymentGateway
	lg    *logger.Logger
	now   func() time.Time
}

func New(s store.OrderStore, gw gateway.PaymentGateway, lg *logger.Logger) *Coordinator {
	return &Coordinator{store: s, gw: gw, lg: lg, now: func() time.Time { return time.Now().UTC() }}
}

// BeginCheckout returns a session handle for an unpaid order owned by userID.
//
// Line items are built from the prices stored on the order at submission
// time, never from the current catalog, so a menu price change between cart
// and payment cannot drift the charge. On gateway failure the order is left
// untouched and the whole call is safe to retry.
func (c *Coordinator) BeginCheckout(ctx context.Context, orderID, userID string) (domain.SessionHandle, error) {
	order, err := c.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	if order.PaymentStatus != domain.PaymentPending {
		return domain.SessionHandle{}, domain.ErrNotFoundOrUnauthorized
	}

	// Idempotent re-entry: reuse the stored session while the gateway still
	// reports it payable. An expired session is abandoned, never reused.
	if order.SessionRef != "" {
		s, err := c.gw.GetSession(ctx, order.SessionRef)
		if err == nil && s.Open(c.now()) {
			c.lg.Debug("checkout_session_reused", map[string]any{"order_id": orderID, "session_id": s.ID})
			return domain.SessionHandle{SessionID: s.ID, ClientSecret: s.ClientSecret}, nil
		}
		if err != nil {
			return domain.SessionHandle{}, fmt.Errorf("%w: %w", domain.ErrPaymentGatewayUnavailable, err)
		}
	}

	// The restaurant name only decorates the gateway's line items; checkout
	// proceeds without it.
	desc := ""
	if r, err := c.store.Restaurant(ctx, order.RestaurantID); err == nil {
		desc = r.Name
	}

	items := make([]gateway.LineItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, gateway.LineItem{
			Name:            it.Name,
			Description:     desc,
			UnitAmountCents: it.UnitPriceCents,
			Quantity:        int64(it.Quantity),
		})
	}

	s, err := c.gw.CreateSession(ctx, gateway.CreateSessionParams{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Currency:  order.Currency,
		LineItems: items,
	})
	if err != nil {
		return domain.SessionHandle{}, fmt.Errorf("%w: %w", domain.ErrPaymentGatewayUnavailable, err)
	}

	// Conditional on the reference observed above: two checkouts racing on the
	// same order converge on whichever session got attached first.
	won, err := c.store.AttachSessionIf(ctx, order.ID, order.SessionRef, s.ID)
	if err != nil {
		return domain.SessionHandle{}, fmt.Errorf("persist session ref: %w", err)
	}
	if !won {
		return c.attachedElsewhere(ctx, orderID, userID)
	}

	c.lg.Info("checkout_session_created", map[string]any{
		"order_id": orderID, "session_id": s.ID, "total_cents": order.TotalCents,
	})
	return domain.SessionHandle{SessionID: s.ID, ClientSecret: s.ClientSecret}, nil
}

// attachedElsewhere hands back the session a concurrent checkout attached.
// The session created by the losing call is never referenced and simply
// expires at the gateway.
func (c *Coordinator) attachedElsewhere(ctx context.Context, orderID, userID string) (domain.SessionHandle, error) {
	order, err := c.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return domain.SessionHandle{}, err
	}
	if order.SessionRef != "" {
		if s, err := c.gw.GetSession(ctx, order.SessionRef); err == nil && s.Open(c.now()) {
			c.lg.Debug("checkout_session_reused", map[string]any{"order_id": orderID, "session_id": s.ID})
			return domain.SessionHandle{SessionID: s.ID, ClientSecret: s.ClientSecret}, nil
		}
	}
	return domain.SessionHandle{}, fmt.Errorf("%w: concurrent checkout replaced the session", domain.ErrPaymentGatewayUnavailable)
}

// ConfirmedAtGateway reports whether the order's session has actually been
// completed at the gateway. Used by the client confirmation path so a caller
// cannot admit an order it never paid for.
func (c *Coordinator) ConfirmedAtGateway(ctx context.Context, order domain.Order) (bool, error) {
	if order.SessionRef == "" {
		return false, nil
	}
	s, err := c.gw.GetSession(ctx, order.SessionRef)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrPaymentGatewayUnavailable, err)
	}
	return s.Status == gateway.SessionCompleted, nil
}

// IsRetryable reports whether the checkout failure is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrPaymentGatewayUnavailable)
}
