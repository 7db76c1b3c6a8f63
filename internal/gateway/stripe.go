package gateway

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

// StripeGateway creates embedded checkout sessions, mirroring the storefront:
// the client mounts the session with the returned client secret and never
// leaves the app.
type StripeGateway struct{}

func NewStripe(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (g *StripeGateway) CreateSession(ctx context.Context, p CreateSessionParams) (Session, error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(p.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(li.Name),
					Description: stripe.String(li.Description),
				},
				UnitAmount: stripe.Int64(li.UnitAmountCents),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		UIMode:               stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		RedirectOnCompletion: stripe.String("never"),
		Mode:                 stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:            items,
	}
	params.Context = ctx
	params.AddMetadata("order_id", p.OrderID)
	params.AddMetadata("user_id", p.UserID)

	s, err := session.New(params)
	if err != nil {
		return Session{}, err
	}
	return fromStripe(s), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(sessionID, params)
	if err != nil {
		return Session{}, err
	}
	return fromStripe(s), nil
}

func fromStripe(s *stripe.CheckoutSession) Session {
	out := Session{ID: s.ID, ClientSecret: s.ClientSecret}
	switch s.Status {
	case stripe.CheckoutSessionStatusComplete:
		out.Status = SessionCompleted
	case stripe.CheckoutSessionStatusExpired:
		out.Status = SessionExpired
	default:
		out.Status = SessionOpen
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return out
}
