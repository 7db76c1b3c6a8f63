package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders/{order_id}/checkout", h.BeginCheckout)
		r.Post("/orders/{order_id}/payments/confirm", h.ConfirmPayment)
		r.Get("/orders/{order_id}/track", h.TrackOrder)
		r.Post("/payments/webhook", h.Webhook)
		r.Get("/restaurants/{restaurant_id}/queue", h.RestaurantQueue)
		r.Post("/restaurants/{restaurant_id}/queue/{order_id}/advance", h.AdvanceOrder)
	})
	return r
}
