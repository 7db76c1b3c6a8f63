package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"campus-eats/internal/domain"
)

const maxWebhookBody = 65536

// Webhook is the gateway's completion callback. The signature check is the
// trust boundary; after it, the order id in the session metadata is the
// correlation key and only needs to resolve to a real order.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "bad_request", "body too large")
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.lg.Error("webhook_signature_invalid", err, nil)
		writeProblem(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}

	if event.Type != "checkout.session.completed" {
		// Everything else is noise for this engine.
		w.WriteHeader(http.StatusOK)
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "malformed event payload")
		return
	}
	orderID := sess.Metadata["order_id"]
	if orderID == "" {
		writeProblem(w, http.StatusBadRequest, "bad_request", "event carries no order_id")
		return
	}

	res, err := h.admission.OnPaymentCompleted(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			// Data-integrity problem; acknowledging would bury it, so surface
			// a client error the gateway dashboard will show.
			h.lg.Error("webhook_unknown_order", err, map[string]any{"order_id": orderID})
			writeProblem(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		// Non-2xx makes the gateway redeliver; the admission gate keeps the
		// redelivery safe.
		h.writeError(w, err)
		return
	}

	h.lg.Info("webhook_processed", map[string]any{
		"order_id": orderID, "already_admitted": res.AlreadyAdmitted,
	})
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
