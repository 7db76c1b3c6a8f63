package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campus-eats/internal/admission"
	"campus-eats/internal/checkout"
	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
	"campus-eats/internal/fulfillment"
	"campus-eats/internal/store"
)

type Handler struct {
	checkout  *checkout.Coordinator
	admission *admission.Controller
	queue     *fulfillment.Queue
	store     store.OrderStore

	webhookSecret string
	lg            *logger.Logger
}

func NewHandler(co *checkout.Coordinator, ad *admission.Controller, q *fulfillment.Queue,
	st store.OrderStore, webhookSecret string, lg *logger.Logger) *Handler {
	return &Handler{
		checkout: co, admission: ad, queue: q, store: st,
		webhookSecret: webhookSecret, lg: lg,
	}
}

// Authentication is out of scope; the upstream gateway injects the verified
// user id in this header.
const userHeader = "X-User-ID"

func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeProblem(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}

	handle, err := h.checkout.BeginCheckout(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// ConfirmPayment is the client-side completion signal. It races the webhook
// for the same order; the admission gate makes that race benign. The session
// state is re-checked at the gateway so a client cannot confirm an unpaid
// order.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeProblem(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}

	order, err := h.store.GetOrderForUser(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if order.PaymentStatus == domain.PaymentPending {
		paid, err := h.checkout.ConfirmedAtGateway(r.Context(), order)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !paid {
			writeProblem(w, http.StatusConflict, "payment_incomplete", "payment session is not completed")
			return
		}
	}

	res, err := h.admission.OnPaymentCompleted(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeAdmission(w, res)
}

func writeAdmission(w http.ResponseWriter, res admission.Result) {
	if res.AlreadyAdmitted {
		// Idempotent no-op: the controller reports the existing entry's number.
		if res.QueueNumber > 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"already_admitted": true, "queue_number": res.QueueNumber,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"already_admitted": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"already_admitted": false, "queue_number": res.QueueNumber,
	})
}

func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeProblem(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
		return
	}

	order, err := h.store.GetOrderForUser(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]any{
		"order_id":       order.ID,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"total_cents":    order.TotalCents,
	}
	if order.ScheduledFor != nil {
		resp["scheduled_for"] = order.ScheduledFor
	}

	if entry, err := h.store.QueueEntry(r.Context(), order.ID); err == nil {
		resp["queue_number"] = entry.QueueNumber
		resp["is_priority"] = entry.IsPriority
		if pos, err := h.queue.Position(r.Context(), order.ID); err == nil {
			resp["position"] = pos
		}
		if est, err := h.queue.EstimateWaitMinutes(r.Context(), order.ID); err == nil {
			resp["estimated_wait_minutes"] = est
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RestaurantQueue(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurant_id")
	snapshot, err := h.queue.Snapshot(r.Context(), restaurantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entries := make([]map[string]any, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, map[string]any{
			"order_id":     e.OrderID,
			"queue_number": e.QueueNumber,
			"is_priority":  e.IsPriority,
			"position":     e.Position,
			"enqueued_at":  e.EnqueuedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restaurant_id": restaurantID, "entries": entries,
	})
}

type advanceRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	switch req.Status {
	case domain.StatusReady, domain.StatusCompleted, domain.StatusCancelled:
	default:
		writeProblem(w, http.StatusBadRequest, "bad_request", "status must be ready, completed or cancelled")
		return
	}

	if err := h.queue.Advance(r.Context(), orderID, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "status": req.Status})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFoundOrUnauthorized):
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, domain.ErrNotQueued):
		writeProblem(w, http.StatusNotFound, "not_queued", "order has no queue entry")
	case errors.Is(err, domain.ErrPaymentGatewayUnavailable):
		writeProblem(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway unavailable, retry")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrSequenceUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "admission_retry", "admission incomplete, redeliver the completion signal")
	default:
		h.lg.Error("internal_error", err, nil)
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem is a simplified RFC7807 error body.
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}
