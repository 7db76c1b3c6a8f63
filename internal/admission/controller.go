package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
	"campus-eats/internal/publish"
	"campus-eats/internal/store"
)

// Result of a completion signal.
type Result struct {
	// AlreadyAdmitted is true when a previous signal for the same order won
	// the gate. QueueNumber reports the order's entry when it exists.
	AlreadyAdmitted bool
	QueueNumber     int64
}

// Controller turns a payment completion into exactly one queue admission.
// The gateway may deliver the signal any number of times — duplicate webhooks
// plus a client confirmation racing them — and only one caller may do work.
type Controller struct {
	store store.OrderStore
	pub   *publish.Publisher
	lg    *logger.Logger

	attempts int
	backoff  time.Duration
}

func New(s store.OrderStore, pub *publish.Publisher, lg *logger.Logger) *Controller {
	return &Controller{store: s, pub: pub, lg: lg, attempts: 3, backoff: 200 * time.Millisecond}
}

// OnPaymentCompleted admits the order into its restaurant's queue.
//
// The conditional update of payment_status is the sole idempotency gate:
// whoever flips pending->paid proceeds, everyone else gets AlreadyAdmitted.
// Once the gate is won the order is paid, so the remaining steps are retried
// rather than abandoned — a paid-but-unqueued order must never be left behind
// silently. If the retries are exhausted the error is surfaced and the caller
// must redeliver the signal; a redelivery that loses the gate but finds the
// order paid without a queue entry finishes the admission itself, and the
// insert is keyed on the order id, so it completes the same admission instead
// of creating a second entry.
func (c *Controller) OnPaymentCompleted(ctx context.Context, orderID string) (Result, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		// A completion signal for a missing order is a data-integrity problem,
		// not a transient fault. Report it, do not retry.
		return Result{}, err
	}

	won, err := c.store.MarkPaidAndPreparing(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("payment mark: %w", err)
	}
	if !won {
		return c.finishLostSignal(ctx, orderID)
	}

	entry, err := c.admit(ctx, order)
	if err != nil {
		return Result{}, err
	}

	c.publishAdmitted(ctx, order, entry)
	return Result{QueueNumber: entry.QueueNumber}, nil
}

// finishLostSignal handles a signal that lost the gate. Normally the entry is
// already there and this is a pure no-op; but if a previous winner died or ran
// out of retries between the gate and the insert, the order is paid with no
// entry, and this redelivery must complete that admission rather than report
// success over it.
func (c *Controller) finishLostSignal(ctx context.Context, orderID string) (Result, error) {
	entry, err := c.store.QueueEntry(ctx, orderID)
	if err == nil {
		c.lg.Debug("admission_duplicate_signal", map[string]any{"order_id": orderID})
		return Result{AlreadyAdmitted: true, QueueNumber: entry.QueueNumber}, nil
	}
	if !errors.Is(err, domain.ErrNotQueued) {
		return Result{}, fmt.Errorf("entry lookup: %w", err)
	}

	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.PaymentStatus != domain.PaymentPaid {
		// Gate lost to a non-paid state (e.g. payment_status=failed); nothing
		// to admit.
		c.lg.Debug("admission_duplicate_signal", map[string]any{"order_id": orderID})
		return Result{AlreadyAdmitted: true}, nil
	}

	c.lg.Info("admission_resumed", map[string]any{"order_id": orderID})
	entry, err = c.admit(ctx, order)
	if err != nil {
		return Result{}, err
	}
	c.publishAdmitted(ctx, order, entry)
	return Result{AlreadyAdmitted: true, QueueNumber: entry.QueueNumber}, nil
}

func (c *Controller) publishAdmitted(ctx context.Context, order domain.Order, entry domain.QueueEntry) {
	c.pub.OrderChanged(ctx, domain.OrderEvent{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Kind:         domain.ChangePaidAdmitted,
		OldStatus:    domain.StatusPending,
		NewStatus:    domain.StatusPreparing,
		QueueNumber:  entry.QueueNumber,
		ScheduledFor: order.ScheduledFor,
	})
	c.pub.QueueShifted(ctx, order.RestaurantID, order.ID)

	c.lg.Info("order_admitted", map[string]any{
		"order_id": order.ID, "restaurant_id": order.RestaurantID,
		"queue_number": entry.QueueNumber, "is_priority": entry.IsPriority,
	})
}

func (c *Controller) admit(ctx context.Context, order domain.Order) (domain.QueueEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		entry, err := c.tryAdmit(ctx, order)
		if err == nil {
			return entry, nil
		}
		lastErr = err
		c.lg.Error("admission_attempt_failed", err, map[string]any{
			"order_id": order.ID, "attempt": attempt,
		})
		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return domain.QueueEntry{}, fmt.Errorf("admission interrupted: %w", ctx.Err())
		}
	}
	return domain.QueueEntry{}, fmt.Errorf("admission of paid order %s: %w", order.ID, lastErr)
}

func (c *Controller) tryAdmit(ctx context.Context, order domain.Order) (domain.QueueEntry, error) {
	// A previous winning attempt may have died between insert and publish;
	// finish with the entry it already created.
	if existing, err := c.store.QueueEntry(ctx, order.ID); err == nil {
		return existing, nil
	}

	num, err := c.store.NextQueueNumber(ctx, order.RestaurantID)
	if err != nil {
		return domain.QueueEntry{}, err
	}
	entry := domain.QueueEntry{
		ID:           uuid.NewString(),
		RestaurantID: order.RestaurantID,
		OrderID:      order.ID,
		QueueNumber:  num,
		IsPriority:   order.IsPriority(),
		EnqueuedAt:   time.Now().UTC(),
		Active:       true,
	}
	if err := c.store.InsertQueueEntry(ctx, entry); err != nil {
		return domain.QueueEntry{}, err
	}
	// The insert is conflict-do-nothing on order_id; read back the stored row
	// so concurrent completers all report the same entry.
	return c.store.QueueEntry(ctx, order.ID)
}
