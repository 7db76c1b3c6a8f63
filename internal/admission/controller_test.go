package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-eats/internal/common/logger"
	"campus-eats/internal/domain"
	"campus-eats/internal/publish"
	"campus-eats/internal/store"
)

type recordingTransport struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
	fail   bool
}

func (t *recordingTransport) Publish(ctx context.Context, topic, correlationID string, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errors.New("broker down")
	}
	t.topics = append(t.topics, topic)
	t.bodies = append(t.bodies, body)
	return nil
}

func newController(t *testing.T, mem *store.Memory) (*Controller, *recordingTransport) {
	t.Helper()
	tr := &recordingTransport{}
	lg := logger.New("admission-test")
	return New(mem, publish.New(tr, lg), lg), tr
}

func pendingOrder(id, restaurantID string, priority bool) domain.Order {
	return domain.Order{
		ID:            id,
		UserID:        "user-1",
		RestaurantID:  restaurantID,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		TotalCents:    25000,
		Currency:      "cop",
		Items: []domain.OrderItem{
			{Name: "arepa", Quantity: 1, UnitPriceCents: 25000, IsPriorityItem: priority},
		},
	}
}

func TestOnPaymentCompleted_AdmitsOnce(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	ctrl, _ := newController(t, mem)

	res, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyAdmitted)
	assert.Equal(t, int64(1), res.QueueNumber)

	order, err := mem.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, domain.StatusPreparing, order.Status)

	entry, err := mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, entry.Active)
	assert.False(t, entry.IsPriority)
}

func TestOnPaymentCompleted_ConcurrentSignalsAdmitExactlyOnce(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	ctrl, _ := newController(t, mem)

	const n = 32
	results := make([]Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ctrl.OnPaymentCompleted(context.Background(), "order-1")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyAdmitted {
			admitted++
			assert.Equal(t, int64(1), results[i].QueueNumber)
		}
	}
	assert.Equal(t, 1, admitted, "exactly one caller must win the gate")

	entries, err := mem.ActiveEntries(context.Background(), "rest-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOnPaymentCompleted_DuplicateLeavesEntryUntouched(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", true))
	ctrl, _ := newController(t, mem)

	_, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	first, err := mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)

	res, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyAdmitted)
	assert.Equal(t, first.QueueNumber, res.QueueNumber)

	second, err := mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, first.QueueNumber, second.QueueNumber)
	assert.Equal(t, first.EnqueuedAt, second.EnqueuedAt)
}

func TestOnPaymentCompleted_QueueNumbersStrictlyIncrease(t *testing.T) {
	mem := store.NewMemory()
	ctrl, _ := newController(t, mem)

	const n = 20
	for i := 0; i < n; i++ {
		mem.PutOrder(pendingOrder(fmt.Sprintf("order-%d", i), "rest-1", false))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ctrl.OnPaymentCompleted(context.Background(), fmt.Sprintf("order-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		e, err := mem.QueueEntry(context.Background(), fmt.Sprintf("order-%d", i))
		require.NoError(t, err)
		assert.False(t, seen[e.QueueNumber], "queue number %d issued twice", e.QueueNumber)
		seen[e.QueueNumber] = true
		assert.GreaterOrEqual(t, e.QueueNumber, int64(1))
		assert.LessOrEqual(t, e.QueueNumber, int64(n))
	}
}

func TestOnPaymentCompleted_PriorityIsConjunction(t *testing.T) {
	mem := store.NewMemory()
	ctrl, _ := newController(t, mem)

	allPriority := pendingOrder("order-all", "rest-1", true)
	allPriority.Items = append(allPriority.Items, domain.OrderItem{Name: "tinto", Quantity: 1, UnitPriceCents: 3000, IsPriorityItem: true})
	mem.PutOrder(allPriority)

	mixed := pendingOrder("order-mixed", "rest-1", true)
	mixed.Items = append(mixed.Items, domain.OrderItem{Name: "bandeja", Quantity: 1, UnitPriceCents: 30000, IsPriorityItem: false})
	mem.PutOrder(mixed)

	_, err := ctrl.OnPaymentCompleted(context.Background(), "order-all")
	require.NoError(t, err)
	_, err = ctrl.OnPaymentCompleted(context.Background(), "order-mixed")
	require.NoError(t, err)

	all, _ := mem.QueueEntry(context.Background(), "order-all")
	mix, _ := mem.QueueEntry(context.Background(), "order-mixed")
	assert.True(t, all.IsPriority, "every item priority-eligible => priority")
	assert.False(t, mix.IsPriority, "one non-eligible item disqualifies the order")
}

func TestOnPaymentCompleted_MissingOrder(t *testing.T) {
	ctrl, _ := newController(t, store.NewMemory())
	_, err := ctrl.OnPaymentCompleted(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOnPaymentCompleted_RetriesAfterSequenceFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	mem.FailSeqTimes = 1
	ctrl, _ := newController(t, mem)
	ctrl.backoff = 0

	res, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err, "the paid order must still end up queued")
	assert.False(t, res.AlreadyAdmitted)

	entry, err := mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, entry.Active)
}

func TestOnPaymentCompleted_RedeliveryCompletesLostAdmission(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	mem.FailSeqTimes = 10 // outlasts every in-process retry
	ctrl, tr := newController(t, mem)
	ctrl.backoff = 0

	_, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.ErrorIs(t, err, domain.ErrSequenceUnavailable)

	// The gate was won, so the order is paid but has no entry yet.
	order, err := mem.GetOrder(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	_, err = mem.QueueEntry(context.Background(), "order-1")
	require.ErrorIs(t, err, domain.ErrNotQueued)

	// The sequence heals and the gateway redelivers. The redelivery loses the
	// gate but must finish the admission, not report success over a
	// paid-but-unqueued order.
	mem.FailSeqTimes = 0
	res, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyAdmitted)
	assert.Equal(t, int64(1), res.QueueNumber)

	entry, err := mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, entry.Active)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Contains(t, tr.topics, "order."+domain.ChangePaidAdmitted)
	assert.Contains(t, tr.topics, "queue.rest-1")

	// A third signal is now a plain duplicate.
	res, err = ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyAdmitted)
	assert.Equal(t, int64(1), res.QueueNumber)
	entries, err := mem.ActiveEntries(context.Background(), "rest-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOnPaymentCompleted_PublishFailureDoesNotFailAdmission(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	ctrl, tr := newController(t, mem)
	tr.fail = true

	res, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyAdmitted)

	_, err = mem.QueueEntry(context.Background(), "order-1")
	require.NoError(t, err)
}

func TestOnPaymentCompleted_PublishesAdmissionAndQueueTopics(t *testing.T) {
	mem := store.NewMemory()
	mem.PutOrder(pendingOrder("order-1", "rest-1", false))
	ctrl, tr := newController(t, mem)

	_, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Contains(t, tr.topics, "order."+domain.ChangePaidAdmitted)
	assert.Contains(t, tr.topics, "queue.rest-1")
}

func TestOnPaymentCompleted_EventCarriesScheduledFor(t *testing.T) {
	mem := store.NewMemory()
	order := pendingOrder("order-1", "rest-1", false)
	at := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)
	order.ScheduledFor = &at
	mem.PutOrder(order)
	ctrl, tr := newController(t, mem)

	_, err := ctrl.OnPaymentCompleted(context.Background(), "order-1")
	require.NoError(t, err)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	var ev domain.OrderEvent
	for i, topic := range tr.topics {
		if topic == "order."+domain.ChangePaidAdmitted {
			require.NoError(t, json.Unmarshal(tr.bodies[i], &ev))
		}
	}
	require.NotNil(t, ev.ScheduledFor, "scheduled orders carry their slot on the event")
	assert.True(t, at.Equal(*ev.ScheduledFor))
}
