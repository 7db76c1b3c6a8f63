package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"campus-eats/internal/domain"
)

// Memory is an in-process OrderStore with the same atomicity contract as the
// Postgres implementation. Used by tests and local development; every mutation
// and every snapshot read holds the store lock, so the conditional updates are
// real compare-and-set operations, not read-then-write pairs.
type Memory struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	entries     map[string]*domain.QueueEntry // keyed by order id
	seqs        map[string]int64
	restaurants map[string]domain.Restaurant

	// FailSeqTimes makes the next N NextQueueNumber calls fail, for exercising
	// the paid-but-not-queued retry and redelivery paths.
	FailSeqTimes int
}

func NewMemory() *Memory {
	return &Memory{
		orders:      make(map[string]*domain.Order),
		entries:     make(map[string]*domain.QueueEntry),
		seqs:        make(map[string]int64),
		restaurants: make(map[string]domain.Restaurant),
	}
}

func (m *Memory) PutOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := o
	m.orders[o.ID] = &cp
}

func (m *Memory) PutRestaurant(r domain.Restaurant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants[r.ID] = r
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

func (m *Memory) GetOrderForUser(ctx context.Context, orderID, userID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, domain.ErrNotFoundOrUnauthorized
	}
	return *o, nil
}

func (m *Memory) AttachSessionIf(ctx context.Context, orderID, oldRef, newRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.SessionRef != oldRef {
		return false, nil
	}
	o.SessionRef = newRef
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) MarkPaidAndPreparing(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.PaymentStatus != domain.PaymentPending {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentPaid
	o.Status = domain.StatusPreparing
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) NextQueueNumber(ctx context.Context, restaurantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSeqTimes > 0 {
		m.FailSeqTimes--
		return 0, domain.ErrSequenceUnavailable
	}
	m.seqs[restaurantID]++
	return m.seqs[restaurantID], nil
}

func (m *Memory) InsertQueueEntry(ctx context.Context, e domain.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.OrderID]; exists {
		return nil // same conflict-do-nothing semantics as the SQL insert
	}
	cp := e
	cp.Active = true
	m.entries[e.OrderID] = &cp
	return nil
}

func (m *Memory) QueueEntry(ctx context.Context, orderID string) (domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[orderID]
	if !ok {
		return domain.QueueEntry{}, domain.ErrNotQueued
	}
	return *e, nil
}

func (m *Memory) ActiveEntries(ctx context.Context, restaurantID string) ([]domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range m.entries {
		if e.RestaurantID == restaurantID && e.Active {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPriority != out[j].IsPriority {
			return out[i].IsPriority
		}
		return out[i].QueueNumber < out[j].QueueNumber
	})
	return out, nil
}

func (m *Memory) TransitionOrder(ctx context.Context, orderID string, from, to domain.OrderStatus, deactivateEntry bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	if deactivateEntry {
		if e, ok := m.entries[orderID]; ok {
			e.Active = false
		}
	}
	return true, nil
}

func (m *Memory) Restaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[restaurantID]
	if !ok {
		return domain.Restaurant{}, fmt.Errorf("restaurant %s not found", restaurantID)
	}
	return r, nil
}
