package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"campus-eats/internal/common/db"
	"campus-eats/internal/domain"
)

type Postgres struct {
	db *db.Conn
}

func NewPostgres(conn *db.Conn) *Postgres { return &Postgres{db: conn} }

const orderColumns = `id, user_id, restaurant_id, status, payment_status, total_cents,
currency, COALESCE(session_ref,''), COALESCE(special_instructions,''), scheduled_for,
created_at, updated_at`

func (p *Postgres) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	row := p.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if err := p.loadItems(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (p *Postgres) GetOrderForUser(ctx context.Context, orderID, userID string) (domain.Order, error) {
	row := p.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND user_id=$2`, orderID, userID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order for user: %w", err)
	}
	if err := p.loadItems(ctx, &o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.RestaurantID, &o.Status, &o.PaymentStatus,
		&o.TotalCents, &o.Currency, &o.SessionRef, &o.SpecialInstructions,
		&o.ScheduledFor, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (p *Postgres) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := p.db.Query(ctx, `
SELECT id, order_id, menu_item_id, name, quantity, unit_price_cents,
       COALESCE(prep_time_minutes, 0), is_priority_item, COALESCE(customizations, '{}')
FROM order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		var custRaw []byte
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity,
			&it.UnitPriceCents, &it.PrepTimeMinutes, &it.IsPriorityItem, &custRaw); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		_ = json.Unmarshal(custRaw, &it.Customizations)
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// AttachSessionIf is conditional on the previously observed reference, so two
// checkouts racing on the same order converge on one stored session.
func (p *Postgres) AttachSessionIf(ctx context.Context, orderID, oldRef, newRef string) (bool, error) {
	tag, err := p.db.Exec(ctx, `
UPDATE orders SET session_ref=$3, updated_at=now()
WHERE id=$1 AND COALESCE(session_ref,'')=$2`, orderID, oldRef, newRef)
	if err != nil {
		return false, fmt.Errorf("attach session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaidAndPreparing is a true conditional update, not read-then-write:
// under concurrent completion signals exactly one caller sees RowsAffected=1.
func (p *Postgres) MarkPaidAndPreparing(ctx context.Context, orderID string) (bool, error) {
	tag, err := p.db.Exec(ctx, `
UPDATE orders SET payment_status='paid', status='preparing', updated_at=now()
WHERE id=$1 AND payment_status='pending'`, orderID)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// NextQueueNumber uses an upsert-returning increment so allocation is atomic
// at the storage layer. Counting rows would hand out duplicates under
// concurrent admissions.
func (p *Postgres) NextQueueNumber(ctx context.Context, restaurantID string) (int64, error) {
	var n int64
	err := p.db.QueryRow(ctx, `
INSERT INTO restaurant_queue_seq (restaurant_id, next_number) VALUES ($1, 1)
ON CONFLICT (restaurant_id)
DO UPDATE SET next_number = restaurant_queue_seq.next_number + 1
RETURNING next_number`, restaurantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrSequenceUnavailable, err)
	}
	return n, nil
}

func (p *Postgres) InsertQueueEntry(ctx context.Context, e domain.QueueEntry) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO queue_entries (id, restaurant_id, order_id, queue_number, is_priority, enqueued_at, active)
VALUES ($1,$2,$3,$4,$5,$6,true)
ON CONFLICT (order_id) DO NOTHING`,
		e.ID, e.RestaurantID, e.OrderID, e.QueueNumber, e.IsPriority, e.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (p *Postgres) QueueEntry(ctx context.Context, orderID string) (domain.QueueEntry, error) {
	var e domain.QueueEntry
	err := p.db.QueryRow(ctx, `
SELECT id, restaurant_id, order_id, queue_number, is_priority, enqueued_at, active
FROM queue_entries WHERE order_id=$1`, orderID).
		Scan(&e.ID, &e.RestaurantID, &e.OrderID, &e.QueueNumber, &e.IsPriority, &e.EnqueuedAt, &e.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QueueEntry{}, domain.ErrNotQueued
	}
	if err != nil {
		return domain.QueueEntry{}, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

func (p *Postgres) ActiveEntries(ctx context.Context, restaurantID string) ([]domain.QueueEntry, error) {
	rows, err := p.db.Query(ctx, `
SELECT id, restaurant_id, order_id, queue_number, is_priority, enqueued_at, active
FROM queue_entries
WHERE restaurant_id=$1 AND active
ORDER BY is_priority DESC, queue_number ASC`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("active entries: %w", err)
	}
	defer rows.Close()

	var out []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(&e.ID, &e.RestaurantID, &e.OrderID, &e.QueueNumber,
			&e.IsPriority, &e.EnqueuedAt, &e.Active); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) TransitionOrder(ctx context.Context, orderID string, from, to domain.OrderStatus, deactivateEntry bool) (bool, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		orderID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}
	if deactivateEntry {
		if _, err := tx.Exec(ctx,
			`UPDATE queue_entries SET active=false WHERE order_id=$1`, orderID); err != nil {
			return false, fmt.Errorf("deactivate entry: %w", err)
		}
	}
	return true, tx.Commit(ctx)
}

func (p *Postgres) Restaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error) {
	var r domain.Restaurant
	err := p.db.QueryRow(ctx, `
SELECT id, name, slug, COALESCE(average_prep_time_minutes, 0)
FROM restaurants WHERE id=$1`, restaurantID).
		Scan(&r.ID, &r.Name, &r.Slug, &r.AveragePrepTimeMinutes)
	if err != nil {
		return domain.Restaurant{}, fmt.Errorf("get restaurant %s: %w", restaurantID, err)
	}
	return r, nil
}
