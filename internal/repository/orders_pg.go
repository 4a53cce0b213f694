package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"school-meals/internal/domain"
)

// OrderRepository is the Postgres order store. Rows are owned exclusively by
// this store; the fulfillment engine keeps no durable state of its own.
type OrderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts the order and its line items in one transaction.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, student_id, total_amount, delivery_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, o.ID, o.StudentID, o.TotalAmount, o.DeliveryDate, o.Status)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, item_id, name, unit_price, quantity, category, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
		`, o.ID, item.ID, item.Name, item.Price, item.Quantity, item.Category)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.Name, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRow(ctx, `
		SELECT id, student_id, total_amount, delivery_date, status, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.StudentID, &o.TotalAmount, &o.DeliveryDate, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT item_id, name, unit_price, quantity, category
		FROM order_items WHERE order_id = $1 ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Quantity, &it.Category); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return &o, nil
}

// UpdateOrderStatus sets the status and bumps updated_at, returning the
// updated row. The current status is read under a row lock and the update
// only happens when the transition is allowed, so two engine instances
// racing on the same order cannot both move it to processing: the loser
// gets domain.ErrInvalidTransition and must skip the workflow. A missing
// order id yields domain.ErrOrderNotFound.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current domain.OrderStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order row: %w", err)
	}

	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, status)
	}

	var o domain.Order
	err = tx.QueryRow(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, student_id, total_amount, delivery_date, status, created_at, updated_at
	`, status, id).Scan(&o.ID, &o.StudentID, &o.TotalAmount, &o.DeliveryDate, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &o, nil
}

// ListOrdersByStatus returns orders in the given status created at or after
// since, oldest first. Line items are included so the caller can resubmit
// without extra round trips.
func (r *OrderRepository) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, since time.Time) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, student_id, total_amount, delivery_date, status, created_at, updated_at
		FROM orders
		WHERE status = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, status, since)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.StudentID, &o.TotalAmount, &o.DeliveryDate, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		items, err := r.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *OrderRepository) orderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT item_id, name, unit_price, quantity, category
		FROM order_items WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Quantity, &it.Category); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AggregateStats computes per-status counts and average completion latency
// over orders created at or after since.
func (r *OrderRepository) AggregateStats(ctx context.Context, since time.Time) (domain.ProcessingStats, error) {
	var s domain.ProcessingStats
	var avg *float64
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			AVG(EXTRACT(EPOCH FROM (updated_at - created_at))) FILTER (WHERE status = 'completed')
		FROM orders
		WHERE created_at >= $1
	`, since).Scan(
		&s.TotalOrders, &s.PendingOrders, &s.ProcessingOrders,
		&s.CompletedOrders, &s.FailedOrders, &s.CancelledOrders, &avg,
	)
	if err != nil {
		return domain.ProcessingStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	if avg != nil {
		s.AvgCompletionSeconds = *avg
	}
	return s, nil
}
