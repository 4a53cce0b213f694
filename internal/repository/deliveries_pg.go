package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRepository records delivery schedule rows. Scheduling the same
// order twice updates the date rather than duplicating the row, so the
// workflow step stays safe under redelivery.
type DeliveryRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryRepository(db *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Schedule(ctx context.Context, orderID string, deliveryDate time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO delivery_schedules (order_id, delivery_date, scheduled_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET delivery_date = EXCLUDED.delivery_date, scheduled_at = NOW()
	`, orderID, deliveryDate)
	if err != nil {
		return fmt.Errorf("schedule delivery for order %s: %w", orderID, err)
	}
	return nil
}
