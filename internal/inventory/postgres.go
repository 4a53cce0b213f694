// Package inventory implements the stock-check and stock-decrement workflow
// steps against the inventory table.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"school-meals/internal/domain"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CheckAvailability verifies every line item has enough unreserved stock.
// The first shortfall is reported; an unknown item counts as unavailable.
func (s *Store) CheckAvailability(ctx context.Context, items []domain.OrderItem) error {
	for _, item := range items {
		var available int
		err := s.db.QueryRow(ctx, `
			SELECT quantity_available - quantity_reserved
			FROM inventory WHERE item_id = $1
		`, item.ID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.InventoryUnavailableError{Item: item.Name}
		}
		if err != nil {
			return fmt.Errorf("check inventory for %s: %w", item.Name, err)
		}
		if available < item.Quantity {
			return &domain.InventoryUnavailableError{Item: item.Name}
		}
	}
	return nil
}

// Decrement consumes stock for all line items in one transaction. Rows are
// locked so concurrent workers cannot both consume the last unit; a
// shortfall discovered under the lock aborts the whole decrement.
func (s *Store) Decrement(ctx context.Context, items []domain.OrderItem) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, item := range items {
		var available int
		err := tx.QueryRow(ctx, `
			SELECT quantity_available - quantity_reserved
			FROM inventory WHERE item_id = $1 FOR UPDATE
		`, item.ID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.InventoryUnavailableError{Item: item.Name}
		}
		if err != nil {
			return fmt.Errorf("lock inventory for %s: %w", item.Name, err)
		}
		if available < item.Quantity {
			return &domain.InventoryUnavailableError{Item: item.Name}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE inventory
			SET quantity_available = quantity_available - $2, updated_at = NOW()
			WHERE item_id = $1
		`, item.ID, item.Quantity); err != nil {
			return fmt.Errorf("decrement inventory for %s: %w", item.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
