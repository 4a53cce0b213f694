package domain

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by the order store when no row matches
// the requested id.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidTransition is returned by the order store when a status update
// is rejected by the transition rules, e.g. a duplicate delivery trying to
// move a completed order back to processing.
var ErrInvalidTransition = errors.New("invalid status transition")

// InventoryUnavailableError names the first line item that cannot be
// fulfilled from stock.
type InventoryUnavailableError struct {
	Item string
}

func (e *InventoryUnavailableError) Error() string {
	return fmt.Sprintf("item %s is not available", e.Item)
}

// PaymentError reports a declined or failed charge.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed: %s", e.Reason)
}
