package domain

import (
	"errors"
	"time"
)

// FulfillmentMessage is the queue payload for one order's fulfillment request.
// At most one message should be outstanding per order, but consumers must
// tolerate duplicates (at-least-once delivery).
type FulfillmentMessage struct {
	OrderID      string      `json:"order_id"`
	StudentID    string      `json:"student_id"`
	Items        []OrderItem `json:"items"`
	TotalAmount  float64     `json:"total_amount"`
	DeliveryDate time.Time   `json:"delivery_date"`
	EnqueuedAt   time.Time   `json:"enqueued_at"`
}

var ErrMalformedMessage = errors.New("malformed fulfillment message")

// Validate rejects bodies that can never be fulfilled. Runs before any
// status transition so a poison message cannot strand an order in
// processing.
func (m FulfillmentMessage) Validate() error {
	if m.OrderID == "" || m.StudentID == "" || len(m.Items) == 0 {
		return ErrMalformedMessage
	}
	return nil
}

func NewFulfillmentMessage(o *Order) FulfillmentMessage {
	return FulfillmentMessage{
		OrderID:      o.ID,
		StudentID:    o.StudentID,
		Items:        o.Items,
		TotalAmount:  o.TotalAmount,
		DeliveryDate: o.DeliveryDate,
		EnqueuedAt:   time.Now().UTC(),
	}
}
