// Package queue provides at-least-once message queues with batched
// long-poll receive, delete-by-receipt-handle, and visibility-timeout
// semantics. A receipt handle is valid only for the current delivery
// attempt; once the visibility timeout elapses the message is redelivered
// and the old handle is rejected.
package queue

import (
	"context"
	"errors"
	"time"
)

// Attribute keys carried alongside fulfillment message bodies. They exist
// for filtering and recovery (e.g. resolving an order id from a message
// whose body failed to parse), not for workflow logic.
const (
	AttrOrderID     = "order_id"
	AttrStudentID   = "student_id"
	AttrTotalAmount = "total_amount"
)

type Attributes map[string]string

type Message struct {
	ID            string
	Body          []byte
	Attributes    Attributes
	ReceiptHandle string
}

// ErrUnknownReceipt is returned by Delete when the receipt handle does not
// match an in-flight delivery, typically because its visibility timeout
// already expired.
var ErrUnknownReceipt = errors.New("unknown or expired receipt handle")

type Queue interface {
	// Send enqueues a message and returns its queue-assigned id.
	Send(ctx context.Context, body []byte, attrs Attributes) (string, error)

	// Receive returns up to max messages, waiting up to wait for at least
	// one to become available. Received messages stay invisible until
	// deleted or until the visibility timeout elapses.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)

	// Delete permanently removes the delivery identified by receiptHandle.
	Delete(ctx context.Context, receiptHandle string) error
}
