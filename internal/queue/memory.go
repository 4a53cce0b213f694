package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Queue with the same at-least-once contract as the
// RabbitMQ adapter: messages received but not deleted become visible again
// after the visibility timeout, and messages received more than the
// delivery limit are moved to an internal dead-letter list. Used for local
// development and tests.
type Memory struct {
	visibility    time.Duration
	deliveryLimit int

	mu       sync.Mutex
	visible  []*memMessage
	inflight map[string]*memMessage
	dead     []Message
	notify   chan struct{}
}

type memMessage struct {
	msg      Message
	receives int
	timer    *time.Timer
}

func NewMemory(visibility time.Duration, deliveryLimit int) *Memory {
	if deliveryLimit <= 0 {
		deliveryLimit = 5
	}
	return &Memory{
		visibility:    visibility,
		deliveryLimit: deliveryLimit,
		inflight:      make(map[string]*memMessage),
		notify:        make(chan struct{}, 1),
	}
}

func (m *Memory) Send(_ context.Context, body []byte, attrs Attributes) (string, error) {
	id := uuid.NewString()
	cp := make(Attributes, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}

	m.mu.Lock()
	m.visible = append(m.visible, &memMessage{msg: Message{ID: id, Body: body, Attributes: cp}})
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return id, nil
}

func (m *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		if msgs := m.take(max); len(msgs) > 0 {
			return msgs, nil
		}
		select {
		case <-m.notify:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Memory) take(max int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := max
	if n > len(m.visible) {
		n = len(m.visible)
	}
	msgs := make([]Message, 0, n)
	for _, mm := range m.visible[:n] {
		mm.receives++
		receipt := uuid.NewString()
		mm.msg.ReceiptHandle = receipt
		mm.timer = time.AfterFunc(m.visibility, func() { m.expire(receipt) })
		m.inflight[receipt] = mm
		msgs = append(msgs, mm.msg)
	}
	m.visible = m.visible[n:]
	return msgs
}

func (m *Memory) expire(receipt string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm, ok := m.inflight[receipt]
	if !ok {
		return
	}
	delete(m.inflight, receipt)
	mm.msg.ReceiptHandle = ""
	if mm.receives >= m.deliveryLimit {
		m.dead = append(m.dead, mm.msg)
		return
	}
	m.visible = append(m.visible, mm)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Memory) Delete(_ context.Context, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm, ok := m.inflight[receiptHandle]
	if !ok {
		return ErrUnknownReceipt
	}
	mm.timer.Stop()
	delete(m.inflight, receiptHandle)
	return nil
}

// Depth reports how many messages are currently visible or in flight.
func (m *Memory) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visible) + len(m.inflight)
}

// DeadLetters returns messages that exceeded the delivery limit.
func (m *Memory) DeadLetters() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.dead...)
}
