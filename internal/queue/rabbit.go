package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"school-meals/internal/config"
	"school-meals/internal/connections/rabbitmq"
	"school-meals/internal/logger"
)

// Rabbit adapts a RabbitMQ quorum queue to the Queue interface. Deliveries
// are consumed into an internal buffer; Receive drains the buffer, Delete
// acks, and a per-delivery timer nacks (requeue) when the visibility
// timeout elapses without a Delete. Dead-lettering after the delivery
// limit is handled by the broker (see rabbitmq.DeclareTopology).
type Rabbit struct {
	client     *rabbitmq.Client
	name       string
	visibility time.Duration
	log        *logger.Logger

	consCh     *amqp.Channel
	deliveries <-chan amqp.Delivery

	mu       sync.Mutex
	inflight map[string]*rabbitDelivery
	closed   bool
}

type rabbitDelivery struct {
	d     amqp.Delivery
	timer *time.Timer
}

func NewRabbit(client *rabbitmq.Client, cfg config.QueueConfig, prefetch int, log *logger.Logger) (*Rabbit, error) {
	if err := client.DeclareTopology(cfg.Name, cfg.DeliveryLimit); err != nil {
		return nil, err
	}
	ch, err := client.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	deliveries, err := ch.Consume(cfg.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Rabbit{
		client:     client,
		name:       cfg.Name,
		visibility: cfg.VisibilityTimeout,
		log:        log,
		consCh:     ch,
		deliveries: deliveries,
		inflight:   make(map[string]*rabbitDelivery),
	}, nil
}

func (r *Rabbit) Send(ctx context.Context, body []byte, attrs Attributes) (string, error) {
	headers := amqp.Table{}
	for k, v := range attrs {
		headers[k] = v
	}
	id := uuid.NewString()
	if err := r.client.Publish(ctx, r.name, body, headers, id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Rabbit) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	var msgs []Message
	for len(msgs) < max {
		select {
		case d, ok := <-r.deliveries:
			if !ok {
				return msgs, nil
			}
			msgs = append(msgs, r.track(d))
		case <-deadline.C:
			return msgs, nil
		case <-ctx.Done():
			return msgs, ctx.Err()
		default:
			// Buffer drained; if nothing received yet, block for the rest
			// of the wait window for long-poll semantics.
			if len(msgs) > 0 {
				return msgs, nil
			}
			select {
			case d, ok := <-r.deliveries:
				if !ok {
					return msgs, nil
				}
				msgs = append(msgs, r.track(d))
			case <-deadline.C:
				return msgs, nil
			case <-ctx.Done():
				return msgs, ctx.Err()
			}
		}
	}
	return msgs, nil
}

func (r *Rabbit) track(d amqp.Delivery) Message {
	receipt := uuid.NewString()

	r.mu.Lock()
	rd := &rabbitDelivery{d: d}
	rd.timer = time.AfterFunc(r.visibility, func() { r.expire(receipt) })
	r.inflight[receipt] = rd
	r.mu.Unlock()

	attrs := Attributes{}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}
	return Message{
		ID:            d.MessageId,
		Body:          d.Body,
		Attributes:    attrs,
		ReceiptHandle: receipt,
	}
}

// expire makes a delivery visible again after its timeout: the broker
// redelivers it and bumps its delivery count.
func (r *Rabbit) expire(receipt string) {
	r.mu.Lock()
	rd, ok := r.inflight[receipt]
	delete(r.inflight, receipt)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := rd.d.Nack(false, true); err != nil {
		r.log.Error("visibility_requeue_failed", err, map[string]any{"message_id": rd.d.MessageId})
	}
}

func (r *Rabbit) Delete(_ context.Context, receiptHandle string) error {
	r.mu.Lock()
	rd, ok := r.inflight[receiptHandle]
	if ok {
		rd.timer.Stop()
		delete(r.inflight, receiptHandle)
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownReceipt
	}
	return rd.d.Ack(false)
}

// Close stops consuming and requeues everything still in flight.
func (r *Rabbit) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pending := make([]*rabbitDelivery, 0, len(r.inflight))
	for receipt, rd := range r.inflight {
		rd.timer.Stop()
		pending = append(pending, rd)
		delete(r.inflight, receipt)
	}
	r.mu.Unlock()

	for _, rd := range pending {
		_ = rd.d.Nack(false, true)
	}
	_ = r.consCh.Close()
}
