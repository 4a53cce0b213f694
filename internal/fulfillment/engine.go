// Package fulfillment owns the asynchronous order fulfillment pipeline:
// a polling consumer that pulls queued fulfillment messages and drives each
// order through inventory check, payment, inventory decrement, and delivery
// scheduling, keeping the persisted order status consistent with the
// in-flight work.
package fulfillment

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"school-meals/internal/config"
	"school-meals/internal/domain"
	"school-meals/internal/logger"
	"school-meals/internal/queue"
)

// OrderStore is the slice of the relational store the engine consumes.
// UpdateOrderStatus must enforce the domain transition rules atomically and
// return domain.ErrInvalidTransition for a rejected change; the workflow
// relies on that to serialize duplicate deliveries across instances.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, since time.Time) ([]domain.Order, error)
	AggregateStats(ctx context.Context, since time.Time) (domain.ProcessingStats, error)
}

// InventoryService provides the stock check and stock decrement steps.
type InventoryService interface {
	CheckAvailability(ctx context.Context, items []domain.OrderItem) error
	Decrement(ctx context.Context, items []domain.OrderItem) error
}

// PaymentService charges the student's account for an order.
type PaymentService interface {
	Charge(ctx context.Context, studentID, orderID string, amount float64) error
}

// DeliveryScheduler books the order's delivery slot.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, orderID string, deliveryDate time.Time) error
}

// Engine polls the fulfillment queue and runs the per-order workflow. All
// durable state lives in the order store and the queue, so an engine
// instance is restart-safe and can be scaled horizontally; duplicate
// deliveries are absorbed by the completed-order guard in the workflow and
// by the store's transactional transition guard underneath it.
type Engine struct {
	store     OrderStore
	queue     queue.Queue
	inventory InventoryService
	payments  PaymentService
	delivery  DeliveryScheduler
	cfg       config.EngineConfig
	log       *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEngine(
	store OrderStore,
	q queue.Queue,
	inventory InventoryService,
	payments PaymentService,
	delivery DeliveryScheduler,
	cfg config.EngineConfig,
	log *logger.Logger,
) *Engine {
	return &Engine{
		store:     store,
		queue:     q,
		inventory: inventory,
		payments:  payments,
		delivery:  delivery,
		cfg:       cfg,
		log:       log,
	}
}

// Start launches the recurring poll cycle. Calling Start on a running
// engine logs a warning and does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.log.Warn("engine_already_running", nil)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	go e.pollLoop(ctx)
	e.log.Info("engine_started", map[string]any{"poll_interval": e.cfg.PollInterval.String()})
}

// Stop cancels the poll cycle. It does not wait for an in-flight batch to
// drain; messages mid-processing are finished or redelivered after their
// visibility timeout. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		e.log.Warn("engine_not_running", nil)
		return
	}
	e.cancel()
	e.running = false
	e.log.Info("engine_stopped", nil)
}

func (e *Engine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// pollLoop runs cycles off a single ticker in a single goroutine, so a new
// cycle can never start while the previous one is still processing its
// batch.
func (e *Engine) pollLoop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// Submit publishes a fulfillment message for a newly created order. The
// order id, student id, and total amount travel as message attributes for
// downstream filtering and for failure recovery on unparsable bodies.
func (e *Engine) Submit(ctx context.Context, o *domain.Order) error {
	msg := domain.NewFulfillmentMessage(o)
	body, err := json.Marshal(msg)
	if err != nil {
		return &QueuePublishError{Err: err}
	}

	attrs := queue.Attributes{
		queue.AttrOrderID:     o.ID,
		queue.AttrStudentID:   o.StudentID,
		queue.AttrTotalAmount: strconv.FormatFloat(o.TotalAmount, 'f', 2, 64),
	}
	msgID, err := e.queue.Send(ctx, body, attrs)
	if err != nil {
		e.log.Error("order_publish_failed", err, map[string]any{"order_id": o.ID})
		return &QueuePublishError{Err: err}
	}

	e.log.Info("order_submitted", map[string]any{"order_id": o.ID, "message_id": msgID})
	return nil
}
