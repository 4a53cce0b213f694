package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"school-meals/internal/config"
	"school-meals/internal/domain"
	"school-meals/internal/logger"
	"school-meals/internal/queue"
)

// fakeStore is an in-memory OrderStore that records every status update.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	history map[string][]domain.OrderStatus

	getErr    error
	updateErr error
	listErr   error
}

func newFakeStore(orders ...*domain.Order) *fakeStore {
	s := &fakeStore{
		orders:  make(map[string]*domain.Order),
		history: make(map[string][]domain.OrderStatus),
	}
	for _, o := range orders {
		cp := *o
		s.orders[o.ID] = &cp
	}
	return s
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if !domain.CanTransition(o.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, status)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	s.history[id] = append(s.history[id], status)
	cp := *o
	return &cp, nil
}

func (s *fakeStore) ListOrdersByStatus(_ context.Context, status domain.OrderStatus, since time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == status && !o.CreatedAt.Before(since) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) AggregateStats(_ context.Context, since time.Time) (domain.ProcessingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.ProcessingStats
	for _, o := range s.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		st.TotalOrders++
		switch o.Status {
		case domain.StatusPending:
			st.PendingOrders++
		case domain.StatusProcessing:
			st.ProcessingOrders++
		case domain.StatusCompleted:
			st.CompletedOrders++
		case domain.StatusFailed:
			st.FailedOrders++
		case domain.StatusCancelled:
			st.CancelledOrders++
		}
	}
	return st, nil
}

func (s *fakeStore) status(id string) domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *fakeStore) updates(id string) []domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OrderStatus(nil), s.history[id]...)
}

// Step stubs.

type stubInventory struct {
	mu        sync.Mutex
	checkErr  error
	decErr    error
	checks    int
	decrement int
}

func (i *stubInventory) CheckAvailability(context.Context, []domain.OrderItem) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.checks++
	return i.checkErr
}

func (i *stubInventory) Decrement(context.Context, []domain.OrderItem) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.decrement++
	return i.decErr
}

type stubPayments struct {
	mu      sync.Mutex
	err     error
	charges int
}

func (p *stubPayments) Charge(context.Context, string, string, float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges++
	return p.err
}

func (p *stubPayments) charged() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charges
}

type stubDelivery struct {
	mu        sync.Mutex
	err       error
	scheduled int
}

func (d *stubDelivery) Schedule(context.Context, string, time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduled++
	return d.err
}

// failingQueue wraps a Queue and injects failures.
type failingQueue struct {
	queue.Queue
	sendErr    error
	failSendOn func(attrs queue.Attributes) bool
	receiveErr error
}

func (q *failingQueue) Send(ctx context.Context, body []byte, attrs queue.Attributes) (string, error) {
	if q.sendErr != nil {
		return "", q.sendErr
	}
	if q.failSendOn != nil && q.failSendOn(attrs) {
		return "", errors.New("broker unreachable")
	}
	return q.Queue.Send(ctx, body, attrs)
}

func (q *failingQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}
	return q.Queue.Receive(ctx, max, wait)
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		PollInterval:    10 * time.Millisecond,
		BatchSize:       10,
		ReceiveWait:     50 * time.Millisecond,
		StepTimeout:     time.Second,
		ReprocessWindow: 24 * time.Hour,
		StatsWindow:     24 * time.Hour,
	}
}

func newTestEngine(store OrderStore, q queue.Queue, inv InventoryService, pay PaymentService, del DeliveryScheduler) *Engine {
	return NewEngine(store, q, inv, pay, del, testEngineConfig(), logger.New("test"))
}

func pendingOrder(id string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:        id,
		StudentID: "student-1",
		Items: []domain.OrderItem{
			{ID: "item-a", Name: "A", Price: 8.50, Quantity: 1, Category: "main_course"},
		},
		TotalAmount:  8.50,
		DeliveryDate: now.Add(48 * time.Hour),
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStartIsIdempotent(t *testing.T) {
	store := newFakeStore()
	mem := queue.NewMemory(time.Minute, 5)
	e := newTestEngine(store, mem, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	e.Start()
	first := e.done
	e.Start() // must not spawn a second poll loop
	require.Equal(t, first, e.done, "second Start must not replace the poll loop")
	require.True(t, e.isRunning())

	e.Stop()
	require.False(t, e.isRunning())
	e.Stop() // idempotent

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not exit after Stop")
	}
}

func TestSubmitPublishesMessageWithAttributes(t *testing.T) {
	mem := queue.NewMemory(time.Minute, 5)
	e := newTestEngine(newFakeStore(), mem, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	o := pendingOrder("o1")
	require.NoError(t, e.Submit(context.Background(), o))

	msgs, err := mem.Receive(context.Background(), 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "o1", msgs[0].Attributes[queue.AttrOrderID])
	require.Equal(t, "student-1", msgs[0].Attributes[queue.AttrStudentID])
	require.Equal(t, "8.50", msgs[0].Attributes[queue.AttrTotalAmount])
}

func TestSubmitQueueUnreachable(t *testing.T) {
	mem := queue.NewMemory(time.Minute, 5)
	q := &failingQueue{Queue: mem, sendErr: errors.New("connection refused")}
	store := newFakeStore(pendingOrder("o1"))
	e := newTestEngine(store, q, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	err := e.Submit(context.Background(), pendingOrder("o1"))
	var publishErr *QueuePublishError
	require.ErrorAs(t, err, &publishErr)

	// The order row is untouched.
	require.Equal(t, domain.StatusPending, store.status("o1"))
	require.Empty(t, store.updates("o1"))
}

func TestReceiveErrorDoesNotCrashCycle(t *testing.T) {
	mem := queue.NewMemory(time.Minute, 5)
	q := &failingQueue{Queue: mem, receiveErr: errors.New("broker down")}
	e := newTestEngine(newFakeStore(), q, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	// Must log and return without panicking.
	e.runCycle(context.Background())
}

func TestStatsAggregation(t *testing.T) {
	now := time.Now().UTC()
	mk := func(id string, status domain.OrderStatus) *domain.Order {
		o := pendingOrder(id)
		o.Status = status
		o.CreatedAt = now.Add(-time.Hour)
		return o
	}
	store := newFakeStore(
		mk("c1", domain.StatusCompleted),
		mk("c2", domain.StatusCompleted),
		mk("c3", domain.StatusCompleted),
		mk("f1", domain.StatusFailed),
		mk("p1", domain.StatusPending),
	)
	mem := queue.NewMemory(time.Minute, 5)
	e := newTestEngine(store, mem, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	stats, err := e.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, stats.TotalOrders)
	require.Equal(t, 3, stats.CompletedOrders)
	require.Equal(t, 1, stats.FailedOrders)
	require.Equal(t, 1, stats.PendingOrders)
	require.Equal(t, "stopped", stats.EngineStatus)
}

func TestReprocessFailedContinuesPastErrors(t *testing.T) {
	now := time.Now().UTC()
	var failed []*domain.Order
	for _, id := range []string{"f1", "f2", "f3"} {
		o := pendingOrder(id)
		o.Status = domain.StatusFailed
		o.CreatedAt = now.Add(-time.Hour)
		failed = append(failed, o)
	}
	store := newFakeStore(failed...)
	mem := queue.NewMemory(time.Minute, 5)
	q := &failingQueue{Queue: mem, failSendOn: func(attrs queue.Attributes) bool {
		return attrs[queue.AttrOrderID] == "f2"
	}}
	e := newTestEngine(store, q, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	n, err := e.ReprocessFailed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n, "f1 and f3 resubmitted despite f2 failing")

	// All three were reset to pending before submission was attempted.
	for _, id := range []string{"f1", "f2", "f3"} {
		require.Equal(t, domain.StatusPending, store.status(id))
	}
	require.Equal(t, 2, mem.Depth())
}

func TestReprocessFailedListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("store down")
	mem := queue.NewMemory(time.Minute, 5)
	e := newTestEngine(store, mem, &stubInventory{}, &stubPayments{}, &stubDelivery{})

	_, err := e.ReprocessFailed(context.Background())
	require.Error(t, err)
}
