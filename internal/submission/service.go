// Package submission is the service core behind the order intake surface:
// it validates a request, persists the order as pending, and hands it to
// the fulfillment engine.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"school-meals/internal/domain"
	"school-meals/internal/logger"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
}

type Submitter interface {
	Submit(ctx context.Context, o *domain.Order) error
}

type CreateOrderRequest struct {
	StudentID    string             `json:"student_id"`
	Items        []domain.OrderItem `json:"items"`
	DeliveryDate time.Time          `json:"delivery_date"`
}

var ErrValidation = errors.New("invalid order request")

type Service struct {
	store  OrderCreator
	engine Submitter
	log    *logger.Logger
}

func NewService(store OrderCreator, engine Submitter, log *logger.Logger) *Service {
	return &Service{store: store, engine: engine, log: log}
}

// CreateOrder persists a pending order and enqueues it for fulfillment.
// If enqueueing fails the row is left pending and the error propagates;
// the returned order is still valid in that case so the caller can surface
// its id for manual intervention.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:           uuid.NewString(),
		StudentID:    req.StudentID,
		Items:        req.Items,
		TotalAmount:  domain.ItemsTotal(req.Items),
		DeliveryDate: req.DeliveryDate,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	if err := s.engine.Submit(ctx, order); err != nil {
		// Row stays pending; the operator can resubmit later.
		s.log.Error("order_enqueue_failed", err, map[string]any{"order_id": order.ID})
		return order, err
	}

	s.log.Info("order_created", map[string]any{
		"order_id":     order.ID,
		"student_id":   order.StudentID,
		"total_amount": order.TotalAmount,
	})
	return order, nil
}

func validate(req CreateOrderRequest) error {
	if req.StudentID == "" {
		return fmt.Errorf("%w: student id is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	if req.DeliveryDate.IsZero() {
		return fmt.Errorf("%w: delivery date is required", ErrValidation)
	}
	for _, item := range req.Items {
		if item.ID == "" || item.Name == "" {
			return fmt.Errorf("%w: item id and name are required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: invalid quantity for item %s", ErrValidation, item.Name)
		}
		if item.Price <= 0 {
			return fmt.Errorf("%w: invalid price for item %s", ErrValidation, item.Name)
		}
	}
	return nil
}
