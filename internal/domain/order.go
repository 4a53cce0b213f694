package domain

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusFailed     OrderStatus = "failed"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// transitions lists the allowed status changes. completed and cancelled are
// terminal; failed -> pending is the reprocessing path; pending -> failed
// covers orders whose fulfillment message was rejected before processing;
// failed -> processing lets a redelivered message retry a failed order.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending, StatusProcessing},
}

func CanTransition(from, to OrderStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
}

type Order struct {
	ID           string
	StudentID    string
	Items        []OrderItem
	TotalAmount  float64
	DeliveryDate time.Time
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ItemsTotal is the amount an order must carry at creation time.
func ItemsTotal(items []OrderItem) float64 {
	total := 0.0
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}
