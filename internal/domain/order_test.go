package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusPending, true},    // reprocessing path
		{StatusPending, StatusFailed, true},    // poison message before processing
		{StatusFailed, StatusProcessing, true}, // redelivery retry of a failed order

		{StatusProcessing, StatusProcessing, false},

		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusPending, StatusCompleted, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed} {
		require.True(t, s.Valid())
	}
	require.False(t, OrderStatus("shipped").Valid())
}

func TestItemsTotal(t *testing.T) {
	items := []OrderItem{
		{ID: "a", Name: "A", Price: 8.50, Quantity: 1},
		{ID: "b", Name: "B", Price: 2.25, Quantity: 2},
	}
	require.InDelta(t, 13.0, ItemsTotal(items), 1e-9)
	require.Zero(t, ItemsTotal(nil))
}

func TestFulfillmentMessageValidate(t *testing.T) {
	valid := FulfillmentMessage{
		OrderID:   "o1",
		StudentID: "s1",
		Items:     []OrderItem{{ID: "a", Name: "A", Price: 1, Quantity: 1}},
	}
	require.NoError(t, valid.Validate())

	for _, m := range []FulfillmentMessage{
		{StudentID: "s1", Items: valid.Items},
		{OrderID: "o1", Items: valid.Items},
		{OrderID: "o1", StudentID: "s1"},
	} {
		require.ErrorIs(t, m.Validate(), ErrMalformedMessage)
	}
}

func TestNewFulfillmentMessage(t *testing.T) {
	o := &Order{
		ID:           "o1",
		StudentID:    "s1",
		Items:        []OrderItem{{ID: "a", Name: "A", Price: 8.50, Quantity: 1}},
		TotalAmount:  8.50,
		DeliveryDate: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
	}
	m := NewFulfillmentMessage(o)
	require.Equal(t, o.ID, m.OrderID)
	require.Equal(t, o.StudentID, m.StudentID)
	require.Equal(t, o.TotalAmount, m.TotalAmount)
	require.Equal(t, o.DeliveryDate, m.DeliveryDate)
	require.False(t, m.EnqueuedAt.IsZero())
	require.NoError(t, m.Validate())
}
