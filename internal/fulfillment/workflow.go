package fulfillment

import (
	"context"
	"encoding/json"
	"errors"

	"school-meals/internal/domain"
	"school-meals/internal/queue"
)

// runCycle receives one batch and dispatches each message sequentially. A
// receive error ends the cycle early; the next scheduled cycle retries.
func (e *Engine) runCycle(ctx context.Context) {
	msgs, err := e.queue.Receive(ctx, e.cfg.BatchSize, e.cfg.ReceiveWait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.log.Error("queue_receive_failed", &QueueReceiveError{Err: err}, nil)
		return
	}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			// Stopped mid-batch. Unprocessed messages become visible
			// again after their visibility timeout.
			return
		}
		e.processMessage(ctx, msg)
	}
}

// processMessage drives one order through the workflow. Business failures
// are converted into a failed status update and never abort the cycle.
func (e *Engine) processMessage(ctx context.Context, msg queue.Message) {
	var fm domain.FulfillmentMessage
	if err := json.Unmarshal(msg.Body, &fm); err != nil {
		e.handlePoison(ctx, msg, err)
		return
	}
	// Validate before any status transition so a bad body cannot strand an
	// order in processing.
	if err := fm.Validate(); err != nil {
		e.handlePoison(ctx, msg, err)
		return
	}

	orderID := fm.OrderID
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		// Order row missing or store unavailable. Leave the message for
		// redelivery; the queue's dead-letter policy bounds the retries.
		e.log.Error("order_lookup_failed", err, map[string]any{"order_id": orderID, "message_id": msg.ID})
		return
	}

	// Idempotence guard: a redelivered message for a completed order must
	// not re-run payment or inventory. Delete and move on.
	if ord.Status == domain.StatusCompleted {
		e.log.Info("order_already_completed", map[string]any{"order_id": orderID})
		e.deleteMessage(ctx, msg, orderID)
		return
	}

	// The store enforces the transition rules under a row lock, so only
	// one engine instance can win pending -> processing for a given order
	// even when both read the row before either wrote. The loser skips
	// the workflow and leaves the message for redelivery, where the
	// completed guard above resolves it.
	if _, err := e.store.UpdateOrderStatus(ctx, orderID, domain.StatusProcessing); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			e.log.Info("order_claimed_elsewhere", map[string]any{"order_id": orderID, "message_id": msg.ID})
			return
		}
		e.log.Error("order_processing_transition_failed", err, map[string]any{"order_id": orderID})
		return
	}
	e.log.Info("order_processing_started", map[string]any{"order_id": orderID})

	if err := e.runSteps(ctx, fm); err != nil {
		e.log.Error("order_workflow_failed", err, map[string]any{"order_id": orderID})
		e.markFailed(ctx, orderID)
		return // keep the message; redelivery and dead-lettering are the queue's job
	}

	// Status update happens-before message delete: a crash between the two
	// leaves a redeliverable message for an already-completed order, which
	// the guard above absorbs. If the completed write itself fails the
	// order goes through the failed path and may be re-run via redelivery
	// or reprocessing; the re-run is safe because the payment charge is
	// keyed on the order id and the processor deduplicates on it.
	if _, err := e.store.UpdateOrderStatus(ctx, orderID, domain.StatusCompleted); err != nil {
		e.log.Error("order_completed_transition_failed", err, map[string]any{"order_id": orderID})
		e.markFailed(ctx, orderID)
		return
	}
	e.deleteMessage(ctx, msg, orderID)
	e.log.Info("order_completed", map[string]any{"order_id": orderID})
}

// runSteps executes the ordered workflow: inventory check, payment,
// inventory decrement, delivery scheduling. Each step runs under its own
// deadline so a stalled external call cannot stall the poll cycle.
func (e *Engine) runSteps(ctx context.Context, fm domain.FulfillmentMessage) error {
	if err := e.step(ctx, func(sctx context.Context) error {
		return e.inventory.CheckAvailability(sctx, fm.Items)
	}); err != nil {
		return err
	}

	if err := e.step(ctx, func(sctx context.Context) error {
		return e.payments.Charge(sctx, fm.StudentID, fm.OrderID, fm.TotalAmount)
	}); err != nil {
		return err
	}

	if err := e.step(ctx, func(sctx context.Context) error {
		return e.inventory.Decrement(sctx, fm.Items)
	}); err != nil {
		return &WorkflowStepError{Step: "inventory_update", Err: err}
	}

	if err := e.step(ctx, func(sctx context.Context) error {
		return e.delivery.Schedule(sctx, fm.OrderID, fm.DeliveryDate)
	}); err != nil {
		return &WorkflowStepError{Step: "delivery_scheduling", Err: err}
	}

	return nil
}

func (e *Engine) step(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	return fn(sctx)
}

// handlePoison deals with messages that can never be processed. The order
// id is recovered from message attributes when the body is unusable, the
// order (if resolvable) is marked failed, and the message is deleted so it
// does not cycle through redelivery forever.
func (e *Engine) handlePoison(ctx context.Context, msg queue.Message, cause error) {
	orderID := msg.Attributes[queue.AttrOrderID]
	e.log.Error("malformed_message", cause, map[string]any{"message_id": msg.ID, "order_id": orderID})

	if orderID != "" {
		e.markFailed(ctx, orderID)
	}
	if err := e.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		e.log.Error("poison_delete_failed", &QueueDeleteError{Err: err}, map[string]any{"message_id": msg.ID})
	}
}

// markFailed is the failure handler: best-effort, errors are logged and
// swallowed so a secondary failure never propagates out of the workflow.
func (e *Engine) markFailed(ctx context.Context, orderID string) {
	if _, err := e.store.UpdateOrderStatus(ctx, orderID, domain.StatusFailed); err != nil {
		e.log.Error("order_failed_transition_failed", err, map[string]any{"order_id": orderID})
	}
}

func (e *Engine) deleteMessage(ctx context.Context, msg queue.Message, orderID string) {
	if err := e.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The order is already completed; redelivery hits the idempotence
		// guard, so this is log-only.
		e.log.Error("message_delete_failed", &QueueDeleteError{Err: err}, map[string]any{
			"order_id": orderID, "message_id": msg.ID,
		})
	}
}
