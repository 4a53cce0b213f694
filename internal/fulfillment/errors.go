package fulfillment

import "fmt"

// QueuePublishError reports a failed enqueue during Submit. The order row
// is always left in place; the caller decides what to do with it.
type QueuePublishError struct {
	Err error
}

func (e *QueuePublishError) Error() string { return fmt.Sprintf("queue publish failed: %v", e.Err) }
func (e *QueuePublishError) Unwrap() error { return e.Err }

// QueueReceiveError reports a failed poll. It is logged and swallowed; the
// next cycle retries.
type QueueReceiveError struct {
	Err error
}

func (e *QueueReceiveError) Error() string { return fmt.Sprintf("queue receive failed: %v", e.Err) }
func (e *QueueReceiveError) Unwrap() error { return e.Err }

// QueueDeleteError reports a failed message delete after a completed
// workflow. The order is already completed, so redelivery is a safe no-op.
type QueueDeleteError struct {
	Err error
}

func (e *QueueDeleteError) Error() string { return fmt.Sprintf("queue delete failed: %v", e.Err) }
func (e *QueueDeleteError) Unwrap() error { return e.Err }

// WorkflowStepError wraps a failure from a side-effect step (inventory
// update, delivery scheduling).
type WorkflowStepError struct {
	Step string
	Err  error
}

func (e *WorkflowStepError) Error() string { return fmt.Sprintf("workflow step %s: %v", e.Step, e.Err) }
func (e *WorkflowStepError) Unwrap() error { return e.Err }
