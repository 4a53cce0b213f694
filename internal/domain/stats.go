package domain

// ProcessingStats aggregates order counts and completion latency over a
// recent window, plus the reporting engine's run state.
type ProcessingStats struct {
	TotalOrders      int     `json:"total_orders"`
	PendingOrders    int     `json:"pending_orders"`
	ProcessingOrders int     `json:"processing_orders"`
	CompletedOrders  int     `json:"completed_orders"`
	FailedOrders     int     `json:"failed_orders"`
	CancelledOrders  int     `json:"cancelled_orders"`

	// Average of updated_at - created_at over completed orders, in seconds.
	AvgCompletionSeconds float64 `json:"avg_completion_seconds"`

	EngineStatus string `json:"engine_status,omitempty"`
}
