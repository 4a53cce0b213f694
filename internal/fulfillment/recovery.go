package fulfillment

import (
	"context"
	"fmt"
	"time"

	"school-meals/internal/domain"
)

// ReprocessFailed resets recently failed orders to pending and resubmits
// them. Operator-invoked; not part of the automatic poll cycle. Per-order
// errors are logged individually so one bad row cannot abort the batch.
// Returns how many orders were resubmitted.
func (e *Engine) ReprocessFailed(ctx context.Context) (int, error) {
	since := time.Now().UTC().Add(-e.cfg.ReprocessWindow)
	failed, err := e.store.ListOrdersByStatus(ctx, domain.StatusFailed, since)
	if err != nil {
		return 0, fmt.Errorf("list failed orders: %w", err)
	}

	resubmitted := 0
	for i := range failed {
		o := &failed[i]
		if _, err := e.store.UpdateOrderStatus(ctx, o.ID, domain.StatusPending); err != nil {
			e.log.Error("reprocess_reset_failed", err, map[string]any{"order_id": o.ID})
			continue
		}
		if err := e.Submit(ctx, o); err != nil {
			e.log.Error("reprocess_submit_failed", err, map[string]any{"order_id": o.ID})
			continue
		}
		resubmitted++
		e.log.Info("failed_order_resubmitted", map[string]any{"order_id": o.ID})
	}

	e.log.Info("reprocess_completed", map[string]any{"found": len(failed), "resubmitted": resubmitted})
	return resubmitted, nil
}

// Stats aggregates order counts and completion latency over the stats
// window. Read-only.
func (e *Engine) Stats(ctx context.Context) (domain.ProcessingStats, error) {
	since := time.Now().UTC().Add(-e.cfg.StatsWindow)
	stats, err := e.store.AggregateStats(ctx, since)
	if err != nil {
		return domain.ProcessingStats{}, err
	}
	if e.isRunning() {
		stats.EngineStatus = "running"
	} else {
		stats.EngineStatus = "stopped"
	}
	return stats, nil
}
