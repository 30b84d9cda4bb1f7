package workflow

import (
	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
)

// WatchOutcomes logs how every execution ended. Terminal events arrive on a
// priority subscription and are never dropped, so the subscription is drained
// until the bus closes. The returned channel is closed after that.
func WatchOutcomes(bus *events.EventBus, logger *logging.Logger) <-chan struct{} {
	ch := bus.SubscribePriority(events.TypeExecutionCompleted, events.TypeExecutionFailed)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			switch e := ev.(type) {
			case events.ExecutionCompletedEvent:
				logger.Info("execution completed", "workflow_id", e.WorkflowID(), "execution_id", e.ExecutionID(),
					"duration", e.Duration, "succeeded", e.Succeeded, "skipped", e.Skipped)
			case events.ExecutionFailedEvent:
				logger.Warn("execution failed", "workflow_id", e.WorkflowID(), "execution_id", e.ExecutionID(),
					"duration", e.Duration, "failed", e.Failed, "error", e.Error)
			}
		}
	}()
	return done
}
