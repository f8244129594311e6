package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

// Observer receives execution lifecycle events. Implementations must be
// cheap and must not block the executor.
type Observer interface {
	BlockStart(ctx context.Context, kind schema.BlockKind, resultName string)
	BlockEnd(ctx context.Context, kind schema.BlockKind, err error)
	ActionDispatched(ctx context.Context, serviceID, actionType string, elapsed time.Duration, err error)
	ExecutionFinished(ctx context.Context, outcome *schema.ExecutionOutcome)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) BlockStart(context.Context, schema.BlockKind, string) {}

func (NopObserver) BlockEnd(context.Context, schema.BlockKind, error) {}

func (NopObserver) ActionDispatched(context.Context, string, string, time.Duration, error) {}

func (NopObserver) ExecutionFinished(context.Context, *schema.ExecutionOutcome) {}

// LogObserver emits structured lifecycle events through slog. The handler is
// expected to be wrapped with the correlation handler so workflow and
// execution IDs arrive from context.
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) BlockStart(ctx context.Context, kind schema.BlockKind, resultName string) {
	o.Logger.DebugContext(ctx, "block start", "kind", string(kind), "result_name", resultName)
}

func (o *LogObserver) BlockEnd(ctx context.Context, kind schema.BlockKind, err error) {
	if err != nil {
		o.Logger.WarnContext(ctx, "block failed", "kind", string(kind), "error", err)
		return
	}
	o.Logger.DebugContext(ctx, "block done", "kind", string(kind))
}

func (o *LogObserver) ActionDispatched(ctx context.Context, serviceID, actionType string, elapsed time.Duration, err error) {
	if err != nil {
		o.Logger.WarnContext(ctx, "action failed",
			"service_id", serviceID, "action_type", actionType, "elapsed", elapsed, "error", err)
		return
	}
	o.Logger.InfoContext(ctx, "action dispatched",
		"service_id", serviceID, "action_type", actionType, "elapsed", elapsed)
}

func (o *LogObserver) ExecutionFinished(ctx context.Context, outcome *schema.ExecutionOutcome) {
	var elapsed time.Duration
	if outcome.CompletedAt != nil {
		elapsed = outcome.CompletedAt.Sub(outcome.StartedAt)
	}
	o.Logger.InfoContext(ctx, "execution finished",
		"success", outcome.Success, "cancelled", outcome.Cancelled, "elapsed", elapsed)
}
