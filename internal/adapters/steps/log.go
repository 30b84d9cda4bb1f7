package steps

import (
	"context"
	"strings"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
)

// LogStep writes the resolved "message" to the process log. The dispatcher's
// node-scoped logger is used when ctx carries one.
func LogStep(logger *logging.Logger) Step {
	return Step{
		Slug:        SlugLog,
		Description: "Writes a message to the engine log",
		Defaults:    map[string]any{"level": "info"},
		Run: func(ctx context.Context, in Input) (core.StepResult, error) {
			msg := in.String("message")
			l := logging.FromContext(ctx, logger.WithExecution(in.Run.ExecutionID).WithNode(in.Node.ID, in.Node.Name()))
			switch strings.ToLower(in.String("level")) {
			case "debug":
				l.DebugContext(ctx, msg)
			case "warn":
				l.WarnContext(ctx, msg)
			case "error":
				l.ErrorContext(ctx, msg)
			default:
				l.InfoContext(ctx, msg)
			}
			return core.Succeeded(map[string]any{"message": msg}), nil
		},
	}
}
