package steps

import (
	"context"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// TriggerStep outputs the run input. Static values in the trigger's config
// fill keys the payload leaves unset.
func TriggerStep() Step {
	return Step{
		Slug:        SlugTrigger,
		Description: "Manual trigger; outputs the run input payload",
		Run: func(_ context.Context, in Input) (core.StepResult, error) {
			out := make(map[string]any, len(in.Run.Input)+len(in.Config))
			for k, v := range in.Config {
				if k == "integrationId" {
					continue
				}
				out[k] = v
			}
			for k, v := range in.Run.Input {
				out[k] = v
			}
			return core.Succeeded(out), nil
		},
	}
}
