package steps

import (
	"context"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// TransformStep reshapes data. Its output is the resolved "fields" map when
// present, otherwise the whole resolved config.
func TransformStep() Step {
	return Step{
		Slug:        SlugTransform,
		Description: "Outputs resolved fields, reshaping upstream data",
		Run: func(_ context.Context, in Input) (core.StepResult, error) {
			if fields, ok := in.Config["fields"]; ok {
				return core.Succeeded(fields), nil
			}
			out := make(map[string]any, len(in.Config))
			for k, v := range in.Config {
				if k == "integrationId" {
					continue
				}
				out[k] = v
			}
			return core.Succeeded(out), nil
		},
	}
}
