package steps

import (
	"net/http"
	"time"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
)

// Slugs of the built-in steps.
const (
	SlugTrigger   = "trigger"
	SlugCondition = "condition"
	SlugTransform = "transform"
	SlugHTTP      = "http.request"
	SlugLog       = "log.message"
)

// DefaultSlug returns the slug used for a node that declares none.
func DefaultSlug(t core.NodeType) string {
	switch t {
	case core.NodeTypeTrigger:
		return SlugTrigger
	case core.NodeTypeCondition:
		return SlugCondition
	case core.NodeTypeTransform:
		return SlugTransform
	}
	return ""
}

// BuiltinOptions configures the built-in steps.
type BuiltinOptions struct {
	HTTPClient   *http.Client
	HTTPTimeout  time.Duration
	UserAgent    string
	MaxBodyBytes int64
	Logger       *logging.Logger
}

// NewBuiltinRegistry builds a registry holding every built-in step.
func NewBuiltinRegistry(opts BuiltinOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return NewRegistry().MustRegister(
		TriggerStep(),
		ConditionStep(),
		TransformStep(),
		HTTPRequestStep(opts),
		LogStep(opts.Logger),
	)
}
