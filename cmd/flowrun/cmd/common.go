package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/catalog"
	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/credentials"
	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/steps"
	"github.com/hugo-lorenzo-mato/flowrun/internal/config"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
	"github.com/hugo-lorenzo-mato/flowrun/internal/fsutil"
	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service/workflow"
	"github.com/hugo-lorenzo-mato/flowrun/internal/tui"
)

// loadConfig loads and validates configuration using the global viper
// instance, so persistent flags take precedence.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// app holds the engine stack built from configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    state.Store
	registry *steps.Registry
	bus      *events.EventBus
	engine   *workflow.Engine
	runner   *workflow.Runner
}

// newApp opens the store and wires the engine. Logs go to stderr so command
// output on stdout stays machine readable.
func newApp(cfg *config.Config) (*app, error) {
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	for _, values := range cfg.Credentials {
		for _, v := range values {
			logger.Sanitizer().AddSecret(v)
		}
	}

	store, err := state.NewStore(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	registry := steps.NewBuiltinRegistry(steps.BuiltinOptions{
		HTTPTimeout:  cfg.HTTP.TimeoutDuration(),
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Logger:       logger,
	})

	dispatcherCfg := workflow.DefaultDispatcherConfig()
	dispatcherCfg.NodeTimeout = cfg.Engine.NodeTimeoutDuration()
	dispatcher := workflow.NewDispatcher(registry, credentials.NewStaticFetcher(cfg.Credentials), logger, dispatcherCfg)

	bus := events.New(100)
	engine := workflow.NewEngine(dispatcher, store, workflow.EngineConfig{
		MaxParallel: cfg.Engine.MaxParallel,
		RunTimeout:  cfg.Engine.RunTimeoutDuration(),
	}, logger).WithEvents(bus)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		bus:      bus,
		engine:   engine,
		runner:   workflow.NewRunner(engine, store, store, logger),
	}, nil
}

// Close releases the event bus and the store.
func (a *app) Close() {
	a.bus.Close()
	if err := state.CloseStore(a.store); err != nil {
		a.logger.Warn("failed to close state store", "error", err)
	}
}

// loadWorkflowArg treats arg as a workflow file when it exists on disk and as
// a stored workflow id otherwise.
func (a *app) loadWorkflowArg(ctx context.Context, arg string) (*core.Workflow, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return catalog.ParseFile(arg)
	}
	return a.store.GetWorkflow(ctx, core.WorkflowID(arg))
}

// outputMode resolves the -o flag of a command.
func outputMode(flag string) tui.OutputMode {
	detector := tui.NewDetector().NoColor(noColor)
	if flag != "" {
		detector.ForceMode(tui.ParseOutputMode(flag))
	}
	return detector.Detect()
}

// painter returns a painter honouring --no-color and the output mode.
func painter(mode tui.OutputMode) tui.Painter {
	if mode != tui.ModeRich {
		return tui.NewPainter(false)
	}
	return tui.NewPainter(tui.NewDetector().NoColor(noColor).ShouldUseColor())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const maxInputBytes = 1 << 20

// parseInput decodes a JSON object given inline or as @file.
func parseInput(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		b, err := fsutil.ReadFileScopedLimit(raw[1:], maxInputBytes)
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		data = b
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	return input, nil
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
