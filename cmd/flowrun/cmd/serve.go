package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/catalog"
	"github.com/hugo-lorenzo-mato/flowrun/internal/api"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the flowrun API server.

Workflow files found in the workflows directory are imported on startup and,
with workflows.watch enabled, re-imported whenever they change. Executions
left running by a previous process are closed as failed.

Examples:
  # Start with configured host and port (default 127.0.0.1:8080)
  flowrun serve

  # Start on custom host and port
  flowrun serve --host 0.0.0.0 --port 3000

  # Disable CORS (for production behind a reverse proxy)
  flowrun serve --no-cors`,
	RunE: runServe,
}

var (
	serveHost   string
	servePort   int
	serveNoCORS bool
	serveDrain  time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"Host address to bind to (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"Disable CORS headers")
	serveCmd.Flags().DurationVar(&serveDrain, "drain-timeout", 30*time.Second,
		"How long to wait for running executions on shutdown")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	workflow.WatchOutcomes(a.bus, a.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.runner.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recovering interrupted executions: %w", err)
	}

	loader := catalog.NewLoader(a.store, a.logger)
	if dir := cfg.Workflows.Dir; dir != "" {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			res, err := loader.ImportDir(ctx, dir)
			if err != nil {
				return fmt.Errorf("importing workflows: %w", err)
			}
			a.logger.Info("workflows imported", "dir", dir, "imported", len(res.Imported), "failed", len(res.Failed))
		}
	}

	opts := []api.ServerOption{api.WithLogger(a.logger), api.WithEventBus(a.bus)}
	if cfg.Server.CORS && !serveNoCORS {
		opts = append(opts, api.WithCORS(cfg.Server.AllowedOrigins))
	}
	server := api.NewServer(a.store, a.store, a.runner, opts...)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr)
	})
	if cfg.Workflows.Watch && cfg.Workflows.Dir != "" {
		if err := os.MkdirAll(cfg.Workflows.Dir, 0o750); err != nil {
			return fmt.Errorf("creating workflows dir: %w", err)
		}
		watcher := catalog.NewWatcher(loader, cfg.Workflows.Dir, a.logger)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	serveErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), serveDrain)
	defer cancel()
	if err := a.runner.Wait(drainCtx); err != nil {
		a.logger.Warn("shutdown: executions still running", "active", a.runner.Active())
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("server: %w", serveErr)
	}
	a.logger.Info("server stopped")
	return nil
}
