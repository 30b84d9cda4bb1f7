package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <file|workflow-id>",
	Short: "Run a workflow and wait for it to finish",
	Long: `Run a workflow in the foreground and print its execution record.

The argument is a workflow file (YAML or JSON) when it exists on disk, and the
id of a stored workflow otherwise. The command exits non-zero when the
execution ends in error.

Examples:
  flowrun run .flowrun/workflows/greet.yaml --input '{"name":"Ada"}'
  flowrun run greet --input @input.json -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runInput  string
	runUser   string
	runOutput string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runInput, "input", "",
		"Trigger input as a JSON object, or @file to read it from a file")
	runCmd.Flags().StringVar(&runUser, "user", "",
		"User id recorded on the execution")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"Output format (rich, plain, json)")
}

func runRun(cmd *cobra.Command, args []string) error {
	input, err := parseInput(runInput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	wf, err := a.loadWorkflowArg(ctx, args[0])
	if err != nil {
		return err
	}

	report, err := a.runner.RunSync(ctx, wf, input, runUser)
	if err != nil {
		return err
	}

	detail, err := a.store.GetExecution(ctx, report.ExecutionID)
	if err != nil {
		return err
	}

	mode := outputMode(runOutput)
	out := cmd.OutOrStdout()
	if mode == tui.ModeJSON {
		if err := writeJSON(out, detail); err != nil {
			return err
		}
	} else {
		renderExecution(out, painter(mode), detail)
	}

	if report.Status != core.StatusSuccess {
		return fmt.Errorf("execution %s failed: %s", report.ExecutionID, report.Error)
	}
	return nil
}
