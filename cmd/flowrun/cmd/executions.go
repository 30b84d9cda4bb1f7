package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/tui"
)

var executionsCmd = &cobra.Command{
	Use:     "executions",
	Aliases: []string{"exec"},
	Short:   "Inspect recorded executions",
}

var executionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List executions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runExecutionsList,
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show an execution and its step logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionsShow,
}

var (
	execWorkflow string
	execLimit    int
	execOutput   string
)

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.AddCommand(executionsListCmd)
	executionsCmd.AddCommand(executionsShowCmd)

	executionsCmd.PersistentFlags().StringVarP(&execOutput, "output", "o", "",
		"Output format (rich, plain, json)")
	executionsListCmd.Flags().StringVar(&execWorkflow, "workflow", "",
		"Only list executions of this workflow")
	executionsListCmd.Flags().IntVar(&execLimit, "limit", 20,
		"Maximum number of executions")
}

func runExecutionsList(cmd *cobra.Command, _ []string) error {
	if execLimit < 1 {
		return fmt.Errorf("--limit must be positive")
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

	list, err := a.store.ListExecutions(cmd.Context(), core.WorkflowID(execWorkflow), execLimit)
	if err != nil {
		return err
	}

	mode := outputMode(execOutput)
	out := cmd.OutOrStdout()
	if mode == tui.ModeJSON {
		if list == nil {
			list = []*core.Execution{}
		}
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No executions found.")
		return nil
	}

	p := painter(mode)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tSTARTED\tDURATION")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.WorkflowID, p.Status(string(e.Status)),
			e.StartedAt.Local().Format(time.DateTime), formatDuration(e.Duration))
	}
	return w.Flush()
}

func runExecutionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	detail, err := a.store.GetExecution(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	mode := outputMode(execOutput)
	if mode == tui.ModeJSON {
		return writeJSON(cmd.OutOrStdout(), detail)
	}
	renderExecution(cmd.OutOrStdout(), painter(mode), detail)
	return nil
}

// renderExecution prints an execution header followed by one row per step.
func renderExecution(out io.Writer, p tui.Painter, detail *core.ExecutionDetail) {
	e := detail.Execution
	fmt.Fprintf(out, "%s %s\n", p.Render(tui.TitleStyle, "Execution"), e.ID)
	fmt.Fprintf(out, "  workflow: %s\n", e.WorkflowID)
	fmt.Fprintf(out, "  status:   %s\n", p.Status(string(e.Status)))
	fmt.Fprintf(out, "  duration: %s\n", formatDuration(e.Duration))
	if e.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", e.Error)
	}
	if len(detail.Steps) == 0 {
		return
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tTYPE\tSTATUS\tDURATION\tDETAIL")
	for _, s := range detail.Steps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.NodeName, s.NodeType, p.Status(string(s.Status)),
			formatDuration(s.Duration), truncateString(stepDetail(s), 60))
	}
	_ = w.Flush()
}

func stepDetail(s *core.StepLog) string {
	switch {
	case s.SkipReason != "":
		return string(s.SkipReason)
	case s.Error != "":
		return s.Error
	case s.Output != nil:
		return fmt.Sprintf("%v", s.Output)
	}
	return ""
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
