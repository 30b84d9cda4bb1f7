package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/catalog"
	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	"github.com/hugo-lorenzo-mato/flowrun/internal/tui"
)

var workflowsCmd = &cobra.Command{
	Use:     "workflows",
	Aliases: []string{"wf"},
	Short:   "Manage stored workflows",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows",
	Args:  cobra.NoArgs,
	RunE:  runWorkflowsList,
}

var workflowsImportCmd = &cobra.Command{
	Use:   "import <file|dir>...",
	Short: "Validate and store workflow files",
	Long: `Import workflow files into the state store. A directory imports every
.yaml, .yml and .json file directly under it. Invalid files are reported and
skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWorkflowsImport,
}

var workflowsDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a stored workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsDelete,
}

var workflowsOutput string

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsImportCmd)
	workflowsCmd.AddCommand(workflowsDeleteCmd)

	workflowsListCmd.Flags().StringVarP(&workflowsOutput, "output", "o", "",
		"Output format (rich, plain, json)")
}

func runWorkflowsList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.store.ListWorkflows(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing workflows: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	out := cmd.OutOrStdout()
	mode := outputMode(workflowsOutput)
	if mode == tui.ModeJSON {
		if list == nil {
			list = []*core.Workflow{}
		}
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		fmt.Fprintln(out, "Run 'flowrun workflows import <file>' to add one.")
		return nil
	}

	p := painter(mode)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tNODES\tUPDATED")
	for _, wf := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			wf.ID, truncateString(wf.Name, 40), len(wf.Nodes),
			p.Render(tui.SubtleStyle, wf.UpdatedAt.Local().Format(time.DateTime)))
	}
	return w.Flush()
}

func runWorkflowsImport(cmd *cobra.Command, args []string) error {
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
	loader := catalog.NewLoader(a.store, a.logger)
	out := cmd.OutOrStdout()

	failed := 0
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			res, err := loader.ImportDir(ctx, path)
			if err != nil {
				return err
			}
			for _, id := range res.Imported {
				fmt.Fprintf(out, "imported %s\n", id)
			}
			for file, ferr := range res.Failed {
				fmt.Fprintf(out, "failed   %s: %v\n", file, ferr)
			}
			failed += len(res.Failed)
			continue
		}
		wf, err := loader.ImportFile(ctx, path)
		if err != nil {
			fmt.Fprintf(out, "failed   %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "imported %s\n", wf.ID)
	}

	if failed > 0 {
		return fmt.Errorf("%d workflow files failed to import", failed)
	}
	return nil
}

func runWorkflowsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.DeleteWorkflow(cmd.Context(), core.WorkflowID(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
