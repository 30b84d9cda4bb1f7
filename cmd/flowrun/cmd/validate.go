package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/catalog"
	"github.com/hugo-lorenzo-mato/flowrun/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/flowrun/internal/service"
	"github.com/hugo-lorenzo-mato/flowrun/internal/tui"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate workflow files without running them",
	Long: `Validate workflow files: the graph must have exactly one trigger, no
cycles, no dangling edges and unique labels. Actions not registered with the
engine are reported as warnings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateOutput string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "",
		"Output format (rich, plain, json)")
}

type validateResult struct {
	File     string     `json:"file"`
	Valid    bool       `json:"valid"`
	Error    string     `json:"error,omitempty"`
	Order    []string   `json:"order,omitempty"`
	Levels   [][]string `json:"levels,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Validation never records anything.
	cfg.State.Path = state.MemoryPath
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]validateResult, 0, len(args))
	invalid := 0
	for _, path := range args {
		res := validateResult{File: path}
		wf, err := catalog.ParseFile(path)
		if err == nil {
			var plan *service.GraphPlan
			plan, err = a.runner.Validate(wf)
			if err == nil {
				res.Valid = true
				res.Order = plan.Order
				res.Levels = plan.Levels
				if err := a.runner.CheckActions(wf); err != nil {
					res.Warnings = append(res.Warnings, err.Error())
				}
			}
		}
		if err != nil {
			res.Error = err.Error()
			invalid++
		}
		results = append(results, res)
	}

	mode := outputMode(validateOutput)
	out := cmd.OutOrStdout()
	if mode == tui.ModeJSON {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		p := painter(mode)
		for _, r := range results {
			if !r.Valid {
				fmt.Fprintf(out, "%s %s: %s\n", p.Render(tui.ErrorStyle, "invalid"), r.File, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s %s (%s)\n", p.Render(tui.SuccessStyle, "valid"), r.File, strings.Join(r.Order, " -> "))
			for _, w := range r.Warnings {
				fmt.Fprintf(out, "  %s %s\n", p.Render(tui.WarningStyle, "warning:"), w)
			}
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d workflow files are invalid", invalid, len(args))
	}
	return nil
}
