package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/flowrun/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new flowrun project",
	Long: `Initialize a new flowrun project in the current directory.
Creates .flowrun/config.yaml, the workflows directory and an example workflow.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce     bool
	initNoExample bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initNoExample, "no-example", false, "Do not write the example workflow")
}

// exampleWorkflowYAML greets the trigger's name, falling back to a default
// when the caller sends none.
const exampleWorkflowYAML = `name: Greet
description: Greets the name sent with the run input
nodes:
  - id: start
    type: trigger
    data:
      label: Start
      config:
        name: world
  - id: check
    type: condition
    data:
      label: IsDefault
      config:
        left: "{{Start.name}}"
        operator: eq
        right: world
  - id: default
    type: action
    data:
      label: Default
      actionSlug: log.message
      config:
        message: "nobody introduced themselves"
  - id: greet
    type: transform
    data:
      label: Greeting
      config:
        fields:
          message: "hello {{Start.name}}"
edges:
  - id: e1
    source: start
    target: check
  - id: e2
    source: check
    target: default
    sourceHandle: "true"
  - id: e3
    source: check
    target: greet
    sourceHandle: "false"
`

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	configPath := config.DefaultConfigPath

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", configPath)
	}
	if err := config.AtomicWrite(configPath, []byte(config.DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	workflowsDir := filepath.Join(config.ProjectDir, "workflows")
	if err := os.MkdirAll(workflowsDir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", workflowsDir, err)
	}

	if !initNoExample {
		examplePath := filepath.Join(workflowsDir, "greet.yaml")
		if _, err := os.Stat(examplePath); os.IsNotExist(err) || initForce {
			if err := config.AtomicWrite(examplePath, []byte(exampleWorkflowYAML)); err != nil {
				return fmt.Errorf("writing example workflow: %w", err)
			}
		}
	}

	fmt.Fprintln(out, "Initialized flowrun project in", config.ProjectDir)
	fmt.Fprintln(out, "Configuration file:", configPath)
	fmt.Fprintln(out, "Run 'flowrun run greet' after 'flowrun workflows import .flowrun/workflows'")
	return nil
}
