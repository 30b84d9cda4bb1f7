package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns what it wrote.
// Flag variables and the global viper instance are reset first because cobra
// keeps them across executions.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetGlobals()
	t.Cleanup(resetGlobals)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetGlobals() {
	viper.Reset()
	bindFlags()

	cfgFile, logLevel, logFormat, noColor = "", "info", "auto", false
	serveHost, servePort, serveNoCORS = "", 0, false
	runInput, runUser, runOutput = "", "", ""
	execWorkflow, execLimit, execOutput = "", 20, ""
	validateOutput, workflowsOutput = "", ""
	initForce, initNoExample = false, false
}

// inTempProject switches to an empty directory and keeps logs quiet.
func inTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FLOWRUN_LOG_LEVEL", "error")
	t.Setenv("FLOWRUN_OUTPUT", "")
	t.Setenv("CI", "")
	return dir
}

func writeWorkflowFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const cyclicWorkflowYAML = `name: Loop
nodes:
  - id: t
    type: trigger
    data: {label: Start}
  - id: a
    type: action
    data: {label: A, actionSlug: log.message}
  - id: b
    type: action
    data: {label: B, actionSlug: log.message}
edges:
  - {id: e0, source: t, target: a}
  - {id: e1, source: a, target: b}
  - {id: e2, source: b, target: a}
`

const unknownActionYAML = `name: Broken
nodes:
  - id: t
    type: trigger
    data: {label: Start}
  - id: x
    type: action
    data: {label: Mail, actionSlug: email.send}
edges:
  - {id: e1, source: t, target: x}
`
