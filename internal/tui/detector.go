package tui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// OutputMode selects how commands render their results.
type OutputMode int

const (
	// ModeRich styles output for an interactive terminal.
	ModeRich OutputMode = iota
	// ModePlain writes uncoloured text for pipes and CI logs.
	ModePlain
	// ModeJSON writes machine-readable JSON.
	ModeJSON
)

var modeNames = map[OutputMode]string{
	ModeRich:  "rich",
	ModePlain: "plain",
	ModeJSON:  "json",
}

func (m OutputMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseOutputMode parses the -o flag. "text" is accepted for plain; unknown
// values select ModeRich.
func ParseOutputMode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "text":
		return ModePlain
	case "json":
		return ModeJSON
	}
	return ModeRich
}

// Detector picks an output mode from flags, environment and the terminal.
type Detector struct {
	forceMode *OutputMode
	noColor   bool
	isTTY     func() bool
}

// NewDetector creates a detector that inspects stdout.
func NewDetector() *Detector {
	return &Detector{isTTY: stdoutIsTTY}
}

// ForceMode overrides detection.
func (d *Detector) ForceMode(mode OutputMode) *Detector {
	d.forceMode = &mode
	return d
}

// NoColor disables colour regardless of mode.
func (d *Detector) NoColor(disable bool) *Detector {
	d.noColor = disable
	return d
}

// Detect resolves the mode. Precedence: forced mode, FLOWRUN_OUTPUT=json,
// CI environments (plain), then whether stdout is a terminal.
func (d *Detector) Detect() OutputMode {
	switch {
	case d.forceMode != nil:
		return *d.forceMode
	case os.Getenv("FLOWRUN_OUTPUT") == "json":
		return ModeJSON
	case os.Getenv("CI") != "", os.Getenv("GITHUB_ACTIONS") != "":
		return ModePlain
	case !d.isTTY():
		return ModePlain
	}
	return ModeRich
}

// ShouldUseColor honours --no-color, NO_COLOR and TERM=dumb, and colours rich
// output only.
func (d *Detector) ShouldUseColor() bool {
	if d.noColor || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return d.Detect() == ModeRich
}

func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
