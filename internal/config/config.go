package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log         LogConfig                    `mapstructure:"log"`
	Server      ServerConfig                 `mapstructure:"server"`
	State       StateConfig                  `mapstructure:"state"`
	Engine      EngineConfig                 `mapstructure:"engine"`
	HTTP        HTTPConfig                   `mapstructure:"http"`
	Workflows   WorkflowsConfig              `mapstructure:"workflows"`
	Credentials map[string]map[string]string `mapstructure:"credentials"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	CORS           bool     `mapstructure:"cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StateConfig configures persistence.
type StateConfig struct {
	// Path of the SQLite database. ":memory:" keeps state in process.
	Path string `mapstructure:"path"`
}

// EngineConfig configures workflow execution.
type EngineConfig struct {
	MaxParallel int    `mapstructure:"max_parallel"`
	NodeTimeout string `mapstructure:"node_timeout"`
	RunTimeout  string `mapstructure:"run_timeout"`
}

// NodeTimeoutDuration parses NodeTimeout. Empty disables the limit.
func (c EngineConfig) NodeTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.NodeTimeout)
}

// RunTimeoutDuration parses RunTimeout. Empty disables the limit.
func (c EngineConfig) RunTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.RunTimeout)
}

// HTTPConfig configures the http.request step.
type HTTPConfig struct {
	Timeout      string `mapstructure:"timeout"`
	UserAgent    string `mapstructure:"user_agent"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// TimeoutDuration parses Timeout. Empty uses the step default.
func (c HTTPConfig) TimeoutDuration() time.Duration {
	return parseDurationOrZero(c.Timeout)
}

// WorkflowsConfig configures the workflow file catalog.
type WorkflowsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

func parseDurationOrZero(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
