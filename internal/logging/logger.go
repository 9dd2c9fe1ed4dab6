// Package logging builds the hclog logger used for internal diagnostics.
// Operator-facing messages go through workflow commands instead.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"
)

// Environment variables controlling the logger.
const (
	EnvLogLevel = "SETUP_CLOUDSDK_LOG_LEVEL"
	EnvJSONLog  = "SETUP_CLOUDSDK_JSON_LOG"
)

// Options configures NewLogger. Zero values use the defaults.
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// NewLogger creates a new hclog logger with standard settings.
func NewLogger(opts Options) hclog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	color := hclog.ColorOff
	if f, ok := output.(*os.File); ok && !opts.JSON && term.IsTerminal(int(f.Fd())) {
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      hclog.LevelFromString(opts.Level),
		JSONFormat: opts.JSON,
		Output:     output,
		Color:      color,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// LevelFromEnv returns the configured log level.
// RUNNER_DEBUG=1 (debug logging enabled on the runner) forces "debug";
// otherwise SETUP_CLOUDSDK_LOG_LEVEL is used, defaulting to "info".
func LevelFromEnv(getenv func(string) string) string {
	if getenv("RUNNER_DEBUG") == "1" {
		return "debug"
	}
	if level := getenv(EnvLogLevel); level != "" {
		return level
	}
	return "info"
}

// JSONFromEnv reports whether JSON log output was requested.
func JSONFromEnv(getenv func(string) string) bool {
	return getenv(EnvJSONLog) == "1"
}
