package gcloud

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// WaitDelay is the time to wait after interrupting the CLI before killing it.
const WaitDelay = 5 * time.Second

// CLIOpt configures a CLI.
type CLIOpt func(*CLI)

// WithBinary runs the given executable instead of looking up CommandName on PATH.
func WithBinary(path string) CLIOpt {
	return func(c *CLI) {
		c.binary = path
	}
}

// WithCLILogger sets the logger.
func WithCLILogger(l hclog.Logger) CLIOpt {
	return func(c *CLI) {
		c.logger = l
	}
}

// CLI runs Cloud CLI commands.
type CLI struct {
	binary string
	logger hclog.Logger
}

// NewCLI creates a CLI.
func NewCLI(opts ...CLIOpt) *CLI {
	c := &CLI{logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the CLI with args and returns its stdout.
// The executable is resolved on PATH at call time, so a directory added to
// PATH earlier in the run is honoured. On failure the error carries stderr.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	bin := c.binary
	if bin == "" {
		bin = CommandName()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = WaitDelay
	setGracefulShutdown(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("exec", "cmd", bin, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w\n%s", bin, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
