// Package actions adapts the GitHub Actions runner protocol for the setup
// coordinator: annotations, exported variables, step outputs and PATH.
package actions

import (
	"os"
	"path/filepath"

	"github.com/sethvargo/go-githubactions"
)

// Host writes to the runner. Exported variables and PATH entries are also
// applied to the current process, so that the CLI invoked later in this run
// sees them.
type Host struct {
	*githubactions.Action

	getenv func(string) string
	setenv func(string, string) error
}

// Opt configures a Host.
type Opt func(*Host)

// WithProcessEnv replaces the functions used to read and update the
// current process environment.
func WithProcessEnv(getenv func(string) string, setenv func(string, string) error) Opt {
	return func(h *Host) {
		h.getenv = getenv
		h.setenv = setenv
	}
}

// New creates a Host around action.
func New(action *githubactions.Action, opts ...Opt) *Host {
	h := &Host{
		Action: action,
		getenv: os.Getenv,
		setenv: os.Setenv,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetEnv exports k=v to later steps and to this process.
func (h *Host) SetEnv(k, v string) {
	h.Action.SetEnv(k, v)
	if err := h.setenv(k, v); err != nil {
		h.Debugf("set %s in process environment: %v", k, err)
	}
}

// AddPath prepends dir to PATH for later steps and for this process.
func (h *Host) AddPath(dir string) {
	h.Action.AddPath(dir)
	path := dir
	if current := h.getenv("PATH"); current != "" {
		path = dir + string(filepath.ListSeparator) + current
	}
	if err := h.setenv("PATH", path); err != nil {
		h.Debugf("update process PATH: %v", err)
	}
}
