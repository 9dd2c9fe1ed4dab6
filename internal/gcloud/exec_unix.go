//go:build unix

package gcloud

import (
	"os/exec"
	"syscall"
)

// setGracefulShutdown sends SIGINT on context cancellation.
func setGracefulShutdown(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
}
