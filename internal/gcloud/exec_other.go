//go:build !unix

package gcloud

import "os/exec"

// setGracefulShutdown is a no-op; cmd.Cancel defaults to os.Process.Kill.
func setGracefulShutdown(_ *exec.Cmd) {}
