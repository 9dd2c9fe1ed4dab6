package gcloud

import (
	"context"
	"fmt"
	"strings"
)

// AuthState is the outcome of an authentication status check.
type AuthState int

const (
	// Unauthenticated means the CLI reported no active account.
	Unauthenticated AuthState = iota
	// Authenticated means the CLI has an active account.
	Authenticated
	// CheckFailed means the status could not be determined.
	CheckFailed
)

func (s AuthState) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	case CheckFailed:
		return "check failed"
	default:
		return "unknown"
	}
}

// AuthStatus is the result of Broker.AuthStatus.
// Err is set only when State is CheckFailed.
type AuthStatus struct {
	State AuthState
	Err   error
}

// Broker authenticates the CLI and configures its default project.
type Broker struct {
	cli *CLI
}

// NewBroker creates a Broker.
func NewBroker(cli *CLI) *Broker {
	return &Broker{cli: cli}
}

// Authenticate activates the credentials in the given file.
func (b *Broker) Authenticate(ctx context.Context, credentialsFile string) error {
	if _, err := b.cli.Run(ctx, "--quiet", "auth", "login", "--cred-file", credentialsFile); err != nil {
		return fmt.Errorf("authenticate with %s: %w", credentialsFile, err)
	}
	return nil
}

// AuthStatus reports whether the CLI has an active account.
func (b *Broker) AuthStatus(ctx context.Context) AuthStatus {
	out, err := b.cli.Run(ctx, "auth", "list", "--filter=status:ACTIVE", "--format=value(account)")
	if err != nil {
		return AuthStatus{State: CheckFailed, Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return AuthStatus{State: Unauthenticated}
	}
	return AuthStatus{State: Authenticated}
}

// SetProject sets the default project.
func (b *Broker) SetProject(ctx context.Context, projectID string) error {
	if _, err := b.cli.Run(ctx, "--quiet", "config", "set", "project", projectID); err != nil {
		return fmt.Errorf("set project %s: %w", projectID, err)
	}
	return nil
}
