// Package setup implements the step coordinator: it installs the Cloud SDK
// at the requested version, authenticates it, sets the default project and
// reports the installed version.
package setup

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/fredrikaverpil/setup-cloudsdk/internal/config"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/gcloud"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/preflight"
)

// Variables exported to later steps.
const (
	EnvMetricsEnvironment        = "CLOUDSDK_METRICS_ENVIRONMENT"
	EnvMetricsEnvironmentVersion = "CLOUDSDK_METRICS_ENVIRONMENT_VERSION"
	EnvDisablePrompts            = "CLOUDSDK_CORE_DISABLE_PROMPTS"
)

// MetricsEnvironment identifies this action to the SDK's usage metrics.
const MetricsEnvironment = "github-actions-setup-gcloud"

// OutputVersion is the name of the step output carrying the version.
const OutputVersion = "version"

// Host is the runner the step reports to.
type Host interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
	SetEnv(k, v string)
	SetOutput(k, v string)
	AddPath(dir string)
}

// Provisioner resolves and installs SDK versions.
type Provisioner interface {
	ResolveLatest(ctx context.Context) (string, error)
	FindCached(spec string) string
	Install(ctx context.Context, spec string, useCache bool) (string, error)
	InstallComponents(ctx context.Context, names []string) error
}

// Broker authenticates the SDK and sets its project.
type Broker interface {
	Authenticate(ctx context.Context, credentialsFile string) error
	AuthStatus(ctx context.Context) gcloud.AuthStatus
	SetProject(ctx context.Context, projectID string) error
}

// Preflight runs the checks preceding everything else.
type Preflight interface {
	CheckPin(actionRepo, ref, recommended string)
	CheckSubscription(ctx context.Context, repo string) error
}

// Env holds the ambient values the step reads besides its inputs.
type Env struct {
	CredentialsFile  string
	Repository       string
	ActionRef        string
	ActionRepository string
}

// Release describes this build of the action.
type Release struct {
	Version  string // e.g. "2.1.4"
	MajorRef string // e.g. "v2"
}

// Coordinator runs the step.
type Coordinator struct {
	Host        Host
	Provisioner Provisioner
	Broker      Broker
	Preflight   Preflight
	// Inputs loads the step inputs. It is called exactly once per Run.
	Inputs  func() (config.StepInputs, error)
	Env     Env
	Release Release
	Logger  hclog.Logger
}

// IsHalt reports whether err requires the process to stop immediately
// without reporting a failure.
func IsHalt(err error) bool {
	return errors.Is(err, preflight.ErrSubscriptionRejected)
}

// Run executes the step. A halt signal (see IsHalt) is returned as is. Any
// other error has already been reported to the host as the step failure.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	if err := c.Preflight.CheckSubscription(ctx, c.Env.Repository); err != nil {
		return Result{}, err
	}
	c.Preflight.CheckPin(c.Env.ActionRepository, c.Env.ActionRef, c.Release.MajorRef)

	var res Result
	if err := c.run(ctx, &res); err != nil {
		c.Host.Errorf("%s", err)
		return res, err
	}
	return res, nil
}

func (c *Coordinator) run(ctx context.Context, res *Result) error {
	in, err := c.Inputs()
	if err != nil {
		return err
	}
	c.logger().Debug("inputs", "skip_install", in.SkipInstall, "version", in.Version.String(),
		"version_kind", in.Version.Kind, "components", in.Components, "project_id", in.ProjectID, "cache", in.UseCache)

	c.Host.SetEnv(EnvMetricsEnvironment, MetricsEnvironment)
	c.Host.SetEnv(EnvMetricsEnvironmentVersion, c.Release.Version)
	c.Host.SetEnv(EnvDisablePrompts, "1")

	if err := c.install(ctx, in, res); err != nil {
		return err
	}

	if len(in.Components) > 0 {
		if err := c.Provisioner.InstallComponents(ctx, in.Components); err != nil {
			return err
		}
	}

	if err := c.authenticate(ctx, res); err != nil {
		return err
	}

	if in.ProjectID != "" {
		if err := c.Broker.SetProject(ctx, in.ProjectID); err != nil {
			return err
		}
		c.Host.Infof("Successfully set default project")
	}

	if res.Version != "" {
		c.Host.SetOutput(OutputVersion, res.Version)
	}
	return nil
}

// install decides whether and what to install. It sets res.Version unless
// installation is skipped.
func (c *Coordinator) install(ctx context.Context, in config.StepInputs, res *Result) error {
	if in.SkipInstall {
		c.Host.Infof(`Skipping installation ("skip_install" was true)`)
		if in.Version.IsExplicit() {
			c.Host.Warningf(`Ignoring "version" because "skip_install" was true!`)
		}
		if len(in.Components) > 0 {
			c.Host.Warningf(`Installing custom components with "skip_install" set to true may fail, ` +
				`because the system-provided gcloud is not managed by this action.`)
		}
		res.Install = Skipped
		return nil
	}

	version, err := c.resolve(ctx, in.Version)
	if err != nil {
		return err
	}
	res.Version = version

	if root := c.Provisioner.FindCached(version); root != "" {
		c.Host.Infof("Using cached gcloud %s from %s", version, root)
		c.Host.AddPath(filepath.Join(root, "bin"))
		res.Install, res.Path = Cached, root
		return nil
	}

	root, err := c.Provisioner.Install(ctx, version, in.UseCache)
	if err != nil {
		return err
	}
	c.Host.AddPath(filepath.Join(root, "bin"))
	res.Install, res.Path = Installed, root
	return nil
}

// resolve turns the version input into the version or range to install.
func (c *Coordinator) resolve(ctx context.Context, spec config.VersionSpec) (string, error) {
	switch spec.Kind {
	case config.Unspecified:
		return config.AnyVersion, nil
	case config.Latest:
		return c.Provisioner.ResolveLatest(ctx)
	default:
		return spec.Value, nil
	}
}

func (c *Coordinator) authenticate(ctx context.Context, res *Result) error {
	if path := c.Env.CredentialsFile; path != "" {
		if err := c.Broker.Authenticate(ctx, path); err != nil {
			return err
		}
		c.Host.Infof("Successfully authenticated")
		res.Auth = AuthenticatedViaCredentialsFile
		return nil
	}

	status := c.Broker.AuthStatus(ctx)
	if status.State == gcloud.CheckFailed {
		c.Host.Debugf("Failed to check authentication status: %v", status.Err)
	}
	if !IsAuthenticated(status) {
		c.Host.Warningf("No authentication found for gcloud, authenticate with `google-github-actions/auth`.")
		res.Auth = UnauthenticatedWarned
		return nil
	}
	res.Auth = AlreadyAuthenticated
	return nil
}

// IsAuthenticated maps a status check to a yes/no answer. A failed check
// counts as not authenticated.
func IsAuthenticated(s gcloud.AuthStatus) bool {
	return s.State == gcloud.Authenticated
}

func (c *Coordinator) logger() hclog.Logger {
	if c.Logger == nil {
		return hclog.NewNullLogger()
	}
	return c.Logger
}
