// Command setup-cloudsdk is the entry point of the setup-cloudsdk action.
//
// It installs the Google Cloud SDK at the requested version, authenticates it
// and sets its default project. Inputs are read from INPUT_<NAME> environment
// variables as provided by the Actions runner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-githubactions"
	"github.com/spf13/cobra"

	setupcloudsdk "github.com/fredrikaverpil/setup-cloudsdk"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/actions"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/config"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/download"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/gcloud"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/logging"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/preflight"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/setup"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/toolcache"
)

var logLevel string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "setup-cloudsdk",
		Short:         "Install and configure the Google Cloud SDK on an Actions runner",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the release version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), setupcloudsdk.Version())
		},
	})
	return root
}

func run(ctx context.Context) error {
	level := logLevel
	if level == "" {
		level = logging.LevelFromEnv(os.Getenv)
	}
	logger := logging.NewLogger(logging.Options{
		Name:  "setup-cloudsdk",
		Level: level,
		JSON:  logging.JSONFromEnv(os.Getenv),
	})

	host := actions.New(githubactions.New())
	c := &setup.Coordinator{
		Host:        host,
		Provisioner: newProvisioner(logger),
		Broker:      gcloud.NewBroker(gcloud.NewCLI(gcloud.WithCLILogger(logger.Named("cli")))),
		Preflight:   preflight.New(host, preflight.WithLogger(logger.Named("preflight"))),
		Inputs: func() (config.StepInputs, error) {
			return config.Load(os.LookupEnv)
		},
		Env: setup.Env{
			CredentialsFile:  os.Getenv(config.EnvCredentialsFile),
			Repository:       os.Getenv(config.EnvRepository),
			ActionRef:        os.Getenv(config.EnvActionRef),
			ActionRepository: os.Getenv(config.EnvActionRepository),
		},
		Release: setup.Release{
			Version:  setupcloudsdk.Version(),
			MajorRef: setupcloudsdk.MajorRef(),
		},
		Logger: logger,
	}

	res, err := c.Run(ctx)
	if setup.IsHalt(err) {
		// Rejected subscription: stop at once, the error was already annotated.
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	logger.Debug("done", "install", res.Install, "auth", res.Auth, "version", res.Version, "path", res.Path)
	return nil
}

func newProvisioner(logger hclog.Logger) *gcloud.Provisioner {
	toolCache := os.Getenv(config.EnvToolCache)
	if toolCache == "" {
		toolCache = os.TempDir()
	}
	tempDir := os.Getenv(config.EnvRunnerTemp)
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return gcloud.NewProvisioner(
		download.New(download.WithLogger(logger.Named("download"))),
		toolcache.New(toolCache, toolcache.WithLogger(logger.Named("toolcache"))),
		gcloud.NewCLI(gcloud.WithCLILogger(logger.Named("cli"))),
		gcloud.WithTempDir(tempDir),
		gcloud.WithLogger(logger.Named("gcloud")),
	)
}
