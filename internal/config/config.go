// Package config reads the step inputs of the action.
//
// Inputs are looked up as INPUT_<NAME> environment variables, the way the
// Actions runner passes them. An input whose variable is not set at all falls
// back to the default declared in action.yml, which makes local runs behave
// like runs on a runner.
package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	setupcloudsdk "github.com/fredrikaverpil/setup-cloudsdk"
)

// Input names as declared in action.yml.
const (
	InputSkipInstall       = "skip_install"
	InputVersion           = "version"
	InputInstallComponents = "install_components"
	InputProjectID         = "project_id"
	InputCache             = "cache"
)

// Ambient environment variables read by the action.
const (
	EnvCredentialsFile  = "GOOGLE_GHA_CREDS_PATH"
	EnvRepository       = "GITHUB_REPOSITORY"
	EnvActionRef        = "GITHUB_ACTION_REF"
	EnvActionRepository = "GITHUB_ACTION_REPOSITORY"
	EnvToolCache        = "RUNNER_TOOL_CACHE"
	EnvRunnerTemp       = "RUNNER_TEMP"
	EnvRunnerDebug      = "RUNNER_DEBUG"
)

// ErrInvalidBoolean is returned for boolean inputs outside the YAML 1.2 core schema.
var ErrInvalidBoolean = errors.New("invalid boolean input")

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// StepInputs is the snapshot of the action inputs for one run.
type StepInputs struct {
	SkipInstall bool
	Version     VersionSpec
	// Components is nil when no extra components were requested.
	Components []string
	ProjectID  string
	UseCache   bool
}

// Load reads all inputs once.
func Load(lookup LookupFunc) (StepInputs, error) {
	defaults, err := metadataDefaults(setupcloudsdk.Metadata)
	if err != nil {
		return StepInputs{}, err
	}
	get := func(name string) string {
		if v, ok := lookup(inputEnvName(name)); ok {
			return strings.TrimSpace(v)
		}
		return defaults[name]
	}

	skipInstall, err := parseBool(InputSkipInstall, get(InputSkipInstall))
	if err != nil {
		return StepInputs{}, err
	}
	useCache, err := parseBool(InputCache, get(InputCache))
	if err != nil {
		return StepInputs{}, err
	}

	return StepInputs{
		SkipInstall: skipInstall,
		Version:     ParseVersionSpec(get(InputVersion)),
		Components:  SplitComponents(get(InputInstallComponents)),
		ProjectID:   get(InputProjectID),
		UseCache:    useCache,
	}, nil
}

// SplitComponents splits a comma-separated list, trims every entry and drops
// empty ones. Returns nil when nothing remains.
func SplitComponents(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// inputEnvName maps an input name to its environment variable.
//
//	inputEnvName("skip_install") → "INPUT_SKIP_INSTALL"
func inputEnvName(name string) string {
	return "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
}

// parseBool accepts the YAML 1.2 core schema booleans. An empty value is false.
func parseBool(name, value string) (bool, error) {
	switch value {
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE", "":
		return false, nil
	default:
		return false, fmt.Errorf("%w %q: %q (use true or false)", ErrInvalidBoolean, name, value)
	}
}

type actionMetadata struct {
	Inputs map[string]struct {
		Default string `yaml:"default"`
	} `yaml:"inputs"`
}

// metadataDefaults returns the declared default for every input.
func metadataDefaults(data []byte) (map[string]string, error) {
	var meta actionMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse action metadata: %w", err)
	}
	defaults := make(map[string]string, len(meta.Inputs))
	for name, in := range meta.Inputs {
		defaults[name] = in.Default
	}
	return defaults, nil
}
