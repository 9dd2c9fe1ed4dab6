package setup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/fredrikaverpil/setup-cloudsdk/internal/config"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/gcloud"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/preflight"
)

type fakeHost struct {
	infos    []string
	warnings []string
	errs     []string
	debugs   []string
	env      map[string]string
	outputs  map[string]string
	paths    []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{env: map[string]string{}, outputs: map[string]string{}}
}

func (h *fakeHost) Infof(f string, a ...any) { h.infos = append(h.infos, fmt.Sprintf(f, a...)) }
func (h *fakeHost) Warningf(f string, a ...any) {
	h.warnings = append(h.warnings, fmt.Sprintf(f, a...))
}
func (h *fakeHost) Errorf(f string, a ...any) { h.errs = append(h.errs, fmt.Sprintf(f, a...)) }
func (h *fakeHost) Debugf(f string, a ...any) { h.debugs = append(h.debugs, fmt.Sprintf(f, a...)) }
func (h *fakeHost) SetEnv(k, v string)        { h.env[k] = v }
func (h *fakeHost) SetOutput(k, v string)     { h.outputs[k] = v }
func (h *fakeHost) AddPath(dir string)        { h.paths = append(h.paths, dir) }

// fakeProvisioner keeps an in-memory cache keyed by the spec string.
type fakeProvisioner struct {
	latest     string
	latestErr  error
	cache      map[string]string
	installs   []string
	useCache   []bool
	installErr error
	compCalls  [][]string
	compErr    error
	resolves   int
}

func (p *fakeProvisioner) ResolveLatest(context.Context) (string, error) {
	p.resolves++
	return p.latest, p.latestErr
}

func (p *fakeProvisioner) FindCached(spec string) string { return p.cache[spec] }

func (p *fakeProvisioner) Install(_ context.Context, spec string, useCache bool) (string, error) {
	p.installs = append(p.installs, spec)
	p.useCache = append(p.useCache, useCache)
	if p.installErr != nil {
		return "", p.installErr
	}
	root := filepath.Join("/cache", "gcloud", spec, "x64")
	if p.cache == nil {
		p.cache = map[string]string{}
	}
	p.cache[spec] = root
	return root, nil
}

func (p *fakeProvisioner) InstallComponents(_ context.Context, names []string) error {
	p.compCalls = append(p.compCalls, names)
	return p.compErr
}

type fakeBroker struct {
	authPaths   []string
	authErr     error
	status      gcloud.AuthStatus
	statusCalls int
	projects    []string
	projectErr  error
}

func (b *fakeBroker) Authenticate(_ context.Context, path string) error {
	b.authPaths = append(b.authPaths, path)
	return b.authErr
}

func (b *fakeBroker) AuthStatus(context.Context) gcloud.AuthStatus {
	b.statusCalls++
	return b.status
}

func (b *fakeBroker) SetProject(_ context.Context, id string) error {
	b.projects = append(b.projects, id)
	return b.projectErr
}

type fakePreflight struct {
	subErr   error
	pins     [][3]string
	subRepos []string
}

func (p *fakePreflight) CheckPin(repo, ref, recommended string) {
	p.pins = append(p.pins, [3]string{repo, ref, recommended})
}

func (p *fakePreflight) CheckSubscription(_ context.Context, repo string) error {
	p.subRepos = append(p.subRepos, repo)
	return p.subErr
}

type harness struct {
	host   *fakeHost
	prov   *fakeProvisioner
	broker *fakeBroker
	pre    *fakePreflight
	loads  int
	c      *Coordinator
}

func newHarness(env map[string]string) *harness {
	h := &harness{
		host:   newFakeHost(),
		prov:   &fakeProvisioner{latest: "460.0.0", cache: map[string]string{}},
		broker: &fakeBroker{status: gcloud.AuthStatus{State: gcloud.Authenticated}},
		pre:    &fakePreflight{},
	}
	h.c = &Coordinator{
		Host:        h.host,
		Provisioner: h.prov,
		Broker:      h.broker,
		Preflight:   h.pre,
		Inputs: func() (config.StepInputs, error) {
			h.loads++
			return config.Load(func(k string) (string, bool) {
				v, ok := env[k]
				return v, ok
			})
		},
		Env:     Env{Repository: "acme/app", ActionRepository: "acme/setup-cloudsdk", ActionRef: "v2"},
		Release: Release{Version: "2.1.4", MajorRef: "v2"},
	}
	return h
}

func (h *harness) run(t *testing.T) (Result, error) {
	t.Helper()
	return h.c.Run(context.Background())
}

func contains(msgs []string, sub string) bool {
	return slices.ContainsFunc(msgs, func(m string) bool { return strings.Contains(m, sub) })
}

func TestRunInstallsUnspecifiedAsAnyVersion(t *testing.T) {
	h := newHarness(nil)
	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !slices.Equal(h.prov.installs, []string{config.AnyVersion}) {
		t.Errorf("installs = %q, want [%q]", h.prov.installs, config.AnyVersion)
	}
	if h.prov.resolves != 0 {
		t.Errorf("ResolveLatest called %d times, want 0", h.prov.resolves)
	}
	if res.Install != Installed || res.Version != config.AnyVersion {
		t.Errorf("Result = %+v", res)
	}
	if h.host.outputs[OutputVersion] != config.AnyVersion {
		t.Errorf("version output = %q", h.host.outputs[OutputVersion])
	}
	want := filepath.Join("/cache", "gcloud", config.AnyVersion, "x64", "bin")
	if !slices.Equal(h.host.paths, []string{want}) {
		t.Errorf("paths = %q, want [%q]", h.host.paths, want)
	}
}

func TestRunResolvesLatestOnce(t *testing.T) {
	h := newHarness(map[string]string{"INPUT_VERSION": "latest"})
	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.prov.resolves != 1 {
		t.Errorf("ResolveLatest called %d times, want 1", h.prov.resolves)
	}
	if !slices.Equal(h.prov.installs, []string{"460.0.0"}) {
		t.Errorf("installs = %q", h.prov.installs)
	}
	if res.Version != "460.0.0" || h.host.outputs[OutputVersion] != "460.0.0" {
		t.Errorf("version = %q, output = %q", res.Version, h.host.outputs[OutputVersion])
	}
}

func TestRunResolveLatestFailure(t *testing.T) {
	h := newHarness(map[string]string{"INPUT_VERSION": "latest"})
	h.prov.latestErr = errors.New("manifest unreachable")

	_, err := h.run(t)
	if err == nil {
		t.Fatal("Run() error = nil")
	}
	if len(h.prov.installs) != 0 {
		t.Errorf("installed despite resolve failure: %q", h.prov.installs)
	}
	if !contains(h.host.errs, "manifest unreachable") {
		t.Errorf("failure not reported: %q", h.host.errs)
	}
	if _, ok := h.host.outputs[OutputVersion]; ok {
		t.Error("version output set on failure")
	}
}

func TestRunUsesCache(t *testing.T) {
	h := newHarness(map[string]string{"INPUT_VERSION": "450.0.0", "INPUT_CACHE": "true"})
	h.prov.cache["450.0.0"] = "/tc/gcloud/450.0.0/x64"

	res, err := h.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.prov.installs) != 0 {
		t.Errorf("installed despite cache hit: %q", h.prov.installs)
	}
	if res.Install != Cached || res.Path != "/tc/gcloud/450.0.0/x64" {
		t.Errorf("Result = %+v", res)
	}
	if !slices.Equal(h.host.paths, []string{filepath.Join("/tc/gcloud/450.0.0/x64", "bin")}) {
		t.Errorf("paths = %q", h.host.paths)
	}
}

func TestRunPassesCacheFlag(t *testing.T) {
	for _, useCache := range []bool{false, true} {
		t.Run(fmt.Sprint(useCache), func(t *testing.T) {
			h := newHarness(map[string]string{"INPUT_VERSION": ">= 400.0.0", "INPUT_CACHE": fmt.Sprint(useCache)})
			if _, err := h.run(t); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !slices.Equal(h.prov.installs, []string{">= 400.0.0"}) || !slices.Equal(h.prov.useCache, []bool{useCache}) {
				t.Errorf("installs = %q, useCache = %v", h.prov.installs, h.prov.useCache)
			}
			if h.host.outputs[OutputVersion] != ">= 400.0.0" {
				t.Errorf("version output = %q", h.host.outputs[OutputVersion])
			}
		})
	}
}

func TestRunIsIdempotentWithWarmCache(t *testing.T) {
	env := map[string]string{"INPUT_VERSION": "450.0.0"}
	h := newHarness(env)
	first, err := h.run(t)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	second, err := h.c.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if first.Install != Installed || second.Install != Cached {
		t.Errorf("outcomes = %v, %v, want installed, cached", first.Install, second.Install)
	}
	if len(h.prov.installs) != 1 {
		t.Errorf("installs = %q, want one", h.prov.installs)
	}
	if first.Path != second.Path || first.Version != second.Version {
		t.Errorf("runs disagree: %+v vs %+v", first, second)
	}
}

func TestRunExportsEnvironment(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"install": nil,
		"skip":    {"INPUT_SKIP_INSTALL": "true"},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(env)
			if _, err := h.run(t); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			want := map[string]string{
				EnvMetricsEnvironment:        MetricsEnvironment,
				EnvMetricsEnvironmentVersion: "2.1.4",
				EnvDisablePrompts:            "1",
			}
			for k, v := range want {
				if h.host.env[k] != v {
					t.Errorf("%s = %q, want %q", k, h.host.env[k], v)
				}
			}
		})
	}
}

func TestRunSkipInstall(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantIgnore bool
		wantComps  bool
	}{
		{name: "no version", env: map[string]string{}},
		{name: "latest is not warned", env: map[string]string{"INPUT_VERSION": "latest"}},
		{name: "exact is warned", env: map[string]string{"INPUT_VERSION": "450.0.0"}, wantIgnore: true},
		{name: "range is warned", env: map[string]string{"INPUT_VERSION": "> 400"}, wantIgnore: true},
		{name: "components", env: map[string]string{"INPUT_INSTALL_COMPONENTS": "alpha,beta"}, wantComps: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.env["INPUT_SKIP_INSTALL"] = "true"
			h := newHarness(tc.env)
			res, err := h.run(t)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Install != Skipped || res.Version != "" {
				t.Errorf("Result = %+v", res)
			}
			if h.prov.resolves != 0 || len(h.prov.installs) != 0 || len(h.host.paths) != 0 {
				t.Errorf("provisioned while skipping: resolves=%d installs=%q paths=%q",
					h.prov.resolves, h.prov.installs, h.host.paths)
			}
			if !contains(h.host.infos, `Skipping installation ("skip_install" was true)`) {
				t.Errorf("infos = %q", h.host.infos)
			}
			if got := contains(h.host.warnings, `Ignoring "version"`); got != tc.wantIgnore {
				t.Errorf("version warning = %v, want %v (%q)", got, tc.wantIgnore, h.host.warnings)
			}
			if got := contains(h.host.warnings, "custom components"); got != tc.wantComps {
				t.Errorf("components warning = %v, want %v", got, tc.wantComps)
			}
			if tc.wantComps && !slices.EqualFunc(h.prov.compCalls, [][]string{{"alpha", "beta"}}, slices.Equal[[]string]) {
				t.Errorf("component calls = %q", h.prov.compCalls)
			}
			if _, ok := h.host.outputs[OutputVersion]; ok {
				t.Error("version output set while skipping")
			}
		})
	}
}

func TestRunComponents(t *testing.T) {
	t.Run("OneBatchedCall", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_INSTALL_COMPONENTS": " alpha, beta ,gke-gcloud-auth-plugin"})
		if _, err := h.run(t); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		want := [][]string{{"alpha", "beta", "gke-gcloud-auth-plugin"}}
		if len(h.prov.compCalls) != 1 || !slices.Equal(h.prov.compCalls[0], want[0]) {
			t.Errorf("component calls = %q, want %q", h.prov.compCalls, want)
		}
	})

	t.Run("NoneRequested", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_INSTALL_COMPONENTS": " , "})
		if _, err := h.run(t); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(h.prov.compCalls) != 0 {
			t.Errorf("component calls = %q, want none", h.prov.compCalls)
		}
	})

	t.Run("FailureIsFatal", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_INSTALL_COMPONENTS": "alpha", "INPUT_PROJECT_ID": "p"})
		h.prov.compErr = errors.New("unknown component")
		if _, err := h.run(t); err == nil {
			t.Fatal("Run() error = nil")
		}
		if h.broker.statusCalls != 0 || len(h.broker.projects) != 0 {
			t.Error("continued after component failure")
		}
		if !contains(h.host.errs, "unknown component") {
			t.Errorf("errs = %q", h.host.errs)
		}
	})
}

func TestRunAuthentication(t *testing.T) {
	t.Run("CredentialsFile", func(t *testing.T) {
		h := newHarness(nil)
		h.c.Env.CredentialsFile = "/tmp/creds.json"
		res, err := h.run(t)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !slices.Equal(h.broker.authPaths, []string{"/tmp/creds.json"}) {
			t.Errorf("authPaths = %q", h.broker.authPaths)
		}
		if h.broker.statusCalls != 0 {
			t.Error("status checked despite credentials file")
		}
		if res.Auth != AuthenticatedViaCredentialsFile {
			t.Errorf("Auth = %v", res.Auth)
		}
	})

	t.Run("CredentialsFileFailureIsFatal", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_PROJECT_ID": "p"})
		h.c.Env.CredentialsFile = "/tmp/creds.json"
		h.broker.authErr = errors.New("bad key")
		if _, err := h.run(t); err == nil {
			t.Fatal("Run() error = nil")
		}
		if len(h.broker.projects) != 0 {
			t.Error("project set after auth failure")
		}
		if _, ok := h.host.outputs[OutputVersion]; ok {
			t.Error("version output set on failure")
		}
	})

	tests := []struct {
		name     string
		status   gcloud.AuthStatus
		want     AuthOutcome
		wantWarn bool
		wantDbg  bool
	}{
		{name: "AlreadyAuthenticated", status: gcloud.AuthStatus{State: gcloud.Authenticated}, want: AlreadyAuthenticated},
		{name: "Unauthenticated", status: gcloud.AuthStatus{State: gcloud.Unauthenticated}, want: UnauthenticatedWarned, wantWarn: true},
		{
			name:     "CheckFailed",
			status:   gcloud.AuthStatus{State: gcloud.CheckFailed, Err: errors.New("gcloud crashed")},
			want:     UnauthenticatedWarned,
			wantWarn: true,
			wantDbg:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(nil)
			h.broker.status = tc.status
			res, err := h.run(t)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Auth != tc.want {
				t.Errorf("Auth = %v, want %v", res.Auth, tc.want)
			}
			if got := contains(h.host.warnings, "No authentication found for gcloud"); got != tc.wantWarn {
				t.Errorf("warning = %v, want %v", got, tc.wantWarn)
			}
			if got := contains(h.host.debugs, "gcloud crashed"); got != tc.wantDbg {
				t.Errorf("debug = %v, want %v", got, tc.wantDbg)
			}
		})
	}
}

func TestRunProject(t *testing.T) {
	t.Run("Set", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_PROJECT_ID": "my-project"})
		if _, err := h.run(t); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !slices.Equal(h.broker.projects, []string{"my-project"}) {
			t.Errorf("projects = %q", h.broker.projects)
		}
		if !contains(h.host.infos, "Successfully set default project") {
			t.Errorf("infos = %q", h.host.infos)
		}
	})

	t.Run("Unset", func(t *testing.T) {
		h := newHarness(nil)
		if _, err := h.run(t); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(h.broker.projects) != 0 {
			t.Errorf("projects = %q", h.broker.projects)
		}
	})

	t.Run("FailureIsFatal", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_PROJECT_ID": "nope"})
		h.broker.projectErr = errors.New("project not found")
		_, err := h.run(t)
		if err == nil {
			t.Fatal("Run() error = nil")
		}
		if !contains(h.host.errs, "project not found") {
			t.Errorf("errs = %q", h.host.errs)
		}
		if _, ok := h.host.outputs[OutputVersion]; ok {
			t.Error("version output set on failure")
		}
	})
}

func TestRunPreflight(t *testing.T) {
	t.Run("ChecksRunFirst", func(t *testing.T) {
		h := newHarness(nil)
		if _, err := h.run(t); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !slices.Equal(h.pre.subRepos, []string{"acme/app"}) {
			t.Errorf("subscription repos = %q", h.pre.subRepos)
		}
		if len(h.pre.pins) != 1 || h.pre.pins[0] != [3]string{"acme/setup-cloudsdk", "v2", "v2"} {
			t.Errorf("pin checks = %q", h.pre.pins)
		}
	})

	t.Run("RejectedSubscriptionHalts", func(t *testing.T) {
		h := newHarness(map[string]string{"INPUT_CACHE": "not-a-bool"})
		h.pre.subErr = fmt.Errorf("check: %w", preflight.ErrSubscriptionRejected)

		_, err := h.run(t)
		if !IsHalt(err) {
			t.Fatalf("Run() error = %v, want halt", err)
		}
		if h.loads != 0 {
			t.Error("inputs were read after halt")
		}
		if len(h.pre.pins) != 0 {
			t.Error("pin checked after halt")
		}
		if len(h.host.errs) != 0 || len(h.host.env) != 0 {
			t.Errorf("host touched after halt: errs=%q env=%v", h.host.errs, h.host.env)
		}
	})
}

func TestRunInvalidInput(t *testing.T) {
	h := newHarness(map[string]string{"INPUT_SKIP_INSTALL": "maybe"})
	_, err := h.run(t)
	if !errors.Is(err, config.ErrInvalidBoolean) {
		t.Fatalf("Run() error = %v, want ErrInvalidBoolean", err)
	}
	if IsHalt(err) {
		t.Error("input error reported as halt")
	}
	if len(h.host.errs) != 1 {
		t.Errorf("errs = %q, want one failure", h.host.errs)
	}
	if len(h.host.env) != 0 {
		t.Errorf("env exported before inputs were valid: %v", h.host.env)
	}
}

func TestRunInstallFailure(t *testing.T) {
	h := newHarness(map[string]string{"INPUT_VERSION": "999.0.0"})
	h.prov.installErr = fmt.Errorf("download: %w", gcloud.ErrNoMatchingRelease)
	_, err := h.run(t)
	if !errors.Is(err, gcloud.ErrNoMatchingRelease) {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.host.paths) != 0 || h.broker.statusCalls != 0 {
		t.Error("continued after install failure")
	}
}

func TestIsAuthenticated(t *testing.T) {
	for state, want := range map[gcloud.AuthState]bool{
		gcloud.Authenticated:   true,
		gcloud.Unauthenticated: false,
		gcloud.CheckFailed:     false,
	} {
		if got := IsAuthenticated(gcloud.AuthStatus{State: state}); got != want {
			t.Errorf("IsAuthenticated(%v) = %v, want %v", state, got, want)
		}
	}
}
