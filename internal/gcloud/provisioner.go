package gcloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/fredrikaverpil/setup-cloudsdk/internal/download"
	"github.com/fredrikaverpil/setup-cloudsdk/internal/toolcache"
)

var (
	// ErrNoMatchingRelease is returned when no release satisfies a constraint.
	ErrNoMatchingRelease = errors.New("no release satisfies version constraint")
	// ErrInvalidConstraint is returned for version inputs that are neither a
	// version nor a constraint.
	ErrInvalidConstraint = errors.New("invalid version constraint")
	// ErrEmptyManifest is returned when the release manifest carries no version.
	ErrEmptyManifest = errors.New("release manifest has no version")
)

// Opt configures a Provisioner.
type Opt func(*Provisioner)

// WithManifestURL overrides the release manifest used by ResolveLatest.
func WithManifestURL(u string) Opt {
	return func(p *Provisioner) {
		p.manifestURL = u
	}
}

// WithDownloadURL overrides the base URL of release archives.
func WithDownloadURL(u string) Opt {
	return func(p *Provisioner) {
		p.downloadURL = strings.TrimSuffix(u, "/")
	}
}

// WithBucketURL overrides the object listing used to resolve ranges.
func WithBucketURL(u string) Opt {
	return func(p *Provisioner) {
		p.bucketURL = u
	}
}

// WithPlatform overrides the release platform.
func WithPlatform(pl Platform) Opt {
	return func(p *Provisioner) {
		p.platform = pl
	}
}

// WithTempDir sets where archives are downloaded and extracted.
func WithTempDir(dir string) Opt {
	return func(p *Provisioner) {
		p.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Opt {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// Provisioner resolves, caches and installs Cloud SDK releases.
type Provisioner struct {
	http     *download.Client
	cache    *toolcache.Cache
	cli      *CLI
	platform Platform
	tempDir  string
	logger   hclog.Logger

	manifestURL string
	downloadURL string
	bucketURL   string
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(client *download.Client, cache *toolcache.Cache, cli *CLI, opts ...Opt) *Provisioner {
	p := &Provisioner{
		http:        client,
		cache:       cache,
		cli:         cli,
		platform:    HostPlatform(),
		tempDir:     os.TempDir(),
		logger:      hclog.NewNullLogger(),
		manifestURL: DefaultManifestURL,
		downloadURL: DefaultDownloadURL,
		bucketURL:   DefaultBucketURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ResolveLatest returns the newest published SDK version.
func (p *Provisioner) ResolveLatest(ctx context.Context) (string, error) {
	var manifest struct {
		Version string `json:"version"`
	}
	if err := p.http.JSON(ctx, p.manifestURL, &manifest); err != nil {
		return "", fmt.Errorf("resolve latest version: %w", err)
	}
	if manifest.Version == "" {
		return "", ErrEmptyManifest
	}
	p.logger.Debug("resolved latest version", "version", manifest.Version)
	return manifest.Version, nil
}

// FindCached returns the SDK root of a cached version satisfying spec, or "".
func (p *Provisioner) FindCached(spec string) string {
	return p.cache.Find(ToolName, spec)
}

// Install downloads and extracts the release matching spec and returns the
// SDK root directory. A spec that is not an exact version is resolved to the
// newest published release satisfying it. With useCache, the result is
// stored in the tool cache for later runs.
func (p *Provisioner) Install(ctx context.Context, spec string, useCache bool) (string, error) {
	version, err := p.resolve(ctx, spec)
	if err != nil {
		return "", err
	}

	archiveURL := p.downloadURL + "/" + p.platform.ArchiveName(version)
	archive, err := p.http.File(ctx, archiveURL, p.tempDir)
	if err != nil {
		return "", fmt.Errorf("install %s %s: %w", ToolName, version, err)
	}
	defer os.Remove(archive)

	extractDir, err := os.MkdirTemp(p.tempDir, "gcloud-")
	if err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}
	p.logger.Debug("extracting", "archive", archive, "dest", extractDir)
	if err := download.Extract(archive, extractDir, p.platform.ArchiveFormat()); err != nil {
		return "", fmt.Errorf("install %s %s: %w", ToolName, version, err)
	}

	root := filepath.Join(extractDir, sdkDir)
	if _, err := os.Stat(root); err != nil {
		return "", fmt.Errorf("install %s %s: archive has no %s directory", ToolName, version, sdkDir)
	}

	if useCache {
		root, err = p.cache.CacheDir(root, ToolName, version)
		if err != nil {
			return "", err
		}
	}

	p.logger.Info("installed", "tool", ToolName, "version", version, "path", root)
	return root, nil
}

// InstallComponents installs extra SDK components in a single CLI call.
func (p *Provisioner) InstallComponents(ctx context.Context, names []string) error {
	args := append([]string{"--quiet", "components", "install"}, names...)
	if _, err := p.cli.Run(ctx, args...); err != nil {
		return fmt.Errorf("install components: %w", err)
	}
	return nil
}

// resolve turns spec into an exact version, consulting the release bucket
// for ranges.
func (p *Provisioner) resolve(ctx context.Context, spec string) (string, error) {
	if toolcache.IsExactVersion(spec) {
		return strings.TrimPrefix(strings.TrimSpace(spec), "v"), nil
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidConstraint, spec, err)
	}

	versions, err := p.releases(ctx)
	if err != nil {
		return "", err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if constraint.Check(versions[i]) {
			p.logger.Debug("resolved version constraint", "spec", spec, "version", versions[i])
			return versions[i].Original(), nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrNoMatchingRelease, spec)
}

// releases lists the versions published for this platform, ascending.
func (p *Provisioner) releases(ctx context.Context) ([]*semver.Version, error) {
	type listing struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}

	suffix := p.platform.archiveSuffix()
	seen := make(map[string]bool)
	var versions []*semver.Version

	pageToken := ""
	for {
		q := url.Values{}
		q.Set("prefix", archivePrefix)
		q.Set("fields", "items(name),nextPageToken")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page listing
		if err := p.http.JSON(ctx, p.bucketURL+"?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list releases: %w", err)
		}
		for _, item := range page.Items {
			raw, ok := strings.CutPrefix(item.Name, archivePrefix)
			if !ok {
				continue
			}
			raw, ok = strings.CutSuffix(raw, suffix)
			if !ok || seen[raw] {
				continue
			}
			v, err := semver.StrictNewVersion(raw)
			if err != nil {
				continue
			}
			seen[raw] = true
			versions = append(versions, v)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Sort(semver.Collection(versions))
	return versions, nil
}
