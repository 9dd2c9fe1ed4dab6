// Package toolcache stores installed tools in the runner's tool cache.
//
// The layout matches the one used by other setup actions, so caches can be
// shared between them:
//
//	<root>/<tool>/<version>/<arch>/          tool files
//	<root>/<tool>/<version>/<arch>.complete  marker written last
package toolcache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/fredrikaverpil/setup-cloudsdk/internal/flock"
)

// ErrInvalidVersion is returned by CacheDir when the version is not exact.
var ErrInvalidVersion = errors.New("version must be an exact semantic version")

// Opt configures a Cache.
type Opt func(*Cache)

// WithArch overrides the architecture directory name.
func WithArch(arch string) Opt {
	return func(c *Cache) {
		c.arch = arch
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Opt {
	return func(c *Cache) {
		c.logger = l
	}
}

// Cache is a tool cache rooted at a directory.
type Cache struct {
	root   string
	arch   string
	logger hclog.Logger
}

// New returns a Cache rooted at root.
func New(root string, opts ...Opt) *Cache {
	c := &Cache{
		root:   root,
		arch:   HostArch(),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HostArch returns the architecture in tool cache naming.
//
//	amd64 -> x64
//	386   -> x86
//
// Other values are returned unchanged.
func HostArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}

// Find returns the directory of a cached tool matching spec, or "" when none
// is cached. spec is an exact version or a semver range; an exact version
// only matches itself, a range matches the highest cached version satisfying
// it. A spec that is neither never matches.
func (c *Cache) Find(tool, spec string) string {
	if v, ok := exactVersion(spec); ok {
		dir := c.dir(tool, v.String())
		if c.complete(dir) {
			c.logger.Debug("found in tool cache", "tool", tool, "version", v, "path", dir)
			return dir
		}
		c.logger.Debug("not found in tool cache", "tool", tool, "version", v)
		return ""
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		c.logger.Debug("not a version constraint", "spec", spec, "error", err)
		return ""
	}
	versions := c.Versions(tool)
	for i := len(versions) - 1; i >= 0; i-- {
		if constraint.Check(versions[i]) {
			dir := c.dir(tool, versions[i].String())
			c.logger.Debug("found in tool cache", "tool", tool, "spec", spec, "version", versions[i], "path", dir)
			return dir
		}
	}
	c.logger.Debug("no cached version satisfies spec", "tool", tool, "spec", spec)
	return ""
}

// Versions returns the completely cached versions of tool, ascending.
func (c *Cache) Versions(tool string) []*semver.Version {
	entries, err := os.ReadDir(filepath.Join(c.root, tool))
	if err != nil {
		return nil
	}
	var versions []*semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, ok := exactVersion(e.Name())
		if !ok || !c.complete(c.dir(tool, e.Name())) {
			continue
		}
		versions = append(versions, v)
	}
	sort.Sort(semver.Collection(versions))
	return versions
}

// CacheDir moves the directory src into the cache as tool@version and
// returns the cached path. Concurrent callers for the same tool and version
// are serialized; if another caller completed the entry first, its copy wins
// and src is left untouched.
func (c *Cache) CacheDir(src, tool, version string) (string, error) {
	v, ok := exactVersion(version)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	dest := c.dir(tool, v.String())

	lock, err := flock.Acquire(dest + ".lock")
	if err != nil {
		return "", err
	}
	defer lock.Release()

	if c.complete(dest) {
		c.logger.Debug("already cached by another job", "path", dest)
		return dest, nil
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear cache dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		c.logger.Debug("rename failed, copying", "error", err)
		if err := copyTree(src, dest); err != nil {
			return "", fmt.Errorf("copy to tool cache: %w", err)
		}
	}
	if err := os.WriteFile(dest+".complete", nil, 0o644); err != nil {
		return "", fmt.Errorf("mark cache complete: %w", err)
	}

	c.logger.Debug("cached", "tool", tool, "version", v, "path", dest)
	return dest, nil
}

func (c *Cache) dir(tool, version string) string {
	return filepath.Join(c.root, tool, version, c.arch)
}

func (c *Cache) complete(dir string) bool {
	_, err := os.Stat(dir + ".complete")
	return err == nil
}

// exactVersion parses s as a full major.minor.patch version.
func exactVersion(s string) (*semver.Version, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

// IsExactVersion reports whether s names a single major.minor.patch version.
func IsExactVersion(s string) bool {
	_, ok := exactVersion(s)
	return ok
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
