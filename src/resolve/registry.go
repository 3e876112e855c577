// Package resolve implements the module resolver (spec.md 4.1): Minimum
// Version Selection over a registry backend, with a small Registry
// capability interface (spec.md 9, "Dynamic dispatch") so the module graph
// can be built against a local filesystem mirror in tests, an HTTP registry
// in production, or a caching wrapper around either, the same way the
// teacher multiplexes several cache backends behind one interface
// (cache/cache.go, cache/http_cache.go, cache/dir_cache.go).
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/moonbitlang/moon/src/cli/logging"
)

var log = logging.Log

// Registry is the capability a module source consults to discover versions
// of a registry-hosted module and fetch its manifest (spec.md 4.1,
// "Otherwise the registry is consulted").
type Registry interface {
	// Versions returns every version known to the registry for a module.
	Versions(ctx context.Context, name string) ([]*semver.Version, error)
	// Manifest fetches the raw moon.mod.json bytes for an exact version.
	Manifest(ctx context.Context, name string, version *semver.Version) ([]byte, error)
}

// fsRegistry serves modules from a local directory laid out as
// "<root>/<module>/<version>/moon.mod.json", used for tests and for an
// offline vendor mirror.
type fsRegistry struct {
	root string
}

// NewFSRegistry constructs a Registry backed by a local directory mirror.
func NewFSRegistry(root string) Registry {
	return &fsRegistry{root: root}
}

func (r *fsRegistry) Versions(_ context.Context, name string) ([]*semver.Version, error) {
	dir := filepath.Join(r.root, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("module %q not found in registry mirror %s", name, r.root)
		}
		return nil, err
	}
	var versions []*semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("module %q has no published versions in registry mirror %s", name, r.root)
	}
	sort.Sort(semver.Collection(versions))
	return versions, nil
}

func (r *fsRegistry) Manifest(_ context.Context, name string, version *semver.Version) ([]byte, error) {
	p := filepath.Join(r.root, name, version.String(), "moon.mod.json")
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("module %s@%s: %w", name, version, err)
	}
	return data, nil
}

// httpRegistry fetches versions and manifests from a remote module registry
// over HTTP, retrying transient failures (grounded on the teacher's
// HTTPLogWrapper around go-retryablehttp, utils/logging.go).
type httpRegistry struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewHTTPRegistry constructs a Registry backed by an HTTP module registry at
// baseURL, expecting "<baseURL>/<module>/versions.json" (a JSON array of
// version strings) and "<baseURL>/<module>/<version>/moon.mod.json".
func NewHTTPRegistry(baseURL string) Registry {
	client := retryablehttp.NewClient()
	client.Logger = &httpLogWrapper{log}
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	return &httpRegistry{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// httpLogWrapper adapts moon's structured logger to retryablehttp's
// leveled-printf LeveledLogger interface.
type httpLogWrapper struct {
	l *logging.Logger
}

func (w *httpLogWrapper) Error(msg string, kv ...interface{}) { w.l.Errorf("%s: %v", msg, kv) }
func (w *httpLogWrapper) Info(msg string, kv ...interface{})  { w.l.Debugf("%s: %v", msg, kv) }
func (w *httpLogWrapper) Debug(msg string, kv ...interface{}) { w.l.Debugf("%s: %v", msg, kv) }
func (w *httpLogWrapper) Warn(msg string, kv ...interface{})  { w.l.Warningf("%s: %v", msg, kv) }

func (r *httpRegistry) get(ctx context.Context, path string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry request %s: status %s", path, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (r *httpRegistry) Versions(ctx context.Context, name string) ([]*semver.Version, error) {
	data, err := r.get(ctx, "/"+name+"/versions.json")
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("module %q: malformed versions.json: %w", name, err)
	}
	versions := make([]*semver.Version, 0, len(raw))
	for _, s := range raw {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("module %q: malformed version %q in versions.json: %w", name, s, err)
		}
		versions = append(versions, v)
	}
	sort.Sort(semver.Collection(versions))
	return versions, nil
}

func (r *httpRegistry) Manifest(ctx context.Context, name string, version *semver.Version) ([]byte, error) {
	return r.get(ctx, "/"+name+"/"+version.String()+"/moon.mod.json")
}

// cachedRegistry wraps another Registry with an on-disk cache directory, so
// repeated invocations against the same registry don't re-fetch manifests
// that never change once published (grounded on the teacher's dir_cache.go
// layered in front of http_cache.go).
type cachedRegistry struct {
	inner Registry
	dir   string
}

// NewCachedRegistry wraps inner with a manifest cache rooted at dir.
func NewCachedRegistry(inner Registry, dir string) Registry {
	return &cachedRegistry{inner: inner, dir: dir}
}

func (r *cachedRegistry) Versions(ctx context.Context, name string) ([]*semver.Version, error) {
	// Versions listings are cheap and change over time; never cached.
	return r.inner.Versions(ctx, name)
}

func (r *cachedRegistry) Manifest(ctx context.Context, name string, version *semver.Version) ([]byte, error) {
	cachePath := filepath.Join(r.dir, name, version.String(), "moon.mod.json")
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}
	data, err := r.inner.Manifest(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
		if err := os.WriteFile(cachePath, data, 0o644); err != nil {
			log.Debugf("could not write registry cache entry %s: %s", cachePath, err)
		}
	}
	return data, nil
}
