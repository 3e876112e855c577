package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
)

func newTestPackage(t *testing.T, root string) *core.Package {
	t.Helper()
	src := filepath.Join(root, "main.mbt")
	require.NoError(t, os.WriteFile(src, []byte("fn main {}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "moon.pkg.json"), []byte("{}"), 0644))
	manifest := &core.PackageManifest{}
	pkg := core.NewPackage("root/main", core.ModuleID{Name: "root"}, root, manifest)
	pkg.Sources.Regular = []string{src}
	return pkg
}

func TestWatchInvokesRebuildOnSourceChange(t *testing.T) {
	root := t.TempDir()
	pkg := newTestPackage(t, root)

	rebuilds := make(chan struct{}, 8)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- Watch([]*core.Package{pkg}, func() { rebuilds <- struct{}{} }, stop)
	}()

	// Give the watcher goroutine time to register its directory watches.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.mbt"), []byte("fn main { 1 }\n"), 0644))

	select {
	case <-rebuilds:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rebuild after source change")
	}

	close(stop)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not exit after stop was closed")
	}
}

func TestWatchIgnoresUnwatchedPaths(t *testing.T) {
	root := t.TempDir()
	pkg := newTestPackage(t, root)

	rebuilds := make(chan struct{}, 8)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- Watch([]*core.Package{pkg}, func() { rebuilds <- struct{}{} }, stop)
	}()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("noise"), 0644))

	select {
	case <-rebuilds:
		t.Fatal("did not expect a rebuild for an unwatched file")
	case <-time.After(300 * time.Millisecond):
	}

	close(stop)
	<-done
}

func TestAllSourcesCollectsEveryTargetKind(t *testing.T) {
	root := t.TempDir()
	pkg := newTestPackage(t, root)
	pkg.Sources.Whitebox = []string{filepath.Join(root, "a_wbtest.mbt")}
	pkg.Sources.Blackbox = []string{filepath.Join(root, "a_test.mbt")}

	got := allSources(pkg)
	assert.Len(t, got, 3)
}

func TestManifestPathJoinsPackageRoot(t *testing.T) {
	pkg := &core.Package{Root: "/tmp/example"}
	assert.Equal(t, "/tmp/example/moon.pkg.json", manifestPath(pkg))
}
