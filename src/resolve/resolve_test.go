package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
)

func writeRegistryModule(t *testing.T, registryRoot, name, version, manifestJSON string) {
	t.Helper()
	dir := filepath.Join(registryRoot, name, version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "moon.mod.json"), []byte(manifestJSON), 0o644))
}

func TestResolveSelectsMaximumFloorInCompatSet(t *testing.T) {
	registryRoot := t.TempDir()
	writeRegistryModule(t, registryRoot, "left-pad", "1.0.0", `{"name":"left-pad","version":"1.0.0"}`)
	writeRegistryModule(t, registryRoot, "left-pad", "1.2.0", `{"name":"left-pad","version":"1.2.0"}`)
	writeRegistryModule(t, registryRoot, "util-a", "1.0.0", `{"name":"util-a","version":"1.0.0","deps":[{"name":"left-pad","range":"^1.0.0"}]}`)
	writeRegistryModule(t, registryRoot, "util-b", "1.0.0", `{"name":"util-b","version":"1.0.0","deps":[{"name":"left-pad","range":"^1.2.0"}]}`)

	rootDir := t.TempDir()
	root := &core.ModuleManifest{
		Name:    "app",
		Version: "1.0.0",
		Root:    rootDir,
		Deps: []core.DependencyRequirement{
			{Name: "util-a", Range: "^1.0.0"},
			{Name: "util-b", Range: "^1.0.0"},
		},
	}

	r := New(NewFSRegistry(registryRoot), t.TempDir())
	graph, arena, err := r.Resolve(root)
	require.NoError(t, err)

	var leftPad *core.Module
	for _, m := range arena.Modules() {
		if m.ID.Name == "left-pad" {
			leftPad = m
		}
	}
	require.NotNil(t, leftPad)
	assert.Equal(t, "1.2.0", leftPad.ID.Version)

	rootID := core.ModuleID{Name: "app", Version: "1.0.0", Source: core.SourceLocal, Disambiguator: rootDir}
	deps := graph.Deps(rootID)
	assert.Len(t, deps, 2)
}

func TestResolveRejectsUnsupportedOperator(t *testing.T) {
	registryRoot := t.TempDir()
	rootDir := t.TempDir()
	root := &core.ModuleManifest{
		Name:    "app",
		Version: "1.0.0",
		Root:    rootDir,
		Deps: []core.DependencyRequirement{
			{Name: "thing", Range: ">=1.0.0"},
		},
	}
	r := New(NewFSRegistry(registryRoot), t.TempDir())
	_, _, err := r.Resolve(root)
	assert.Error(t, err)
}

func TestResolveLocalPathDependency(t *testing.T) {
	rootDir := t.TempDir()
	depDir := filepath.Join(rootDir, "vendor", "sibling")
	require.NoError(t, os.MkdirAll(depDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(depDir, "moon.mod.json"), []byte(`{"name":"sibling","version":"0.1.0"}`), 0o644))

	root := &core.ModuleManifest{
		Name:    "app",
		Version: "1.0.0",
		Root:    rootDir,
		Deps: []core.DependencyRequirement{
			{Name: "sibling", Path: "vendor/sibling"},
		},
	}
	r := New(NewFSRegistry(t.TempDir()), t.TempDir())
	graph, arena, err := r.Resolve(root)
	require.NoError(t, err)

	var sibling *core.Module
	for _, m := range arena.Modules() {
		if m.ID.Name == "sibling" {
			sibling = m
		}
	}
	require.NotNil(t, sibling)
	assert.Equal(t, core.SourceLocal, sibling.ID.Source)

	rootID := core.ModuleID{Name: "app", Version: "1.0.0", Source: core.SourceLocal, Disambiguator: rootDir}
	deps := graph.Deps(rootID)
	require.Len(t, deps, 1)
	assert.Equal(t, "sibling", deps[0].Alias)
}

func TestResolveRegistryModuleCannotOverrideWithPath(t *testing.T) {
	registryRoot := t.TempDir()
	writeRegistryModule(t, registryRoot, "lib", "1.0.0", `{"name":"lib","version":"1.0.0","deps":[{"name":"other","path":"../other"}]}`)

	rootDir := t.TempDir()
	root := &core.ModuleManifest{
		Name:    "app",
		Version: "1.0.0",
		Root:    rootDir,
		Deps: []core.DependencyRequirement{
			{Name: "lib", Range: "^1.0.0"},
		},
	}
	r := New(NewFSRegistry(registryRoot), t.TempDir())
	_, _, err := r.Resolve(root)
	assert.Error(t, err)
}

func TestResolveCyclicDependencyIsFatal(t *testing.T) {
	registryRoot := t.TempDir()
	writeRegistryModule(t, registryRoot, "a", "1.0.0", `{"name":"a","version":"1.0.0","deps":[{"name":"b","range":"^1.0.0"}]}`)
	writeRegistryModule(t, registryRoot, "b", "1.0.0", `{"name":"b","version":"1.0.0","deps":[{"name":"a","range":"^1.0.0"}]}`)

	rootDir := t.TempDir()
	root := &core.ModuleManifest{
		Name:    "app",
		Version: "1.0.0",
		Root:    rootDir,
		Deps: []core.DependencyRequirement{
			{Name: "a", Range: "^1.0.0"},
		},
	}
	r := New(NewFSRegistry(registryRoot), t.TempDir())
	_, _, err := r.Resolve(root)
	assert.Error(t, err)
}
