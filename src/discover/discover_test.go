package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
)

func writeFixtureModule(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	mustWrite := func(rel, content string) {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	mustWrite("lib/moon.pkg.json", `{"is-main": false, "import": []}`)
	mustWrite("lib/lib.mbt", "fn f() {}")
	mustWrite("lib/lib.wasm.mbt", "fn g() {}")
	mustWrite("lib/lib_test.mbt", "test \"t\" {}")
	mustWrite("lib/lib_wbtest.mbt", "test \"wb\" {}")
	mustWrite("lib/stub.c", "void stub(void) {}")

	mustWrite("main/moon.pkg.json", `{"is-main": true, "import": [{"path": "fixture/lib", "alias": "lib"}]}`)
	mustWrite("main/main.mbt", "fn main { }")

	mustWrite("internal/impl/moon.pkg.json", `{"is-main": false}`)
	mustWrite("internal/impl/impl.mbt", "fn h() {}")

	return root
}

func newFixtureModule(root string) *core.Module {
	return &core.Module{
		ID:       core.ModuleID{Name: "fixture"},
		Manifest: &core.ModuleManifest{Name: "fixture", Root: root},
	}
}

func TestDiscoverModuleRegistersPackages(t *testing.T) {
	root := writeFixtureModule(t)
	mod := newFixtureModule(root)

	arena := core.NewArena()
	graph := core.NewPackageGraph()
	d := New(arena, graph)

	require.NoError(t, d.DiscoverModule(mod))

	lib, ok := arena.LookupPackage("fixture/lib")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"lib.mbt", "lib.wasm.mbt"}, lib.Sources.Regular)
	assert.ElementsMatch(t, []string{"lib_wbtest.mbt"}, lib.Sources.Whitebox)
	assert.ElementsMatch(t, []string{"lib_test.mbt"}, lib.Sources.Blackbox)
	assert.ElementsMatch(t, []string{"stub.c"}, lib.CStubs)

	main, ok := arena.LookupPackage("fixture/main")
	require.True(t, ok)
	assert.True(t, main.Manifest.IsMain)

	impl, ok := arena.LookupPackage("fixture/internal/impl")
	require.True(t, ok)
	parent, isInternal := impl.IsInternal()
	assert.True(t, isInternal)
	assert.Equal(t, "fixture", parent)
}

func TestDiscoverModuleMissingRoot(t *testing.T) {
	mod := newFixtureModule(filepath.Join(t.TempDir(), "does-not-exist"))
	d := New(core.NewArena(), core.NewPackageGraph())
	err := d.DiscoverModule(mod)
	assert.Error(t, err)
}

func TestResolveImportsBuildsEdgesAndAliases(t *testing.T) {
	root := writeFixtureModule(t)
	mod := newFixtureModule(root)

	arena := core.NewArena()
	graph := core.NewPackageGraph()
	d := New(arena, graph)
	require.NoError(t, d.DiscoverModule(mod))
	require.NoError(t, d.ResolveImports())

	main, ok := arena.LookupPackage("fixture/main")
	require.True(t, ok)
	target, ok := main.Alias("lib")
	require.True(t, ok)
	assert.Equal(t, "fixture/lib", target)

	deps := graph.Deps(core.BuildTarget{Package: main, Kind: core.TargetSource})
	require.Len(t, deps, 1)
	assert.Equal(t, "lib", deps[0].Alias)
	assert.Equal(t, "fixture/lib", deps[0].To.Package.FQN)
}

func TestResolveImportsUnresolvedImportIsAnError(t *testing.T) {
	root := t.TempDir()
	full := filepath.Join(root, "orphan", "moon.pkg.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(`{"import": [{"path": "fixture/nope"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(full), "o.mbt"), []byte("fn f() {}"), 0o644))

	mod := newFixtureModule(root)
	arena := core.NewArena()
	graph := core.NewPackageGraph()
	d := New(arena, graph)
	require.NoError(t, d.DiscoverModule(mod))

	err := d.ResolveImports()
	assert.Error(t, err)
}

func TestResolveImportsInternalRestrictionViolation(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel, content string) {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	mustWrite("a/internal/impl/moon.pkg.json", `{}`)
	mustWrite("a/internal/impl/impl.mbt", "fn h() {}")
	mustWrite("other/moon.pkg.json", `{"import": [{"path": "fixture/a/internal/impl"}]}`)
	mustWrite("other/o.mbt", "fn o() {}")

	mod := newFixtureModule(root)
	arena := core.NewArena()
	graph := core.NewPackageGraph()
	d := New(arena, graph)
	require.NoError(t, d.DiscoverModule(mod))

	err := d.ResolveImports()
	assert.Error(t, err)
}
