package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/discover"
)

func newTestPackage(arena *core.Arena, fqn string, manifest *core.PackageManifest, cstubs ...string) *core.Package {
	if manifest == nil {
		manifest = &core.PackageManifest{}
	}
	pkg := core.NewPackage(fqn, core.ModuleID{Name: "root"}, "/src/"+fqn, manifest)
	pkg.CStubs = cstubs
	arena.PutPackage(pkg)
	return pkg
}

// A depends on B depends on C; building Check(A) should need Check(B) and
// Check(C) transitively.
func TestConstructCheckFansOutOverDeps(t *testing.T) {
	arena := core.NewArena()
	a := newTestPackage(arena, "root/a", nil)
	b := newTestPackage(arena, "root/b", nil)
	c := newTestPackage(arena, "root/c", nil)

	graph := core.NewPackageGraph()
	at := core.BuildTarget{Package: a, Kind: core.TargetSource}
	bt := core.BuildTarget{Package: b, Kind: core.TargetSource}
	ct := core.BuildTarget{Package: c, Kind: core.TargetSource}
	graph.AddTarget(at)
	graph.AddTarget(bt)
	graph.AddTarget(ct)
	graph.AddEdge(at, bt, "b")
	graph.AddEdge(bt, ct, "c")

	ctor := New(arena, graph, discover.BackendWasm, false)
	goal := NodeKey{Kind: Check, FQN: "root/a", Target: core.TargetSource, Backend: discover.BackendWasm}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	checkB := NodeKey{Kind: Check, FQN: "root/b", Target: core.TargetSource, Backend: discover.BackendWasm}
	checkC := NodeKey{Kind: Check, FQN: "root/c", Target: core.TargetSource, Backend: discover.BackendWasm}
	assert.Equal(t, Resolved, g.Node(checkB).State)
	assert.Equal(t, Resolved, g.Node(checkC).State)
	assert.Contains(t, g.Node(goal).Deps, checkB)
}

func TestConstructBuildCoreNeedsGenerateTestInfoForTestTargets(t *testing.T) {
	arena := core.NewArena()
	a := newTestPackage(arena, "root/a", nil)
	graph := core.NewPackageGraph()
	at := core.BuildTarget{Package: a, Kind: core.TargetBlackboxTest}
	graph.AddTarget(at)

	ctor := New(arena, graph, discover.BackendWasm, false)
	goal := NodeKey{Kind: BuildCore, FQN: "root/a", Target: core.TargetBlackboxTest, Backend: discover.BackendWasm}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	ti := NodeKey{Kind: GenerateTestInfo, FQN: "root/a", Target: core.TargetBlackboxTest, Backend: discover.BackendWasm}
	assert.Contains(t, g.Node(goal).Deps, ti)
	assert.Equal(t, Resolved, g.Node(ti).State)
}

// LinkCore's DFS post-order closure: main depends on lib; lib has a whitebox
// test target too. Linking main's blackbox test should pull in lib's
// whitebox replacement when main's test target depends on the whitebox
// target instead of the plain source target.
func TestConstructLinkCoreWhiteboxSubstitution(t *testing.T) {
	arena := core.NewArena()
	lib := newTestPackage(arena, "root/lib", nil)
	main := newTestPackage(arena, "root/main", nil)

	graph := core.NewPackageGraph()
	libSrc := core.BuildTarget{Package: lib, Kind: core.TargetSource}
	libWB := core.BuildTarget{Package: lib, Kind: core.TargetWhiteboxTest}
	mainSrc := core.BuildTarget{Package: main, Kind: core.TargetSource}
	graph.AddTarget(libSrc)
	graph.AddTarget(libWB)
	graph.AddTarget(mainSrc)
	// main depends on lib's source target...
	graph.AddEdge(mainSrc, libSrc, "lib")
	// ...and separately on lib's whitebox target, simulating a link closure
	// where both are reachable and substitution must collapse them to one
	// slot at lib's position.
	graph.AddEdge(mainSrc, libWB, "lib_wbtest")

	ctor := New(arena, graph, discover.BackendWasm, false)
	goal := NodeKey{Kind: LinkCore, FQN: "root/main", Target: core.TargetSource, Backend: discover.BackendWasm}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	node := g.Node(goal)
	require.NotEmpty(t, node.LinkClosure)

	libCore := NodeKey{Kind: BuildCore, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendWasm}
	libWBCore := NodeKey{Kind: BuildCore, FQN: "root/lib", Target: core.TargetWhiteboxTest, Backend: discover.BackendWasm}
	assert.NotContains(t, node.LinkClosure, libCore, "source target must be replaced, not duplicated")
	assert.Contains(t, node.LinkClosure, libWBCore)

	mainCore := NodeKey{Kind: BuildCore, FQN: "root/main", Target: core.TargetSource, Backend: discover.BackendWasm}
	assert.Equal(t, mainCore, node.LinkClosure[len(node.LinkClosure)-1], "the target itself is last in post-order")
}

// On native backends, LinkCore also emits MakeExecutable plus
// ArchiveOrLinkCStubs for every C-stub-bearing package in the closure.
func TestConstructLinkCoreNativeEmitsMakeExecutable(t *testing.T) {
	arena := core.NewArena()
	lib := newTestPackage(arena, "root/lib", nil, "stub.c")
	main := newTestPackage(arena, "root/main", nil)

	graph := core.NewPackageGraph()
	libSrc := core.BuildTarget{Package: lib, Kind: core.TargetSource}
	mainSrc := core.BuildTarget{Package: main, Kind: core.TargetSource}
	graph.AddTarget(libSrc)
	graph.AddTarget(mainSrc)
	graph.AddEdge(mainSrc, libSrc, "lib")

	ctor := New(arena, graph, discover.BackendNative, false)
	goal := NodeKey{Kind: LinkCore, FQN: "root/main", Target: core.TargetSource, Backend: discover.BackendNative}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	mk := NodeKey{Kind: MakeExecutable, FQN: "root/main", Target: core.TargetSource, Backend: discover.BackendNative}
	assert.Equal(t, Resolved, g.Node(mk).State)
	assert.Contains(t, g.Node(goal).Deps, mk)

	stubs := NodeKey{Kind: ArchiveOrLinkCStubs, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendNative}
	assert.Contains(t, g.Node(mk).Deps, stubs)
	assert.Equal(t, Resolved, g.Node(stubs).State)

	runtime := NodeKey{Kind: BuildRuntimeLib, Target: core.TargetSource, Backend: discover.BackendNative}
	assert.Contains(t, g.Node(mk).Deps, runtime)
}

// Non-native backends never emit MakeExecutable.
func TestConstructLinkCoreNonNativeOmitsMakeExecutable(t *testing.T) {
	arena := core.NewArena()
	main := newTestPackage(arena, "root/main", nil)
	graph := core.NewPackageGraph()
	mainSrc := core.BuildTarget{Package: main, Kind: core.TargetSource}
	graph.AddTarget(mainSrc)

	ctor := New(arena, graph, discover.BackendJS, false)
	goal := NodeKey{Kind: LinkCore, FQN: "root/main", Target: core.TargetSource, Backend: discover.BackendJS}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	for _, n := range g.Nodes() {
		assert.NotEqual(t, MakeExecutable, n.Key.Kind)
	}
}

func TestConstructArchiveOrLinkCStubsFansOutOverStubFiles(t *testing.T) {
	arena := core.NewArena()
	lib := newTestPackage(arena, "root/lib", nil, "a.c", "b.c")
	graph := core.NewPackageGraph()
	graph.AddTarget(core.BuildTarget{Package: lib, Kind: core.TargetSource})

	ctor := New(arena, graph, discover.BackendNative, false)
	goal := NodeKey{Kind: ArchiveOrLinkCStubs, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendNative}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	stub0 := NodeKey{Kind: BuildCStub, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendNative, Index: 0}
	stub1 := NodeKey{Kind: BuildCStub, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendNative, Index: 1}
	assert.Contains(t, g.Node(goal).Deps, stub0)
	assert.Contains(t, g.Node(goal).Deps, stub1)
}

func TestConstructRunPrebuildRecordsCommandAndRejectsOutOfRangeIndex(t *testing.T) {
	arena := core.NewArena()
	manifest := &core.PackageManifest{PreBuild: []core.PrebuildEntry{{Command: "gen.sh :input :output"}}}
	lib := newTestPackage(arena, "root/lib", manifest)
	graph := core.NewPackageGraph()
	graph.AddTarget(core.BuildTarget{Package: lib, Kind: core.TargetSource})

	ctor := New(arena, graph, discover.BackendWasm, false)
	goal := NodeKey{Kind: RunPrebuild, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendWasm, Index: 0}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)
	assert.Equal(t, "gen.sh :input :output", g.Node(goal).PrebuildCommand)

	bad := NodeKey{Kind: RunPrebuild, FQN: "root/lib", Target: core.TargetSource, Backend: discover.BackendWasm, Index: 5}
	_, err = ctor.Construct([]NodeKey{bad})
	assert.Error(t, err)
}

func TestConstructBundleSkipsPureVirtualPackages(t *testing.T) {
	arena := core.NewArena()
	regular := newTestPackage(arena, "root/regular", nil)
	virtual := newTestPackage(arena, "root/iface", &core.PackageManifest{
		Virtual: &core.VirtualConfig{Interface: "iface.mbti", HasInterface: true},
	})
	_ = virtual

	ctor := New(arena, core.NewPackageGraph(), discover.BackendWasm, false)
	goal := NodeKey{Kind: Bundle, FQN: "root", Backend: discover.BackendWasm}
	g, err := ctor.Construct([]NodeKey{goal})
	require.NoError(t, err)

	regularCore := NodeKey{Kind: BuildCore, FQN: "root/regular", Target: core.TargetSource, Backend: discover.BackendWasm}
	virtualCore := NodeKey{Kind: BuildCore, FQN: "root/iface", Target: core.TargetSource, Backend: discover.BackendWasm}
	assert.Contains(t, g.Node(goal).Deps, regularCore)
	assert.NotContains(t, g.Node(goal).Deps, virtualCore)
}

// A node left in the Needed state at construction exit is an internal-error
// bug: unreachable through the normal dispatch, but CheckAllResolved is the
// structural guard against ever regressing into that state silently.
func TestCheckAllResolvedCatchesStuckNodes(t *testing.T) {
	g := NewGraph()
	g.Need(NodeKey{Kind: Check, FQN: "orphan"})
	err := g.CheckAllResolved()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "internal error")
}

func TestConstructUnknownPackageIsReportedError(t *testing.T) {
	arena := core.NewArena()
	ctor := New(arena, core.NewPackageGraph(), discover.BackendWasm, false)
	goal := NodeKey{Kind: Check, FQN: "does/not/exist", Target: core.TargetSource, Backend: discover.BackendWasm}
	_, err := ctor.Construct([]NodeKey{goal})
	assert.Error(t, err)
}
