package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/plan"
)

func testConfig() *core.Configuration {
	cfg := core.DefaultConfiguration()
	cfg.Moon.Home = "/home/moon"
	return cfg
}

func newPkg(fqn string, manifest *core.PackageManifest) *core.Package {
	if manifest == nil {
		manifest = &core.PackageManifest{}
	}
	return core.NewPackage(fqn, core.ModuleID{Name: "root"}, "/src/"+fqn, manifest)
}

func TestStdlibFlagsIncludesStdPath(t *testing.T) {
	o := &Options{Config: testConfig()}
	flags := stdlibFlags(o, "wasm-gc")
	require.Len(t, flags, 2)
	assert.Equal(t, "-std-path", flags[0])
	assert.Equal(t, "/home/moon/lib/core/wasm-gc/release/bundle", flags[1])
}

func TestStdlibFlagsNostdOmitsFlag(t *testing.T) {
	o := &Options{Config: testConfig(), NoStd: true}
	assert.Nil(t, stdlibFlags(o, "wasm-gc"))
	assert.Nil(t, stdlibCoreFiles(o, "wasm-gc"))
}

func TestDebugFlagsGatesSourceMapByBackend(t *testing.T) {
	o := &Options{Debug: true}
	assert.Equal(t, []string{"-g", "-source-map"}, debugFlags(o, "wasm-gc", false))
	assert.Equal(t, []string{"-g"}, debugFlags(o, "wasm", false))
}

func TestDebugFlagsAddsO0ForTestBuilds(t *testing.T) {
	o := &Options{Debug: true}
	assert.Equal(t, []string{"-g", "-source-map", "-O0"}, debugFlags(o, "native", true))
}

func TestDebugFlagsOffReturnsNil(t *testing.T) {
	o := &Options{Debug: false}
	assert.Nil(t, debugFlags(o, "native", true))
}

func TestCoverageFlagsSkipsBlackboxAndSkipList(t *testing.T) {
	o := &Options{Coverage: true}
	assert.Nil(t, coverageFlags(o, "root/a", core.TargetBlackboxTest))
	assert.Nil(t, coverageFlags(o, "moonbitlang/core/coverage", core.TargetSource))
	assert.Equal(t, []string{"-enable-coverage"}, coverageFlags(o, "root/a", core.TargetSource))
}

func TestCoverageFlagsSelfOverrideForSelfCoverageList(t *testing.T) {
	o := &Options{Coverage: true}
	flags := coverageFlags(o, "moonbitlang/core/builtin", core.TargetSource)
	assert.Contains(t, flags, "-enable-coverage")
	assert.Contains(t, flags, "-coverage-package-override=@self")
}

func TestCoverageFlagsOffReturnsNil(t *testing.T) {
	o := &Options{Coverage: false}
	assert.Nil(t, coverageFlags(o, "root/a", core.TargetSource))
}

func TestWarnAlertFlagsConcatenatesAllSources(t *testing.T) {
	o := &Options{WarnListCLI: "+10"}
	flags := warnAlertFlags(o, "-2", "", "+5", "", false)
	require.Contains(t, flags, "-w")
	idx := indexOf(flags, "-w")
	assert.Equal(t, "-2 +5 +10", flags[idx+1])
}

func TestWarnAlertFlagsThirdPartyGetsNone(t *testing.T) {
	o := &Options{WarnListCLI: "+10"}
	assert.Nil(t, warnAlertFlags(o, "-2", "", "+5", "", true))
}

func TestWarnAlertFlagsDenyWarnAppendsFixedSuffix(t *testing.T) {
	o := &Options{DenyWarn: true}
	flags := warnAlertFlags(o, "", "", "", "", false)
	assert.Equal(t, []string{"-w", "@a", "-alert", "@all-raise-throw-unsafe+deprecated"}, flags)
}

func TestErrorFormatFlags(t *testing.T) {
	assert.Nil(t, errorFormatFlags(&Options{}))
	assert.Equal(t, []string{"-error-format", "json"}, errorFormatFlags(&Options{ErrorFormatJSON: true}))
}

func TestPackageMetadataFlags(t *testing.T) {
	pkg := newPkg("root/a", nil)
	deps := []miDependency{{MiPath: "/out/b.mi", Alias: "b"}}
	flags := packageMetadataFlags(pkg, deps)
	assert.Equal(t, []string{
		"-pkg", "root/a",
		"-pkg-sources", "root/a:/src/root/a",
		"-i", "/out/b.mi:b",
	}, flags)
}

func TestTargetFlag(t *testing.T) {
	assert.Equal(t, []string{"-target", "js"}, targetFlag("js"))
}

func TestVirtualPackageFlagsOverridable(t *testing.T) {
	arena := core.NewArena()
	iface := newPkg("root/iface", &core.PackageManifest{Virtual: &core.VirtualConfig{Interface: "iface.mbti", Overridable: true}})
	arena.PutPackage(iface)
	impl := newPkg("root/impl", &core.PackageManifest{Virtual: &core.VirtualConfig{Implements: "root/iface"}})

	flags, err := virtualPackageFlags(impl, arena)
	require.NoError(t, err)
	assert.Equal(t, []string{"-check-mi", "/src/root/iface/iface.mi", "-no-mi"}, flags)
}

func TestVirtualPackageFlagsNonOverridable(t *testing.T) {
	arena := core.NewArena()
	iface := newPkg("root/iface", &core.PackageManifest{Virtual: &core.VirtualConfig{Interface: "iface.mbti", Overridable: false}})
	arena.PutPackage(iface)
	impl := newPkg("root/impl", &core.PackageManifest{Virtual: &core.VirtualConfig{Implements: "root/iface"}})

	flags, err := virtualPackageFlags(impl, arena)
	require.NoError(t, err)
	assert.Equal(t, []string{"-impl-virtual", "/src/root/iface/iface.mi:root/iface:/src/root/iface", "-no-mi"}, flags)
}

func TestVirtualPackageFlagsNilWhenNotImplementing(t *testing.T) {
	pkg := newPkg("root/a", nil)
	flags, err := virtualPackageFlags(pkg, core.NewArena())
	require.NoError(t, err)
	assert.Nil(t, flags)
}

func TestVirtualPackageFlagsErrorsOnUnknownInterface(t *testing.T) {
	pkg := newPkg("root/impl", &core.PackageManifest{Virtual: &core.VirtualConfig{Implements: "root/missing"}})
	_, err := virtualPackageFlags(pkg, core.NewArena())
	assert.Error(t, err)
}

func TestTestDriverFlags(t *testing.T) {
	assert.Equal(t, []string{"-is-main", "-test-mode", "-no-mi"}, testDriverFlags())
	assert.Equal(t, []string{"-exported_functions", "moonbit_test_driver_internal_execute,moonbit_test_driver_finish"}, testDriverLinkFlags())
}

func TestTestKindFlags(t *testing.T) {
	assert.Equal(t, []string{"-whitebox-test"}, testKindFlags(core.TargetWhiteboxTest))
	assert.Equal(t, []string{"-blackbox-test", "-include-doctests"}, testKindFlags(core.TargetBlackboxTest))
	assert.Nil(t, testKindFlags(core.TargetSource))
}

func TestLinkMemoryFlags(t *testing.T) {
	cfg := &core.LinkConfig{
		ExportMemoryName: "memory",
		ImportMemory:     &core.ImportMemorySpec{Module: "env", Name: "memory"},
		HeapStartAddress: 1024,
		SharedMemory:     true,
		MemoryMin:        1,
		MemoryMax:        2,
		ExportedFunctions: []string{"foo", "bar"},
	}
	flags := linkMemoryFlags(cfg)
	assert.Contains(t, flags, "-export-memory-name")
	assert.Contains(t, flags, "-import-memory")
	assert.Contains(t, flags, "env:memory")
	assert.Contains(t, flags, "-shared-memory")
	assert.Contains(t, flags, "-heap-start-address")
	assert.Contains(t, flags, "1024")
	assert.Contains(t, flags, "foo,bar")
}

func TestLinkMemoryFlagsNilConfig(t *testing.T) {
	assert.Nil(t, linkMemoryFlags(nil))
}

func TestLinkJSFlagsTestBuildForcesCJS(t *testing.T) {
	assert.Equal(t, []string{"-js-format", "cjs", "-no-dts"}, linkJSFlags(&core.LinkConfig{JSFormat: "esm"}, true))
}

func TestLinkJSFlagsDefaultsToESM(t *testing.T) {
	assert.Equal(t, []string{"-js-format", "esm"}, linkJSFlags(nil, false))
}

func TestLinkJSFlagsRespectsManifestFormat(t *testing.T) {
	assert.Equal(t, []string{"-js-format", "cjs"}, linkJSFlags(&core.LinkConfig{JSFormat: "cjs"}, false))
}

func TestPatchFileFlags(t *testing.T) {
	o := &Options{PatchFiles: map[string]string{"root/a": "/patches/a.patch"}}
	assert.Equal(t, []string{"-patch-file", "/patches/a.patch", "-no-mi"}, patchFileFlags(o, "root/a"))
	assert.Nil(t, patchFileFlags(o, "root/b"))
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestPkgDirLayout(t *testing.T) {
	pkg := newPkg("root/sub/pkg", nil)
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.BuildCore, FQN: pkg.FQN, Target: core.TargetSource, Backend: "wasm-gc", OptDebug: true},
		Package: pkg,
	}
	dir := pkgDir("/out", node)
	assert.Equal(t, "/out/wasm-gc/debug/build/sub/pkg", dir)
}

func TestPkgDirCheckStage(t *testing.T) {
	pkg := newPkg("root/sub/pkg", nil)
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.Check, FQN: pkg.FQN, Target: core.TargetSource, Backend: "js", OptDebug: false},
		Package: pkg,
	}
	dir := pkgDir("/out", node)
	assert.Equal(t, "/out/js/release/check/sub/pkg", dir)
}

func TestPkgDirTestStage(t *testing.T) {
	pkg := newPkg("root/sub/pkg", nil)
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.BuildCore, FQN: pkg.FQN, Target: core.TargetWhiteboxTest, Backend: "native", OptDebug: false},
		Package: pkg,
	}
	dir := pkgDir("/out", node)
	assert.Equal(t, "/out/native/release/test/sub/pkg", dir)
}

func TestExpandPrebuildCommandSubstitutesTokens(t *testing.T) {
	pkg := newPkg("root/a", nil)
	node := &plan.Node{Package: pkg, PrebuildCommand: "gen $input -o $output in $pkg_dir under $mod_dir using $mooncake_bin"}
	got := expandPrebuildCommand(node, "/mod", []string{"/src/root/a/in.txt"}, []string{"/src/root/a/out.mbt"})
	assert.Equal(t, "gen /src/root/a/in.txt -o /src/root/a/out.mbt in /src/root/a under /mod using /mod/.mooncakes/__moon_bin__", got)
}

func TestExpandPrebuildCommandRewritesEmbedPrefix(t *testing.T) {
	pkg := newPkg("root/a", nil)
	node := &plan.Node{Package: pkg, PrebuildCommand: ":embed assets/ -o $output"}
	got := expandPrebuildCommand(node, "/mod", nil, []string{"/src/root/a/assets.mbt"})
	assert.True(t, strings.HasPrefix(got, "moon tool embed assets/"))
	assert.Contains(t, got, "/src/root/a/assets.mbt")
}

func TestLowerPrebuildToleratesOutOfRangeIndex(t *testing.T) {
	pkg := newPkg("root/a", &core.PackageManifest{PreBuild: nil})
	node := &plan.Node{Package: pkg, PrebuildIndex: 0, PrebuildCommand: "echo hi"}
	cmd, err := lowerPrebuild(node, "/mod")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, cmd.Argv)
	assert.Empty(t, cmd.Inputs)
	assert.Empty(t, cmd.Outputs)
}

func TestLowerPrebuildResolvesInputsAndOutputs(t *testing.T) {
	pkg := newPkg("root/a", &core.PackageManifest{
		PreBuild: []core.PrebuildEntry{{Command: "gen $input -o $output", Inputs: []string{"in.txt"}, Outputs: []string{"out.mbt"}}},
	})
	node := &plan.Node{Package: pkg, PrebuildIndex: 0, PrebuildCommand: "gen $input -o $output"}
	cmd, err := lowerPrebuild(node, "/mod")
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/root/a/in.txt"}, cmd.Inputs)
	assert.Equal(t, []string{"/src/root/a/out.mbt"}, cmd.Outputs)
	assert.Equal(t, "/src/root/a", cmd.Dir)
}

func TestCommandStringShellEscapesArgs(t *testing.T) {
	cmd := Command{Argv: []string{"echo", "hello world", "a'b"}}
	s := cmd.String()
	assert.Contains(t, s, "echo")
	assert.Contains(t, s, "hello world")
}

func TestSplitFlagsHandlesEmptyAndQuoted(t *testing.T) {
	got, err := splitFlags("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = splitFlags(`-w "+a -b" -c`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-w", "+a -b", "-c"}, got)
}

func TestLowerBuildCStubUsesManifestCCAndCFlags(t *testing.T) {
	pkg := newPkg("root/a", &core.PackageManifest{NativeStub: &core.CStubConfig{CC: "clang", CFlags: "-O2 -Wall"}})
	pkg.CStubs = []string{"stub.c"}
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.BuildCStub, FQN: pkg.FQN, Backend: "native", Index: 0},
		Package: pkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerBuildCStub(node, o, "/out")
	require.NoError(t, err)
	assert.Equal(t, "clang", cmd.Argv[0])
	assert.Contains(t, cmd.Argv, "-O2")
	assert.Contains(t, cmd.Argv, "-Wall")
	assert.Equal(t, []string{"stub.c"}, cmd.Inputs)
}

func TestLowerBuildCStubDefaultsToConfiguredCC(t *testing.T) {
	pkg := newPkg("root/a", nil)
	pkg.CStubs = []string{"stub.c"}
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.BuildCStub, FQN: pkg.FQN, Backend: "native", Index: 0},
		Package: pkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerBuildCStub(node, o, "/out")
	require.NoError(t, err)
	assert.Equal(t, "cc", cmd.Argv[0])
}

func TestLowerArchiveOrLinkCStubsStaticArchive(t *testing.T) {
	pkg := newPkg("root/a", nil)
	pkg.CStubs = []string{"a.c", "b.c"}
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.ArchiveOrLinkCStubs, FQN: pkg.FQN, Backend: "native"},
		Package: pkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerArchiveOrLinkCStubs(node, o, "/out", false)
	require.NoError(t, err)
	assert.Equal(t, "ar", cmd.Argv[0])
	assert.Equal(t, "rcs", cmd.Argv[1])
	assert.Len(t, cmd.Inputs, 2)
	require.Len(t, cmd.Outputs, 1)
	assert.True(t, strings.HasSuffix(cmd.Outputs[0], "liba.a"))
}

func TestLowerArchiveOrLinkCStubsTCCRunSharedObject(t *testing.T) {
	pkg := newPkg("root/a", nil)
	pkg.CStubs = []string{"a.c"}
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.ArchiveOrLinkCStubs, FQN: pkg.FQN, Backend: "native"},
		Package: pkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerArchiveOrLinkCStubs(node, o, "/out", true)
	require.NoError(t, err)
	assert.Contains(t, cmd.Argv, "-shared")
	require.Len(t, cmd.Outputs, 1)
	assert.True(t, strings.HasSuffix(cmd.Outputs[0], sharedLibExt()))
}

func TestLowerMakeExecutableResolvesStubArchivesFromArena(t *testing.T) {
	arena := core.NewArena()
	mainPkg := newPkg("root/main", nil)
	arena.PutPackage(mainPkg)
	stubPkg := newPkg("root/stub", nil)
	stubPkg.CStubs = []string{"s.c"}
	arena.PutPackage(stubPkg)

	node := &plan.Node{
		Key:           plan.NodeKey{Kind: plan.MakeExecutable, FQN: mainPkg.FQN, Backend: "native"},
		Package:       mainPkg,
		CStubPackages: []string{"root/stub"},
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerMakeExecutable(node, o, "/out", arena, false)
	require.NoError(t, err)
	found := false
	for _, a := range cmd.Argv {
		if strings.Contains(a, "libstub.a") {
			found = true
		}
	}
	assert.True(t, found, "expected stub archive in argv: %v", cmd.Argv)
}

func TestLowerMakeExecutableErrorsOnMissingStubPackage(t *testing.T) {
	arena := core.NewArena()
	mainPkg := newPkg("root/main", nil)
	arena.PutPackage(mainPkg)
	node := &plan.Node{
		Key:           plan.NodeKey{Kind: plan.MakeExecutable, FQN: mainPkg.FQN, Backend: "native"},
		Package:       mainPkg,
		CStubPackages: []string{"root/missing"},
	}
	o := &Options{Config: testConfig()}
	_, err := lowerMakeExecutable(node, o, "/out", arena, false)
	assert.Error(t, err)
}

func TestLowerMakeExecutableTCCRunEmitsResponseFile(t *testing.T) {
	arena := core.NewArena()
	mainPkg := newPkg("root/main", nil)
	arena.PutPackage(mainPkg)
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.MakeExecutable, FQN: mainPkg.FQN, Backend: "native"},
		Package: mainPkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerMakeExecutable(node, o, "/out", arena, true)
	require.NoError(t, err)
	assert.Equal(t, "tcc", cmd.Argv[0])
	assert.Equal(t, "-run", cmd.Argv[1])
	require.Len(t, cmd.Outputs, 1)
	assert.True(t, strings.HasSuffix(cmd.Outputs[0], ".tcc-response"))
}

func TestLowerGenerateTestInfoCollectsWhiteboxSources(t *testing.T) {
	pkg := newPkg("root/a", nil)
	pkg.Sources.Whitebox = []string{"a_wbtest.mbt"}
	node := &plan.Node{
		Key:     plan.NodeKey{Kind: plan.GenerateTestInfo, FQN: pkg.FQN, Target: core.TargetWhiteboxTest, Backend: "wasm-gc"},
		Package: pkg,
	}
	o := &Options{Config: testConfig()}
	cmd, err := lowerGenerateTestInfo(node, o, "/out")
	require.NoError(t, err)
	assert.Contains(t, cmd.Inputs, "a_wbtest.mbt")
	assert.Contains(t, cmd.Argv, "generate-test-driver")
}
