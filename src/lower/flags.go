package lower

import (
	"fmt"
	"strings"

	"github.com/moonbitlang/moon/src/core"
)

// Options carries the invocation-wide switches that feed flag derivation
// (spec.md 4.4, "Flag derivation rules"); one Options is shared across every
// node lowered in a single moon invocation.
type Options struct {
	Config          *core.Configuration
	NoStd           bool
	Debug           bool
	Coverage        bool
	DenyWarn        bool
	ErrorFormatJSON bool
	WarnListCLI     string
	AlertListCLI    string
	// PatchFiles maps a package FQN to a supplied patch-file path
	// (spec.md 4.4, "Patch file"; moon check --patch-file).
	PatchFiles map[string]string
}

// coverageSkipList names packages that must never receive -enable-coverage
// even when coverage is globally requested: their own blackbox-test build
// of themselves would otherwise double-instrument the package under test
// (spec.md 4.4, "Coverage").
var coverageSkipList = map[string]bool{
	"moonbitlang/core/coverage": true,
}

// selfCoverageList names packages the coverage runtime itself references,
// which must report coverage against the package that imports them rather
// than their own source (spec.md 4.4, "-coverage-package-override=@self").
var selfCoverageList = map[string]bool{
	"moonbitlang/core/builtin": true,
	"moonbitlang/core/prelude": true,
}

// stdlibFlags implements spec.md 4.4's "Standard library inclusion" rule for
// check/build commands.
func stdlibFlags(o *Options, backend string) []string {
	if o.NoStd {
		return nil
	}
	return []string{"-std-path", o.Config.StdlibPath(backend)}
}

// stdlibCoreFiles returns the two stdlib core files linking prepends, or
// nil with --nostd.
func stdlibCoreFiles(o *Options, backend string) []string {
	if o.NoStd {
		return nil
	}
	base := o.Config.StdlibPath(backend)
	return []string{base + "/core.core", base + "/abort.core"}
}

// sourceMapCapableBackends lists every backend except the non-GC wasm
// backend, which cannot emit source maps (spec.md 4.4, "Debug symbols").
var sourceMapCapableBackends = map[string]bool{
	"wasm-gc": true,
	"js":      true,
	"native":  true,
	"llvm":    true,
}

// debugFlags implements spec.md 4.4's "Debug symbols"/"Opt level" rules.
func debugFlags(o *Options, backend string, isTestBuild bool) []string {
	if !o.Debug {
		return nil
	}
	flags := []string{"-g"}
	if sourceMapCapableBackends[backend] {
		flags = append(flags, "-source-map")
	}
	if isTestBuild {
		flags = append(flags, "-O0")
	}
	return flags
}

// coverageFlags implements spec.md 4.4's "Coverage" rule.
func coverageFlags(o *Options, pkgFQN string, target core.TargetKind) []string {
	if !o.Coverage {
		return nil
	}
	// A blackbox-test build of a package never instruments its own test
	// sources; coverage of the package under test comes from its non-test
	// build instead (spec.md 4.4, "Coverage").
	var flags []string
	if target != core.TargetBlackboxTest && !coverageSkipList[pkgFQN] {
		flags = append(flags, "-enable-coverage")
	}
	if selfCoverageList[pkgFQN] {
		flags = append(flags, "-coverage-package-override=@self")
	}
	return flags
}

// warnAlertFlags implements spec.md 4.4's "Warnings/alerts" rule: module +
// package + command-line warn/alert lists concatenate; third-party modules
// (anything not the root module being built) get none; deny-warn mode
// appends the fixed stricter suffix.
func warnAlertFlags(o *Options, moduleWarnList, moduleAlertList, pkgWarnList, pkgAlertList string, isThirdParty bool) []string {
	if isThirdParty {
		return nil
	}
	warn := joinNonEmpty(" ", moduleWarnList, pkgWarnList, o.WarnListCLI)
	alert := joinNonEmpty(" ", moduleAlertList, pkgAlertList, o.AlertListCLI)

	var flags []string
	if warn != "" {
		flags = append(flags, "-w", warn)
	}
	if alert != "" {
		flags = append(flags, "-alert", alert)
	}
	if o.DenyWarn {
		flags = append(flags, "-w", "@a", "-alert", "@all-raise-throw-unsafe+deprecated")
	}
	return flags
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// errorFormatFlags implements spec.md 4.4's "Error format" rule.
func errorFormatFlags(o *Options) []string {
	if o.ErrorFormatJSON {
		return []string{"-error-format", "json"}
	}
	return nil
}

// packageMetadataFlags implements spec.md 4.4's "Package metadata" rule:
// -pkg, -pkg-sources, and one -i per .mi dependency.
func packageMetadataFlags(pkg *core.Package, miDeps []miDependency) []string {
	flags := []string{"-pkg", pkg.FQN, "-pkg-sources", pkg.FQN + ":" + pkg.Root}
	for _, d := range miDeps {
		flags = append(flags, "-i", d.MiPath+":"+d.Alias)
	}
	return flags
}

// miDependency is one compiled-interface dependency a compile command needs
// to see (spec.md 4.4, "-i <path>:<alias>").
type miDependency struct {
	MiPath string
	Alias  string
}

// targetFlag implements spec.md 4.4's "Target flag" rule.
func targetFlag(backend string) []string {
	return []string{"-target", backend}
}

// virtualPackageFlags implements spec.md 4.4's "Virtual packages" rule.
func virtualPackageFlags(pkg *core.Package, arena *core.Arena) ([]string, error) {
	v := pkg.Manifest.Virtual
	if v == nil || v.Implements == "" {
		return nil, nil
	}
	impl, ok := arena.LookupPackage(v.Implements)
	if !ok {
		return nil, fmt.Errorf("package %s: implements unknown virtual package %q", pkg.FQN, v.Implements)
	}
	miPath := impl.Root + "/" + pkgName(impl.FQN) + ".mi"
	if impl.Manifest.Virtual != nil && impl.Manifest.Virtual.Overridable {
		return []string{"-check-mi", miPath, "-no-mi"}, nil
	}
	return []string{"-impl-virtual", miPath + ":" + impl.FQN + ":" + impl.Root, "-no-mi"}, nil
}

// testDriverFlags implements spec.md 4.4's "Test driver" rule for compiling.
func testDriverFlags() []string {
	return []string{"-is-main", "-test-mode", "-no-mi"}
}

// testDriverLinkFlags implements the link-step half of the same rule.
func testDriverLinkFlags() []string {
	return []string{"-exported_functions", "moonbit_test_driver_internal_execute,moonbit_test_driver_finish"}
}

// testKindFlags implements spec.md 4.4's "Whitebox / blackbox flags" rule.
func testKindFlags(target core.TargetKind) []string {
	switch target {
	case core.TargetWhiteboxTest:
		return []string{"-whitebox-test"}
	case core.TargetBlackboxTest:
		return []string{"-blackbox-test", "-include-doctests"}
	default:
		return nil
	}
}

// linkPackageConfigFlags implements spec.md 4.4's "Link-only: package
// configs" rule.
func linkPackageConfigFlags(pkg *core.Package, closure []*core.Package, stdlibPkgSources []string, mainFQN string) []string {
	flags := []string{"-pkg-config-path", pkg.Root + "/moon.pkg.json"}
	for _, p := range closure {
		flags = append(flags, "-pkg-sources", p.FQN+":"+p.Root)
	}
	flags = append(flags, stdlibPkgSources...)
	flags = append(flags, "-main", mainFQN)
	return flags
}

// linkMemoryFlags implements spec.md 4.4's "Link-only: wasm memory" rule.
func linkMemoryFlags(cfg *core.LinkConfig) []string {
	if cfg == nil {
		return nil
	}
	var flags []string
	if cfg.ExportMemoryName != "" {
		flags = append(flags, "-export-memory-name", cfg.ExportMemoryName)
	}
	if cfg.ImportMemory != nil {
		flags = append(flags, "-import-memory", cfg.ImportMemory.Module+":"+cfg.ImportMemory.Name)
	}
	if cfg.HeapStartAddress != 0 {
		flags = append(flags, "-heap-start-address", fmt.Sprint(cfg.HeapStartAddress))
	}
	if cfg.SharedMemory {
		flags = append(flags, "-shared-memory")
	}
	if cfg.MemoryMin != 0 {
		flags = append(flags, "-memory-limits-min", fmt.Sprint(cfg.MemoryMin))
	}
	if cfg.MemoryMax != 0 {
		flags = append(flags, "-memory-limits-max", fmt.Sprint(cfg.MemoryMax))
	}
	if cfg.ExtraLinkFlags != "" {
		extra, err := splitFlags(cfg.ExtraLinkFlags)
		if err == nil {
			flags = append(flags, extra...)
		}
	}
	if len(cfg.ExportedFunctions) > 0 {
		flags = append(flags, "-exported_functions", strings.Join(cfg.ExportedFunctions, ","))
	}
	return flags
}

// linkJSFlags implements spec.md 4.4's "Link-only: JS" rule.
func linkJSFlags(cfg *core.LinkConfig, isTestBuild bool) []string {
	if isTestBuild {
		return []string{"-js-format", "cjs", "-no-dts"}
	}
	format := "esm"
	if cfg != nil && cfg.JSFormat != "" {
		format = cfg.JSFormat
	}
	return []string{"-js-format", format}
}

// patchFileFlags implements spec.md 4.4's "Patch file" rule.
func patchFileFlags(o *Options, pkgFQN string) []string {
	path, ok := o.PatchFiles[pkgFQN]
	if !ok {
		return nil
	}
	return []string{"-patch-file", path, "-no-mi"}
}
