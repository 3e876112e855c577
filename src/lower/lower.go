package lower

import (
	"fmt"
	"path/filepath"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/plan"
)

// Lowerer translates plan.Nodes into Commands for one invocation. It holds
// the data every node kind needs: the resolved package/module store, the
// target-root artifact directory, and the invocation's Options.
type Lowerer struct {
	Arena      *core.Arena
	TargetRoot string
	ModRoot    string
	Options    *Options
	TCCRun     bool

	// ThirdPartyModules names module names whose packages get no
	// warn/alert flags (spec.md 4.4, "Warnings/alerts").
	ThirdPartyModules map[string]bool
}

// Lower translates one build plan node into a Command.
func (l *Lowerer) Lower(node *plan.Node) (Command, error) {
	switch node.Key.Kind {
	case plan.Check:
		return l.lowerCheck(node)
	case plan.BuildCore:
		return l.lowerBuildCore(node)
	case plan.LinkCore:
		return l.lowerLinkCore(node)
	case plan.GenerateTestInfo:
		return lowerGenerateTestInfo(node, l.Options, l.TargetRoot)
	case plan.BuildCStub:
		return lowerBuildCStub(node, l.Options, l.TargetRoot)
	case plan.ArchiveOrLinkCStubs:
		return lowerArchiveOrLinkCStubs(node, l.Options, l.TargetRoot, l.TCCRun)
	case plan.MakeExecutable:
		return lowerMakeExecutable(node, l.Options, l.TargetRoot, l.Arena, l.TCCRun)
	case plan.BuildRuntimeLib:
		return l.lowerBuildRuntimeLib(node)
	case plan.Bundle:
		return l.lowerBundle(node)
	case plan.ParseMbti:
		return l.lowerParseMbti(node)
	case plan.GenerateMbti:
		return l.lowerGenerateMbti(node)
	case plan.BuildDocs:
		return l.lowerBuildDocs(node)
	case plan.RunPrebuild:
		return lowerPrebuild(node, l.ModRoot)
	}
	return Command{}, fmt.Errorf("internal error: unhandled node kind %s", node.Key.Kind)
}

func (l *Lowerer) isThirdParty(pkg *core.Package) bool {
	return l.ThirdPartyModules[pkg.ModuleID.Name]
}

// miDepsOf builds the -i <path>:<alias> list for a target from its package
// graph dependency edges (spec.md 4.4, "Package metadata").
func (l *Lowerer) miDepsOf(node *plan.Node, target core.TargetKind) []miDependency {
	var deps []miDependency
	for _, edge := range node.Deps {
		if edge.Kind != plan.Check && edge.Kind != plan.BuildCore {
			continue
		}
		depPkg, ok := l.Arena.LookupPackage(edge.FQN)
		if !ok {
			continue
		}
		miPath := filepath.Join(pkgDir(l.TargetRoot, &plan.Node{Key: plan.NodeKey{
			Kind: plan.Check, FQN: edge.FQN, Target: edge.Target, Backend: edge.Backend, OptDebug: edge.OptDebug,
		}, Package: depPkg}), pkgName(edge.FQN)+".mi")
		deps = append(deps, miDependency{MiPath: miPath, Alias: core.DefaultAlias(depPkg.FQN)})
	}
	return deps
}

func (l *Lowerer) lowerCheck(node *plan.Node) (Command, error) {
	pkg := node.Package
	dir := pkgDir(l.TargetRoot, node)
	mi := filepath.Join(dir, pkgName(pkg.FQN)+".mi")

	sources := checkSources(pkg, node.Key.Target)
	inputs := append([]string(nil), sources...)

	argv := []string{"moonc", "check"}
	argv = append(argv, sources...)
	argv = append(argv, "-o", mi)
	argv = append(argv, packageMetadataFlags(pkg, l.miDepsOf(node, node.Key.Target))...)
	argv = append(argv, targetFlag(node.Key.Backend)...)
	argv = append(argv, stdlibFlags(l.Options, node.Key.Backend)...)
	argv = append(argv, errorFormatFlags(l.Options)...)
	argv = append(argv, testKindFlags(node.Key.Target)...)
	argv = append(argv, warnAlertFlags(l.Options, l.moduleWarnList(pkg), l.moduleAlertList(pkg), pkg.Manifest.WarnList, pkg.Manifest.AlertList, l.isThirdParty(pkg))...)

	vflags, err := virtualPackageFlags(pkg, l.Arena)
	if err != nil {
		return Command{}, err
	}
	argv = append(argv, vflags...)
	argv = append(argv, patchFileFlags(l.Options, pkg.FQN)...)

	return Command{Argv: argv, Inputs: inputs, Outputs: []string{mi}, Dir: pkg.Root}, nil
}

func (l *Lowerer) lowerBuildCore(node *plan.Node) (Command, error) {
	pkg := node.Package
	dir := pkgDir(l.TargetRoot, node)
	coreFile := filepath.Join(dir, pkgName(pkg.FQN)+".core")
	mi := filepath.Join(dir, pkgName(pkg.FQN)+".mi")

	isTest := node.Key.Target != core.TargetSource
	sources := checkSources(pkg, node.Key.Target)
	inputs := append([]string(nil), sources...)

	argv := []string{"moonc", "build-package"}
	argv = append(argv, sources...)
	argv = append(argv, "-o", coreFile)
	argv = append(argv, packageMetadataFlags(pkg, l.miDepsOf(node, node.Key.Target))...)
	argv = append(argv, targetFlag(node.Key.Backend)...)
	argv = append(argv, stdlibFlags(l.Options, node.Key.Backend)...)
	argv = append(argv, debugFlags(l.Options, node.Key.Backend, isTest)...)
	argv = append(argv, coverageFlags(l.Options, pkg.FQN, node.Key.Target)...)
	argv = append(argv, errorFormatFlags(l.Options)...)
	argv = append(argv, testKindFlags(node.Key.Target)...)
	argv = append(argv, warnAlertFlags(l.Options, l.moduleWarnList(pkg), l.moduleAlertList(pkg), pkg.Manifest.WarnList, pkg.Manifest.AlertList, l.isThirdParty(pkg))...)

	if isTest {
		kind := testKindSuffix(node.Key.Target)
		driver := filepath.Join(dir, "__generated_driver_for_"+kind+".mbt")
		argv = append(argv, driver)
		inputs = append(inputs, driver)
		argv = append(argv, testDriverFlags()...)
	}

	vflags, err := virtualPackageFlags(pkg, l.Arena)
	if err != nil {
		return Command{}, err
	}
	argv = append(argv, vflags...)
	argv = append(argv, patchFileFlags(l.Options, pkg.FQN)...)

	outputs := []string{coreFile}
	if pkg.Manifest.Virtual == nil || !pkg.Manifest.Virtual.HasInterface {
		outputs = append(outputs, mi)
	}
	return Command{Argv: argv, Inputs: inputs, Outputs: outputs, Dir: pkg.Root}, nil
}

func (l *Lowerer) lowerLinkCore(node *plan.Node) (Command, error) {
	pkg := node.Package
	dir := pkgDir(l.TargetRoot, node)

	isTest := node.Key.Target != core.TargetSource
	var out string
	if isTest {
		out = filepath.Join(dir, pkgName(pkg.FQN)+"."+testKindSuffix(node.Key.Target)+backendExt(node.Key.Backend))
	} else {
		out = filepath.Join(dir, pkgName(pkg.FQN)+backendExt(node.Key.Backend))
	}

	var coreFiles, inputs []string
	var closure []*core.Package
	for _, ck := range node.LinkClosure {
		p, ok := l.Arena.LookupPackage(ck.FQN)
		if !ok {
			return Command{}, fmt.Errorf("link %s: package %q not found", pkg.FQN, ck.FQN)
		}
		closure = append(closure, p)
		f := filepath.Join(pkgDir(l.TargetRoot, &plan.Node{Key: plan.NodeKey{
			Kind: plan.BuildCore, FQN: ck.FQN, Target: ck.Target, Backend: ck.Backend, OptDebug: ck.OptDebug,
		}, Package: p}), pkgName(ck.FQN)+".core")
		coreFiles = append(coreFiles, f)
	}
	inputs = append(inputs, coreFiles...)

	argv := []string{"moonc", "link-core"}
	argv = append(argv, stdlibCoreFiles(l.Options, node.Key.Backend)...)
	argv = append(argv, coreFiles...)
	argv = append(argv, "-o", out)
	argv = append(argv, targetFlag(node.Key.Backend)...)
	argv = append(argv, debugFlags(l.Options, node.Key.Backend, isTest)...)
	argv = append(argv, linkPackageConfigFlags(pkg, closure, nil, pkg.FQN)...)

	if cfg, ok := pkg.Manifest.Link[node.Key.Backend]; ok {
		argv = append(argv, linkMemoryFlags(&cfg)...)
		if node.Key.Backend == "js" {
			argv = append(argv, linkJSFlags(&cfg, isTest)...)
		}
	} else if node.Key.Backend == "js" {
		argv = append(argv, linkJSFlags(nil, isTest)...)
	}

	if isTest {
		argv = append(argv, testDriverLinkFlags()...)
	}

	return Command{Argv: argv, Inputs: inputs, Outputs: []string{out}, Dir: pkg.Root}, nil
}

func (l *Lowerer) lowerBuildRuntimeLib(node *plan.Node) (Command, error) {
	dir := filepath.Join(l.TargetRoot, node.Key.Backend, optDirName(node.Key.OptDebug), "build", "__runtime__")
	out := filepath.Join(dir, "libmoonbitrun.o")
	src := filepath.Join(l.Options.Config.StdlibPath(node.Key.Backend), "..", "runtime", "runtime.c")
	argv := []string{l.Options.Config.Tools.CC, "-c", src, "-o", out}
	return Command{Argv: argv, Inputs: []string{src}, Outputs: []string{out}}, nil
}

func (l *Lowerer) lowerBundle(node *plan.Node) (Command, error) {
	dir := filepath.Join(l.TargetRoot, node.Key.Backend, optDirName(node.Key.OptDebug), "bundle")
	out := filepath.Join(dir, "core.core")

	var inputs []string
	argv := []string{"moonc", "bundle-core"}
	for _, dep := range node.Deps {
		if dep.Kind != plan.BuildCore {
			continue
		}
		p, ok := l.Arena.LookupPackage(dep.FQN)
		if !ok {
			continue
		}
		f := filepath.Join(pkgDir(l.TargetRoot, &plan.Node{Key: dep, Package: p}), pkgName(dep.FQN)+".core")
		inputs = append(inputs, f)
		argv = append(argv, f)
	}
	argv = append(argv, "-o", out)
	return Command{Argv: argv, Inputs: inputs, Outputs: []string{out}}, nil
}

func (l *Lowerer) lowerParseMbti(node *plan.Node) (Command, error) {
	pkg := node.Package
	dir := pkgDir(l.TargetRoot, node)
	mi := filepath.Join(dir, pkgName(pkg.FQN)+".mi")
	iface := filepath.Join(pkg.Root, pkg.Manifest.Virtual.Interface)

	inputs := []string{iface}
	for _, dep := range node.Deps {
		depPkg, ok := l.Arena.LookupPackage(dep.FQN)
		if !ok {
			continue
		}
		inputs = append(inputs, filepath.Join(pkgDir(l.TargetRoot, &plan.Node{Key: dep, Package: depPkg}), pkgName(dep.FQN)+".mi"))
	}

	argv := []string{"moonc", "parse-mbti", iface, "-o", mi, "-pkg", pkg.FQN}
	return Command{Argv: argv, Inputs: inputs, Outputs: []string{mi}, Dir: pkg.Root}, nil
}

func (l *Lowerer) lowerGenerateMbti(node *plan.Node) (Command, error) {
	pkg := node.Package
	dir := pkgDir(l.TargetRoot, node)
	mi := filepath.Join(dir, pkgName(pkg.FQN)+".mi")
	mbti := filepath.Join(dir, pkgName(pkg.FQN)+".mbti")
	argv := []string{"moonc", "mbti", mi, "-o", mbti}
	return Command{Argv: argv, Inputs: []string{mi}, Outputs: []string{mbti}}, nil
}

func (l *Lowerer) lowerBuildDocs(node *plan.Node) (Command, error) {
	dir := filepath.Join(l.TargetRoot, "docs")
	var inputs []string
	for _, pkg := range l.Arena.Packages() {
		inputs = append(inputs, filepath.Join(pkg.Root, pkgName(pkg.FQN)+".mbti"))
	}
	out := filepath.Join(dir, "index.html")
	argv := []string{"moondoc", "-o", dir}
	return Command{Argv: argv, Inputs: inputs, Outputs: []string{out}}, nil
}

// checkSources returns the source files a check/build command should pass
// for a given test target kind.
func checkSources(pkg *core.Package, target core.TargetKind) []string {
	switch target {
	case core.TargetWhiteboxTest:
		return append(append([]string(nil), pkg.Sources.Regular...), pkg.Sources.Whitebox...)
	case core.TargetBlackboxTest:
		return pkg.Sources.Blackbox
	default:
		return pkg.Sources.Regular
	}
}

// moduleWarnList/moduleAlertList surface the owning module's manifest-level
// warn/alert lists (spec.md 4.4, "Warnings/alerts").
func (l *Lowerer) moduleWarnList(pkg *core.Package) string {
	if mod, ok := l.Arena.LookupModule(pkg.ModuleID); ok {
		return mod.Manifest.WarnList
	}
	return ""
}

func (l *Lowerer) moduleAlertList(pkg *core.Package) string {
	if mod, ok := l.Arena.LookupModule(pkg.ModuleID); ok {
		return mod.Manifest.AlertList
	}
	return ""
}
