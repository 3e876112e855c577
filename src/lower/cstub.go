package lower

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/plan"
)

// lowerBuildCStub implements the BuildCStub node kind: compile one C stub
// source file to an object file with the configured (or default) C compiler
// (spec.md 4.4, "C stubs").
func lowerBuildCStub(node *plan.Node, o *Options, targetRoot string) (Command, error) {
	pkg := node.Package
	src := pkg.CStubs[node.Key.Index]
	dir := pkgDir(targetRoot, node)
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	obj := filepath.Join(dir, stem+".o")

	cc := o.Config.Tools.CC
	var cflags []string
	if pkg.Manifest.NativeStub != nil {
		if pkg.Manifest.NativeStub.CC != "" {
			cc = pkg.Manifest.NativeStub.CC
		}
		var err error
		cflags, err = splitFlags(pkg.Manifest.NativeStub.CFlags)
		if err != nil {
			return Command{}, fmt.Errorf("package %s: native_stub cflags: %w", pkg.FQN, err)
		}
	}

	argv := append([]string{cc, "-c", src, "-o", obj}, cflags...)
	return Command{Argv: argv, Inputs: []string{src}, Outputs: []string{obj}, Dir: pkg.Root}, nil
}

// lowerArchiveOrLinkCStubs implements the ArchiveOrLinkCStubs node kind:
// archive a package's compiled C stub objects into a static library, with
// the configured (or default) archiver and ar-flags (spec.md 4.4, "C
// stubs"). In tcc-run mode it instead links the objects into a shared
// object with the package's native_stub cc (default "cc") and -shared.
func lowerArchiveOrLinkCStubs(node *plan.Node, o *Options, targetRoot string, tccRun bool) (Command, error) {
	pkg := node.Package
	dir := pkgDir(targetRoot, node)

	objs := make([]string, len(pkg.CStubs))
	for i, src := range pkg.CStubs {
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		objs[i] = filepath.Join(dir, stem+".o")
	}

	libName := "lib" + pkgName(pkg.FQN)
	if tccRun {
		out := filepath.Join(dir, libName+sharedLibExt())
		ar, arFlags := "cc", []string{"-shared"}
		if pkg.Manifest.NativeStub != nil && pkg.Manifest.NativeStub.CC != "" {
			ar = pkg.Manifest.NativeStub.CC
		}
		argv := append([]string{ar}, arFlags...)
		argv = append(argv, objs...)
		argv = append(argv, "-o", out)
		return Command{Argv: argv, Inputs: objs, Outputs: []string{out}, Dir: pkg.Root}, nil
	}

	out := filepath.Join(dir, libName+".a")
	ar := o.Config.Tools.AR
	var arFlags []string
	if pkg.Manifest.NativeStub != nil {
		var err error
		arFlags, err = splitFlags(pkg.Manifest.NativeStub.ArFlags)
		if err != nil {
			return Command{}, fmt.Errorf("package %s: native_stub ar-flags: %w", pkg.FQN, err)
		}
	}
	argv := append([]string{ar, "rcs"}, arFlags...)
	argv = append(argv, out)
	argv = append(argv, objs...)
	return Command{Argv: argv, Inputs: objs, Outputs: []string{out}, Dir: pkg.Root}, nil
}

func sharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// lowerMakeExecutable implements spec.md 4.4's "Native executable link":
// after moonc link-core emits a .c file, spawn the configured C compiler
// with the stdlib runtime object, the generated .c, every stub static
// archive, and the package's declared C/link flags. arena resolves the
// link closure's C-stub-bearing packages by FQN.
func lowerMakeExecutable(node *plan.Node, o *Options, targetRoot string, arena *core.Arena, tccRun bool) (Command, error) {
	pkg := node.Package
	dir := pkgDir(targetRoot, node)
	generatedC := filepath.Join(dir, pkgName(pkg.FQN)+".c")
	out := filepath.Join(dir, pkgName(pkg.FQN)+".exe")

	inputs := []string{generatedC}
	argv := []string{o.Config.Tools.CC}

	if !tccRun {
		runtimeObj := filepath.Join(o.Config.StdlibPath("native"), "..", "runtime", "libmoonbitrun.o")
		inputs = append(inputs, runtimeObj)
		argv = append(argv, runtimeObj)
	}
	argv = append(argv, generatedC)

	for _, stubFQN := range node.CStubPackages {
		stubPkg, ok := arena.LookupPackage(stubFQN)
		if !ok {
			return Command{}, fmt.Errorf("link %s: stub package %q not found", pkg.FQN, stubFQN)
		}
		archive := filepath.Join(stubArtifactDir(targetRoot, node, stubPkg), "lib"+pkgName(stubFQN)+archiveExt(tccRun))
		inputs = append(inputs, archive)
		argv = append(argv, archive)
	}

	if pkg.Manifest.NativeStub != nil {
		cflags, err := splitFlags(pkg.Manifest.NativeStub.CFlags)
		if err != nil {
			return Command{}, err
		}
		linkFlags, err := splitFlags(pkg.Manifest.NativeStub.LinkFlags)
		if err != nil {
			return Command{}, err
		}
		argv = append(argv, cflags...)
		argv = append(argv, linkFlags...)
	}

	argv = append(argv, "-o", out)

	if tccRun {
		// The "executable" is a response file recording the tcc invocation
		// so the binary can re-exec itself; stubs are shared objects loaded
		// at tcc runtime rather than linked in statically.
		respFile := filepath.Join(dir, pkgName(pkg.FQN)+".tcc-response")
		return Command{Argv: append([]string{"tcc", "-run"}, argv[1:]...), Inputs: inputs, Outputs: []string{respFile}, Dir: pkg.Root}, nil
	}
	return Command{Argv: argv, Inputs: inputs, Outputs: []string{out}, Dir: pkg.Root}, nil
}

func archiveExt(tccRun bool) string {
	if tccRun {
		return sharedLibExt()
	}
	return ".a"
}

func stubArtifactDir(targetRoot string, node *plan.Node, stubPkg *core.Package) string {
	return filepath.Join(targetRoot, node.Key.Backend, optDirName(node.Key.OptDebug), "build",
		stripModulePrefix(stubPkg.FQN, stubPkg.ModuleID.Name))
}
