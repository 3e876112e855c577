// Command moon is the CLI entrypoint for the moonbit build orchestrator
// (spec.md 6, "CLI surface").
package main

import (
	"context"
	"fmt"
	"os"

	"path/filepath"

	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/op/go-logging.v1"

	"github.com/moonbitlang/moon/src/cli"
	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/engine"
	"github.com/moonbitlang/moon/src/moonplz"
	"github.com/moonbitlang/moon/src/resolve"
	"github.com/moonbitlang/moon/src/testorch"
)

var log = logging.MustGetLogger("moon")

var opts struct {
	SourceDir string       `long:"source-dir" description:"Root directory of the module to operate on" default:"."`
	TargetDir string       `long:"target-dir" description:"Build output directory; defaults to <source-dir>/target"`
	Quiet     bool         `short:"q" long:"quiet" description:"Suppress non-error output"`
	Verbosity cli.Verbosity `short:"v" long:"verbosity" description:"Verbosity of output" default:"1"`
	Trace     bool         `long:"trace" description:"Write a Chrome trace-event file to <target-dir>/trace.json"`
	DryRun    bool         `long:"dry-run" description:"Print the commands that would run, without running them"`

	Build   buildOpts   `command:"build" description:"Build is-main packages"`
	Check   checkOpts   `command:"check" description:"Type-check packages without building an executable"`
	Run     runOpts     `command:"run" description:"Build and run a single package"`
	Test    testOpts    `command:"test" description:"Build and run tests"`
	Bundle  bundleOpts  `command:"bundle" description:"Bundle a module's core artifacts"`
	Clean   cleanOpts   `command:"clean" description:"Remove build output"`
	New     newOpts     `command:"new" description:"Scaffold a new module" subcommands-optional:"true"`
	Fmt     fmtOpts     `command:"fmt" description:"Format source files"`
	Doc     docOpts     `command:"doc" description:"Generate documentation"`
	Info    infoOpts    `command:"info" description:"Print workspace information"`
	Version versionOpts `command:"version" description:"Print version information"`

	Add     registryOpts `command:"add" description:"Add a dependency" hidden:"true"`
	Remove  registryOpts `command:"remove" description:"Remove a dependency" hidden:"true"`
	Install registryOpts `command:"install" description:"Install dependencies" hidden:"true"`
	Tree    registryOpts `command:"tree" description:"Print the dependency tree" hidden:"true"`
	Update  registryOpts `command:"update" description:"Update dependencies" hidden:"true"`

	Login    registryOpts `command:"login" description:"Log in to the package registry" hidden:"true"`
	Register registryOpts `command:"register" description:"Register a new account" hidden:"true"`
	Publish  registryOpts `command:"publish" description:"Publish a module" hidden:"true"`
	Coverage registryOpts `command:"coverage" description:"Coverage report subcommands" hidden:"true"`
}

type commonOpts struct {
	Target    string   `long:"target" description:"Backend target, or \"all\"" default:"wasm-gc"`
	Release   bool     `long:"release" description:"Build with optimizations"`
	Debug     bool     `long:"debug" description:"Build with debug symbols"`
	OutputWat bool     `long:"output-wat" description:"Emit .wat alongside .wasm"`
	NoStd     bool     `long:"nostd" description:"Don't link the standard library"`
	SortInput bool     `long:"sort-input" description:"Deterministically order sibling build steps"`
	Serial    bool     `long:"serial" description:"Disable parallelism (equivalent to -j1)"`
	DenyWarn  bool     `long:"deny-warn" description:"Treat warnings as errors"`
	NoRender  bool     `long:"no-render" description:"Disable the fancy diagnostic renderer"`
	Args      struct {
		Packages []string `positional-arg-name:"package" description:"Packages to operate on; defaults to every package"`
	} `positional-args:"true"`
}

func (c commonOpts) invocation(topLevel bool) moonplz.Invocation {
	return moonplz.Invocation{
		Backend:   c.Target,
		Debug:     c.Debug || !c.Release,
		DryRun:    opts.DryRun || topLevel,
		NoStd:     c.NoStd,
		SortInput: c.SortInput,
		Serial:    c.Serial,
		DenyWarn:  c.DenyWarn,
		Trace:     opts.Trace,
	}
}

type buildOpts struct {
	commonOpts
}

type checkOpts struct {
	commonOpts
	PatchFile string `long:"patch-file" description:"Patch file for the checked package (accepted, but not passed to the compiler)"`
	NoMI      bool   `long:"no-mi" description:"Don't emit .mi interface files (accepted, but has no effect)"`
}

type runOpts struct {
	commonOpts
	RunArgs []string `long:"" positional-arg-name:"args" description:"Arguments passed to the running program"`
}

type testOpts struct {
	commonOpts
	Packages        []string `short:"p" long:"package" description:"Restrict to this package (repeatable)"`
	File            string   `short:"f" long:"file" description:"Restrict to this file"`
	Index           int      `short:"i" long:"index" description:"Restrict to this test index" default:"-1"`
	Update          bool     `short:"u" long:"update" description:"Auto-update failing expect/snapshot tests"`
	Limit           int      `short:"l" long:"limit" description:"Maximum auto-update iterations"`
	NoParallelize   bool     `long:"no-parallelize" description:"Run test executables one at a time"`
	Jobs            int      `short:"j" long:"jobs" description:"Number of parallel test workers"`
	EnableCoverage  bool     `long:"enable-coverage" description:"Instrument for coverage"`
}

type bundleOpts struct {
	commonOpts
	All bool `long:"all" description:"Bundle every module in the workspace"`
}

type cleanOpts struct {
	Background bool `long:"background" description:"Clean asynchronously"`
}

type newOpts struct {
	Lib  bool   `long:"lib" description:"Scaffold a library module instead of an executable"`
	Path string `long:"path" description:"Destination path"`
	User string `long:"user" description:"Author username for the generated manifest"`
	Name string `long:"name" description:"Module name"`
}

type fmtOpts struct {
	Check bool `long:"check" description:"Check formatting without writing changes"`
}

type docOpts struct{}
type infoOpts struct{}

type versionOpts struct {
	All     bool `long:"all" description:"Print every component's version"`
	JSON    bool `long:"json" description:"Print as JSON"`
	NoPath  bool `long:"no-path" description:"Omit the binary's path"`
}

// registryOpts covers the package-registry verbs (add/remove/install/tree/
// update/login/register/publish/coverage) that this build doesn't implement
// (no registry write path is wired; see DESIGN.md).
type registryOpts struct {
	Args struct {
		Rest []string `positional-arg-name:"args"`
	} `positional-args:"true"`
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debugf)); err != nil {
		log.Warningf("failed to set GOMAXPROCS: %s", err)
	}
	parser := cli.ParseFlagsOrDie("moon", "", &opts)
	if opts.Quiet {
		cli.InitLogging(0)
	} else {
		cli.InitLogging(opts.Verbosity)
	}

	if parser.Command.Active == nil {
		fmt.Fprintln(os.Stderr, "moon: no command given; see --help")
		os.Exit(5)
	}
	os.Exit(run(parser.Command.Active.Name))
}

func run(command string) int {
	sourceDir := opts.SourceDir
	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = moonplz.DefaultTargetRoot(sourceDir)
	}

	cfg, err := core.ReadConfigFiles([]string{core.MachineConfigFileName, core.GlobalConfigFileName})
	if err != nil {
		log.Errorf("%s", err)
		return 5
	}
	if command == "clean" {
		if err := moonplzClean(targetDir, opts.Clean.Background); err != nil {
			log.Errorf("%s", err)
			return 1
		}
		return 0
	}

	gitHome := filepath.Join(cfg.Moon.Home, "git")
	registry := resolve.NewFSRegistry(gitHome)

	p, err := moonplz.Load(sourceDir, targetDir, cfg, registry, gitHome)
	if err != nil {
		log.Errorf("%s", err)
		return 1
	}

	ctx := context.Background()
	switch command {
	case "build":
		return runBuild(ctx, p)
	case "check":
		return runCheck(ctx, p)
	case "run":
		return runRun(ctx, p)
	case "test":
		return runTest(ctx, p)
	case "bundle":
		return runBundle(ctx, p)
	case "fmt", "doc", "info", "new", "version":
		fmt.Fprintf(os.Stderr, "moon: %q is not implemented in this build\n", command)
		return 5
	default:
		fmt.Fprintf(os.Stderr, "moon: %q is not implemented in this build (no registry backend wired)\n", command)
		return 5
	}
}

func moonplzClean(targetDir string, background bool) error {
	cfg := core.DefaultConfiguration()
	p := &moonplz.Pipeline{Config: cfg, TargetRoot: targetDir}
	return p.Clean(background)
}

func runBuild(ctx context.Context, p *moonplz.Pipeline) int {
	result, err := p.Build(ctx, opts.Build.Args.Packages, opts.Build.invocation(false))
	return reportEngineResult(result, err)
}

func runCheck(ctx context.Context, p *moonplz.Pipeline) int {
	inv := opts.Check.invocation(false)
	inv.PatchFiles = nil
	result, err := p.Check(ctx, opts.Check.Args.Packages, inv)
	return reportEngineResult(result, err)
}

func runRun(ctx context.Context, p *moonplz.Pipeline) int {
	if len(opts.Run.Args.Packages) != 1 {
		fmt.Fprintln(os.Stderr, "moon run: exactly one package is required")
		return 5
	}
	result, err := p.Build(ctx, opts.Run.Args.Packages, opts.Run.invocation(false))
	if code := reportEngineResult(result, err); code != 0 {
		return code
	}
	fmt.Fprintln(os.Stderr, "moon run: build succeeded; executing the produced binary is a collaborator outside this module")
	return 0
}

func runBundle(ctx context.Context, p *moonplz.Pipeline) int {
	mod, err := p.RootModule()
	if err != nil {
		log.Errorf("%s", err)
		return 1
	}
	result, err := p.Bundle(ctx, mod.ID.Name, opts.Bundle.invocation(false))
	return reportEngineResult(result, err)
}

func runTest(ctx context.Context, p *moonplz.Pipeline) int {
	filter := testorch.Filter{Packages: opts.Test.Packages, File: opts.Test.File, Index: opts.Test.Index}
	inv := moonplz.TestInvocation{
		Invocation:    opts.Test.invocation(false),
		Filter:        filter,
		Update:        opts.Test.Update,
		MaxIterations: opts.Test.Limit,
	}
	inv.Coverage = opts.Test.EnableCoverage
	if opts.Test.NoParallelize {
		inv.Serial = true
	}

	results, err := p.Test(ctx, opts.Test.Packages, inv)
	if err != nil && results.NumTests == 0 {
		log.Errorf("%s", err)
		return 5
	}
	return results.ExitCode(opts.Test.Update && err != nil)
}

func reportEngineResult(result *engine.Result, err error) int {
	if err != nil {
		log.Errorf("%s", err)
		if result != nil && result.Failed > 0 {
			return 2
		}
		return 1
	}
	fmt.Println("moon: ran tasks, now up to date")
	return 0
}
