package moonplz

import (
	"context"
	"fmt"

	"github.com/moonbitlang/moon/src/discover"
	"github.com/moonbitlang/moon/src/engine"
	"github.com/moonbitlang/moon/src/lower"
	"github.com/moonbitlang/moon/src/plan"
	"github.com/moonbitlang/moon/src/process"
)

// Invocation gathers every flag common to build/check/run/test/bundle
// (spec.md 6's common flag set).
type Invocation struct {
	Backend string // "" defaults to discover.BackendWasmGC
	Debug   bool

	DryRun          bool
	NoStd           bool
	SortInput       bool
	Serial          bool
	DenyWarn        bool
	ErrorFormatJSON bool
	Trace           bool
	ForceRebuild    bool
	Coverage        bool
	PatchFiles      map[string]string
}

func (inv Invocation) backend() string {
	if inv.Backend == "" {
		return discover.BackendWasmGC
	}
	return inv.Backend
}

func (p *Pipeline) lowerer(inv Invocation) *lower.Lowerer {
	return &lower.Lowerer{
		Arena:      p.Arena,
		TargetRoot: p.TargetRoot,
		ModRoot:    p.Config.Moon.Home,
		TCCRun:     inv.backend() == discover.BackendNative,
		Options: &lower.Options{
			Config:          p.Config,
			NoStd:           inv.NoStd,
			Debug:           inv.Debug,
			Coverage:        inv.Coverage,
			DenyWarn:        inv.DenyWarn,
			ErrorFormatJSON: inv.ErrorFormatJSON,
			PatchFiles:      inv.PatchFiles,
		},
	}
}

func (p *Pipeline) engineOptions(mode string, inv Invocation) engine.Options {
	return engine.Options{
		TargetRoot:      p.TargetRoot,
		Mode:            mode,
		Parallelism:     p.Config.Moon.NumThreads,
		Serial:          inv.Serial,
		SortInput:       inv.SortInput,
		ForceRebuild:    inv.ForceRebuild,
		JSONDiagnostics: inv.ErrorFormatJSON,
		HashFunction:    p.Config.Build.HashFunction,
		Trace:           inv.Trace,
	}
}

// Build implements `moon build`: constructs the LinkCore/MakeExecutable plan
// for every targeted is-main package and executes it (spec.md 4.3 then 4.5).
func (p *Pipeline) Build(ctx context.Context, pkgFilter []string, inv Invocation) (*engine.Result, error) {
	goals, err := p.BuildGoals(pkgFilter, inv.backend(), inv.Debug)
	if err != nil {
		return nil, err
	}
	return p.runGoals(ctx, "build", goals, inv)
}

// Check implements `moon check`: constructs and executes the Check plan for
// every targeted package without linking an executable.
func (p *Pipeline) Check(ctx context.Context, pkgFilter []string, inv Invocation) (*engine.Result, error) {
	goals, err := p.CheckGoals(pkgFilter, inv.backend(), inv.Debug)
	if err != nil {
		return nil, err
	}
	return p.runGoals(ctx, "check", goals, inv)
}

// Bundle implements `moon bundle`: builds the core artifacts for every
// non-virtual package of a module (spec.md 4.3, "Bundle").
func (p *Pipeline) Bundle(ctx context.Context, moduleName string, inv Invocation) (*engine.Result, error) {
	goal := BundleGoal(moduleName, inv.backend(), inv.Debug)
	return p.runGoals(ctx, "bundle", []plan.NodeKey{goal}, inv)
}

func (p *Pipeline) runGoals(ctx context.Context, mode string, goals []plan.NodeKey, inv Invocation) (*engine.Result, error) {
	ctor := plan.New(p.Arena, p.Packages, inv.backend(), inv.Debug)
	graph, err := ctor.Construct(goals)
	if err != nil {
		return nil, fmt.Errorf("constructing build plan: %w", err)
	}
	if inv.DryRun {
		return dryRun(graph, p.lowerer(inv))
	}
	exec := process.New()
	return engine.Run(ctx, graph, p.lowerer(inv), exec, p.engineOptions(mode, inv))
}

// dryRun lowers every node without executing anything, for `--dry-run`.
func dryRun(graph *plan.Graph, lowerer *lower.Lowerer) (*engine.Result, error) {
	for _, node := range graph.Nodes() {
		cmd, err := lowerer.Lower(node)
		if err != nil {
			return nil, fmt.Errorf("lowering %s: %w", node.Key, err)
		}
		fmt.Println(cmd.String())
	}
	return &engine.Result{}, nil
}
