package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/moonbitlang/moon/src/lower"
	"github.com/moonbitlang/moon/src/plan"
	"github.com/moonbitlang/moon/src/process"
)

// Options configures one invocation of the execution engine.
type Options struct {
	TargetRoot string
	// Mode names the invocation's diagnostic output file, e.g. "build",
	// "check", "test", "bundle" (spec.md 6, "<mode>.output").
	Mode string

	Parallelism int  // workers; 1 or Serial forces strict sequential execution
	Serial      bool // "-j1"/"--serial"
	SortInput   bool // "--sort-input": deterministic sibling ordering
	MaxFailures int  // 0 uses the spec default of 10
	ForceRebuild bool

	JSONDiagnostics bool   // "-error-format json" is active
	HashFunction    string // "sha256" | "blake3" | "xxhash"; "" defaults to blake3
	Trace           bool   // "--trace": write trace.json
}

// Result summarizes one invocation.
type Result struct {
	Failed      int
	Diagnostics *DiagnosticSink
	Tracer      *Tracer
	Resources   Resources
}

// Run lowers and executes every node in graph, using db/hasher for
// incremental skip decisions and exec to spawn lowered commands (spec.md
// 4.5 in full). It is the engine package's single entry point; callers
// (src/moonplz) don't touch Scheduler/Database/NodeHasher directly.
func Run(ctx context.Context, graph *plan.Graph, lowerer *lower.Lowerer, exec *process.Executor, opts Options) (*Result, error) {
	db := OpenDatabase(opts.TargetRoot)
	hasher, err := NewNodeHasher(opts.TargetRoot, opts.HashFunction)
	if err != nil {
		return nil, err
	}
	sink := NewDiagnosticSink(opts.JSONDiagnostics)
	var tracer *Tracer
	if opts.Trace {
		tracer = NewTracer()
	}

	parallelism := opts.Parallelism
	if opts.Serial || parallelism < 1 {
		parallelism = 1
	}

	runner := func(ctx context.Context, node *plan.Node) ([]byte, error) {
		cmd, err := lowerer.Lower(node)
		if err != nil {
			return nil, err
		}

		hash := hasher.Hash(cmd)
		if !opts.ForceRebuild {
			if rec, ok := db.Get(node.Key); ok && bytes.Equal(rec.Hash, hash) && outputsExist(cmd.Outputs) {
				return nil, nil // up to date, skip
			}
		}

		for _, out := range cmd.Outputs {
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return nil, err
			}
		}

		_, combined, runErr := exec.Run(ctx, cmd.Dir, nil, cmd.Argv)
		sink.Capture(combined)
		if runErr != nil {
			return combined, runErr
		}

		for _, out := range cmd.Outputs {
			hasher.InvalidatePath(out)
		}
		if err := db.Put(node.Key, Record{Hash: hash}); err != nil {
			log.Warningf("failed to persist build database: %s", err)
		}
		return combined, nil
	}

	sched := &Scheduler{
		Graph:       graph,
		Parallelism: parallelism,
		MaxFailures: opts.MaxFailures,
		SortInput:   opts.SortInput,
		Runner:      runner,
	}
	if tracer != nil {
		sched.OnStart = func(worker int, node *plan.Node) { tracer.Begin(node.Key, worker) }
		sched.OnDone = func(worker int, node *plan.Node, skipped bool, err error) { tracer.End(node.Key, worker, err) }
	}

	runErr := sched.Run(ctx)

	if err := sink.Flush(opts.TargetRoot, opts.Mode); err != nil {
		log.Warningf("failed to flush diagnostics: %s", err)
	}
	if tracer != nil {
		if err := tracer.Write(filepath.Join(opts.TargetRoot, "trace.json")); err != nil {
			log.Warningf("failed to write trace: %s", err)
		}
	}

	result := &Result{Diagnostics: sink, Tracer: tracer, Resources: SampleResources()}
	if runErr != nil {
		result.Failed = 1
		return result, runErr
	}
	return result, nil
}

// outputsExist reports whether every declared output path is present on
// disk (spec.md 4.5 via the teacher's needsBuilding: a hash match alone
// isn't enough if the user has deleted an output since the last build).
func outputsExist(outputs []string) bool {
	for _, out := range outputs {
		if _, err := os.Stat(out); err != nil {
			return false
		}
	}
	return true
}
