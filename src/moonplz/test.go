package moonplz

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/moonbitlang/moon/src/discover"
	"github.com/moonbitlang/moon/src/engine"
	"github.com/moonbitlang/moon/src/plan"
	"github.com/moonbitlang/moon/src/process"
	"github.com/moonbitlang/moon/src/testorch"
)

// TestInvocation gathers `moon test`'s own flags (spec.md 6) on top of the
// common Invocation set.
type TestInvocation struct {
	Invocation
	Filter        testorch.Filter
	Update        bool
	MaxIterations int
}

// Test implements `moon test`: builds every matching test executable,
// executes it and parses its JSON-line protocol output into outcomes, and
// (with -u) drives the expect-test auto-update loop to a fixpoint
// (spec.md 4.6).
func (p *Pipeline) Test(ctx context.Context, pkgFilter []string, inv TestInvocation) (testorch.Results, error) {
	run := func() ([]testorch.Outcome, error) {
		return p.runTestsOnce(ctx, pkgFilter, inv)
	}

	if !inv.Update {
		outcomes, err := run()
		if err != nil {
			return testorch.Results{}, err
		}
		var results testorch.Results
		for _, o := range outcomes {
			results.Add(o)
		}
		return results, nil
	}

	maxIter := inv.MaxIterations
	if maxIter == 0 {
		maxIter = p.Config.Moon.IterationLimit
	}
	update, err := testorch.RunAutoUpdate(run, indentOf, maxIter)
	return update.Results, err
}

// indentOf returns the indentation (leading spaces) of the source line
// holding the failure's call site; the auto-update literal renderer aligns
// multiline literals two spaces past it.
func indentOf(f testorch.ExpectFailure) int {
	if f.Loc == nil {
		return 0
	}
	content, err := os.ReadFile(f.Loc.Path)
	if err != nil || f.Loc.Start > len(content) {
		return 0
	}
	lineStart := bytes.LastIndexByte(content[:f.Loc.Start], '\n') + 1
	indent := 0
	for lineStart+indent < f.Loc.Start && content[lineStart+indent] == ' ' {
		indent++
	}
	return indent
}

func (p *Pipeline) runTestsOnce(ctx context.Context, pkgFilter []string, inv TestInvocation) ([]testorch.Outcome, error) {
	backend := inv.backend()
	goals, targets, err := p.TestGoals(pkgFilter, backend, inv.Debug)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, nil
	}

	ctor := plan.New(p.Arena, p.Packages, backend, inv.Debug)
	graph, err := ctor.Construct(goals)
	if err != nil {
		return nil, fmt.Errorf("constructing test plan: %w", err)
	}

	lowerer := p.lowerer(inv.Invocation)
	lowerer.Options.Coverage = inv.Coverage

	exec := process.New()
	result, err := engine.Run(ctx, graph, lowerer, exec, p.engineOptions("test", inv.Invocation))
	if err != nil {
		return nil, err
	}
	if result.Failed > 0 {
		return nil, fmt.Errorf("building test executables failed")
	}

	var outcomes []testorch.Outcome
	for _, target := range targets {
		node := graph.Node(target.Goal)
		if node == nil {
			continue
		}
		cmd, err := lowerer.Lower(node)
		if err != nil {
			return nil, fmt.Errorf("lowering %s: %w", target.Goal, err)
		}
		if len(cmd.Outputs) == 0 {
			continue
		}
		executable := cmd.Outputs[0]

		got, runErr := p.runTestExecutable(ctx, exec, backend, executable, target, inv)
		if runErr != nil {
			outcomes = append(outcomes, testorch.Outcome{
				Package: target.Package.FQN,
				Status:  testorch.StatusRuntimeError,
				Message: runErr.Error(),
			})
			continue
		}
		outcomes = append(outcomes, got...)
	}
	return outcomes, nil
}

// runTestExecutable spawns one test executable with the runner appropriate
// to backend (spec.md 6's backend/runner table), passing `<package> <file>
// <index>` per selected index (spec.md 4.6, "Execution"), and parses its
// stdout as one JSON outcome per line.
func (p *Pipeline) runTestExecutable(ctx context.Context, exec *process.Executor, backend, executable string, target testTarget, inv TestInvocation) ([]testorch.Outcome, error) {
	argv := runnerArgv(backend, executable)
	argv = append(argv, target.Package.FQN)
	if inv.Filter.File != "" {
		argv = append(argv, inv.Filter.File)
	}
	if inv.Filter.HasIndex() {
		argv = append(argv, strconv.Itoa(inv.Filter.Index))
	}

	stdout, _, err := exec.Run(ctx, "", nil, argv)
	if err != nil {
		return nil, err
	}
	return parseOutcomes(target.Package.FQN, stdout)
}

// runnerArgv returns the argv prefix that invokes executable through the
// appropriate backend runner.
func runnerArgv(backend, executable string) []string {
	switch backend {
	case discover.BackendJS:
		return []string{"node", executable}
	case discover.BackendNative, discover.BackendLLVM:
		return []string{executable}
	default: // wasm, wasm-gc: embedded wasm runner
		return []string{"moonrun", executable}
	}
}

// parseOutcomes parses the test harness's one-JSON-line-per-outcome
// protocol (spec.md 4.6), defaulting Package when a line omits it.
func parseOutcomes(defaultPackage string, stdout []byte) ([]testorch.Outcome, error) {
	var outcomes []testorch.Outcome
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var o testorch.Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			outcomes = append(outcomes, testorch.Outcome{
				Package: defaultPackage,
				Status:  "MALFORMED",
				Message: fmt.Sprintf("malformed test protocol line: %s", err),
			})
			continue
		}
		if o.Package == "" {
			o.Package = defaultPackage
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, scanner.Err()
}
