package testorch

import (
	"fmt"
	"os"
)

// RunFunc executes one test pass (a fresh, fully-serialized build-then-run,
// per spec.md 5, "the test auto-update loop releases all workers between
// iterations") and returns every outcome observed.
type RunFunc func() ([]Outcome, error)

// IndentOfFunc returns the indentation column of a failure's call site,
// used only to align multiline literal patches (spec.md 4.6, step 5).
type IndentOfFunc func(ExpectFailure) int

// DefaultMaxUpdateIterations is the auto-update loop's default iteration
// limit before it gives up and reports the last diff (spec.md 4.6, step 6:
// "default configurable, e.g., 256").
const DefaultMaxUpdateIterations = 256

// UpdateResult summarizes one auto-update loop invocation.
type UpdateResult struct {
	Iterations int
	Results    Results
	// Exhausted is true when the loop hit maxIterations with failures still
	// outstanding, rather than reaching a fixpoint of all-passing.
	Exhausted bool
	// LastDiff is the diff rendered for the first still-failing expect-test
	// site when Exhausted, for the user-visible failure report.
	LastDiff string
}

// RunAutoUpdate drives the expect-test fixpoint loop (spec.md 4.6, step 6):
// run, collect EXPECT_FAILED outcomes, patch every affected file in one
// pass, re-run, repeat until no EXPECT_FAILED outcomes remain or
// maxIterations is exhausted.
func RunAutoUpdate(run RunFunc, indentOf IndentOfFunc, maxIterations int) (UpdateResult, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxUpdateIterations
	}

	var last Results
	for iter := 1; iter <= maxIterations; iter++ {
		outcomes, err := run()
		if err != nil {
			return UpdateResult{Iterations: iter}, err
		}

		last = Results{}
		var failures []ExpectFailure
		for _, o := range outcomes {
			last.Add(o)
			if o.Status == StatusExpectFailed && o.Expect != nil {
				failures = append(failures, *o.Expect)
			}
		}

		if len(failures) == 0 {
			return UpdateResult{Iterations: iter, Results: last}, nil
		}

		if err := applyAll(failures, indentOf); err != nil {
			return UpdateResult{Iterations: iter, Results: last}, err
		}
	}

	diffText := ""
	for _, f := range last.FailedOutcomes {
		if f.Expect != nil {
			patch := f.Expect.BuildPatch(indentOf(*f.Expect))
			diffText, _ = RenderDiff(patch.Path, f.Expect.Expect, f.Expect.Actual)
			break
		}
	}
	return UpdateResult{
		Iterations: maxIterations,
		Results:    last,
		Exhausted:  true,
		LastDiff:   diffText,
	}, fmt.Errorf("expect-test auto-update did not converge after %d iterations", maxIterations)
}

// applyAll groups failures by file, applies every file's patches in one
// left-to-right pass, and rewrites the file in place.
func applyAll(failures []ExpectFailure, indentOf IndentOfFunc) error {
	byFile := GroupAndSortByFile(failures, indentOf)
	for path, patches := range byFile {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rewritten, err := ApplyPatches(string(content), patches)
		if err != nil {
			return fmt.Errorf("patching %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(rewritten), 0644); err != nil {
			return err
		}
	}
	return nil
}
