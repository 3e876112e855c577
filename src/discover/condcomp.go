// Conditional file selection: classifying source files by filename suffix
// into regular, per-backend, whitebox-test, blackbox-test and doctest
// categories, and then filtering a package's classified files for a given
// build target (backend, opt level, test kind) (spec.md 4.2, "Conditional
// file selection").
package discover

import (
	"strings"

	"github.com/moonbitlang/moon/src/core"
)

// Backend names recognised in filename suffixes and manifest overrides (spec.md 6).
const (
	BackendWasm   = "wasm"
	BackendWasmGC = "wasm-gc"
	BackendJS     = "js"
	BackendNative = "native"
	BackendLLVM   = "llvm"
)

var knownBackends = map[string]bool{
	BackendWasm: true, BackendWasmGC: true, BackendJS: true, BackendNative: true, BackendLLVM: true,
}

// classification is the per-file classification result.
type classification struct {
	kind    core.TargetKind // TargetSource, TargetWhiteboxTest or TargetBlackboxTest
	backend string          // "" if the file applies to all backends
	isMD    bool            // true for .mbt.md doctest files
}

// classify determines which category a single filename belongs to, returning
// ok=false for files that aren't recognized MoonBit source suffixes at all.
func classify(name string) (classification, bool) {
	switch {
	case strings.HasSuffix(name, ".mbt.md"):
		return classification{kind: core.TargetBlackboxTest, isMD: true}, true
	case strings.HasSuffix(name, "_wbtest.mbt"):
		return classification{kind: core.TargetWhiteboxTest}, true
	case strings.HasSuffix(name, "_test.mbt"):
		return classification{kind: core.TargetBlackboxTest}, true
	case strings.HasSuffix(name, ".mbt"):
		stem := strings.TrimSuffix(name, ".mbt")
		if backend, rest, ok := cutBackendSuffix(stem, "_wbtest"); ok {
			_ = rest
			return classification{kind: core.TargetWhiteboxTest, backend: backend}, true
		}
		if backend, rest, ok := cutBackendSuffix(stem, "_test"); ok {
			_ = rest
			return classification{kind: core.TargetBlackboxTest, backend: backend}, true
		}
		if backend, ok := backendInfix(stem); ok {
			return classification{kind: core.TargetSource, backend: backend}, true
		}
		return classification{kind: core.TargetSource}, true
	}
	return classification{}, false
}

// cutBackendSuffix handles "<name>_wbtest.<backend>"/"<name>_test.<backend>" style stems,
// i.e. "_wbtest.<backend>.mbt" / "_test.<backend>.mbt" after the ".mbt" suffix is stripped.
func cutBackendSuffix(stem, marker string) (backend, rest string, ok bool) {
	idx := strings.LastIndex(stem, ".")
	if idx < 0 || !knownBackends[stem[idx+1:]] || !strings.HasSuffix(stem[:idx], marker) {
		return "", stem, false
	}
	return stem[idx+1:], strings.TrimSuffix(stem[:idx], marker), true
}

// backendInfix detects the "<name>.<backend>" infix pattern for plain source files.
func backendInfix(stem string) (string, bool) {
	idx := strings.LastIndex(stem, ".")
	if idx < 0 {
		return "", false
	}
	candidate := stem[idx+1:]
	return candidate, knownBackends[candidate]
}

// Included reports whether a classified file participates in a build target with the
// given backend and test kind (opt level never excludes a file by suffix, per the table
// in spec.md 4.2; it only affects flags during lowering).
func (c classification) Included(backend string, kind core.TargetKind) bool {
	if c.backend != "" && c.backend != backend {
		return false
	}
	switch c.kind {
	case core.TargetSource:
		return kind == core.TargetSource || kind == core.TargetWhiteboxTest || kind == core.TargetInlineTest
	case core.TargetWhiteboxTest:
		return kind == core.TargetWhiteboxTest
	case core.TargetBlackboxTest:
		return kind == core.TargetBlackboxTest
	}
	return false
}

// SelectFiles filters a package's classified sources down to those participating in a
// build target with the given backend and kind. Manifest-declared target overrides
// (spec.md 4.2, "Files carrying explicit backend/optlevel arrays") take precedence over
// pattern-based inference for files they name.
func SelectFiles(pkg *core.Package, backend string, kind core.TargetKind) []string {
	overrides := map[string]*core.TargetOverride{}
	for i := range pkg.Manifest.Targets {
		o := &pkg.Manifest.Targets[i]
		overrides[o.File] = o
	}

	var all []string
	all = append(all, pkg.Sources.Regular...)
	all = append(all, pkg.Sources.Whitebox...)
	all = append(all, pkg.Sources.Blackbox...)

	var out []string
	for _, f := range all {
		if o, ok := overrides[f]; ok {
			if len(o.Backend) > 0 && !containsString(o.Backend, backend) {
				continue
			}
			c, _ := classify(f)
			if len(o.Backend) > 0 {
				c.backend = ""
			}
			if !c.Included(backend, kind) {
				continue
			}
			out = append(out, f)
			continue
		}
		c, ok := classify(f)
		if !ok {
			continue
		}
		if c.Included(backend, kind) {
			out = append(out, f)
		}
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// SelectDoctestFiles returns a blackbox test target's doctest-only inputs: its own
// package's non-test sources, included as a separate list from regular inputs
// (spec.md 4.2, last sentence).
func SelectDoctestFiles(pkg *core.Package, backend string) []string {
	return SelectFiles(pkg, backend, core.TargetSource)
}
