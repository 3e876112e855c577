// Package core holds the shared data model for the moon build orchestration
// engine: module and package identity, manifests, and the dependency graphs
// built over them. Modules and packages are immutable for the duration of a
// build invocation (spec.md 3, "Lifecycle"); they are stored once in an
// Arena and referenced by id everywhere else (spec.md 9, "Shared ownership
// of manifests").
package core

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// SourceFiles groups a package's source files by the categories discovery
// classifies them into (spec.md 3, "Package").
type SourceFiles struct {
	Regular    []string // plain .mbt, or .<backend>.mbt
	Whitebox   []string // *_wbtest.mbt, *_wbtest.<backend>.mbt
	Blackbox   []string // *_test.mbt, *_test.<backend>.mbt
	Doctest    []string // *.mbt.md
}

// Package is a resolved package manifest plus everything discovery computed
// about it (spec.md 3, "Package").
type Package struct {
	// FQN is the fully-qualified name: "<module-name>/<package-path>".
	FQN string
	// ModuleID identifies the module this package belongs to.
	ModuleID ModuleID
	// Root is the canonical filesystem root of this package.
	Root string
	// Manifest is the package's parsed moon.pkg.json; never nil.
	Manifest *PackageManifest
	// Sources is the categorized file lists.
	Sources SourceFiles
	// CStubs lists C source files found in this package (native backends).
	CStubs []string

	mutex sync.RWMutex
	// aliases maps the short import alias used in this package to the
	// target FQN it resolves to (import resolution, spec.md 4.2).
	aliases map[string]string
}

// NewPackage constructs an empty package ready for discovery to populate.
func NewPackage(fqn string, mod ModuleID, root string, manifest *PackageManifest) *Package {
	return &Package{
		FQN:      fqn,
		ModuleID: mod,
		Root:     root,
		Manifest: manifest,
		aliases:  map[string]string{},
	}
}

// IsInternal reports whether this package's path contains a component named
// "internal" (spec.md 4.2, "Internal-package restriction").
func (p *Package) IsInternal() (internalRootFQN string, ok bool) {
	parts := strings.Split(p.FQN, "/")
	for i, part := range parts {
		if part == "internal" {
			return strings.Join(parts[:i], "/"), true
		}
	}
	return "", false
}

// VisibleTo reports whether this package (if internal) may be imported by a
// package with the given FQN, per spec.md 4.2: only packages inside the
// subtree rooted at the parent of the internal directory, in the same module.
func (p *Package) VisibleTo(importerFQN string, importerModule ModuleID) error {
	parent, ok := p.IsInternal()
	if !ok {
		return nil
	}
	if importerModule != p.ModuleID {
		return fmt.Errorf("package %s is internal to module %s and cannot be imported from module %s", p.FQN, p.ModuleID, importerModule)
	}
	if importerFQN != parent && !strings.HasPrefix(importerFQN, parent+"/") {
		return fmt.Errorf("package %s is internal; only packages under %s may import it (importer: %s)", p.FQN, parent, importerFQN)
	}
	return nil
}

// AddAlias registers the short alias a package uses to refer to one of its
// imports. Duplicate aliases within one package are fatal (spec.md 4.2).
func (p *Package) AddAlias(alias, targetFQN string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if existing, ok := p.aliases[alias]; ok && existing != targetFQN {
		return fmt.Errorf("duplicate import alias %q in package %s (already bound to %s, cannot also bind to %s)", alias, p.FQN, existing, targetFQN)
	}
	p.aliases[alias] = targetFQN
	return nil
}

// Alias looks up the target FQN bound to a short alias.
func (p *Package) Alias(alias string) (string, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	target, ok := p.aliases[alias]
	return target, ok
}

// DefaultAlias returns the default short alias for an import path: its last
// path component, unless the caller supplied an override.
func DefaultAlias(importPath string) string {
	return path.Base(importPath)
}

// HasWhitebox reports whether this package has any whitebox test files.
func (p *Package) HasWhitebox() bool { return len(p.Sources.Whitebox) > 0 }

// HasBlackbox reports whether this package has any blackbox test files (or doctests).
func (p *Package) HasBlackbox() bool {
	return len(p.Sources.Blackbox) > 0 || len(p.Sources.Doctest) > 0
}

// HasInlineTests reports whether the package's own regular sources might
// contain inline test blocks; discovery can't know this without invoking the
// compiler's test-info subcommand (spec.md 4.4, "Test driver generation"),
// so this simply reports that a source target exists to check against.
func (p *Package) HasInlineTests() bool { return len(p.Sources.Regular) > 0 }

// TargetKind enumerates the five build-target kinds over a package
// (spec.md 3, "Build target").
type TargetKind int

const (
	TargetSource TargetKind = iota
	TargetInlineTest
	TargetWhiteboxTest
	TargetBlackboxTest
	TargetSubpackage
)

func (k TargetKind) String() string {
	switch k {
	case TargetSource:
		return "source"
	case TargetInlineTest:
		return "inline-test"
	case TargetWhiteboxTest:
		return "whitebox-test"
	case TargetBlackboxTest:
		return "blackbox-test"
	case TargetSubpackage:
		return "subpackage"
	}
	return "unknown"
}

// BuildTarget is the pair (package, target kind) that identifies one of a
// package's build targets (spec.md 3).
type BuildTarget struct {
	Package *Package
	Kind    TargetKind
}

// String renders a target as "<fqn>:<kind>", used as a stable map key and
// for diagnostics.
func (t BuildTarget) String() string {
	return fmt.Sprintf("%s:%s", t.Package.FQN, t.Kind)
}

// Key is a comparable identifier safe to use as a map key (BuildTarget
// itself embeds a pointer, which is fine for equality but not for
// deterministic iteration order).
type TargetKey struct {
	FQN  string
	Kind TargetKind
}

func (t BuildTarget) Key() TargetKey { return TargetKey{FQN: t.Package.FQN, Kind: t.Kind} }

// DepEdge is one labelled edge in the package dependency graph (spec.md 3,
// "Package dependency graph"): the short import alias used at that site.
type DepEdge struct {
	To    BuildTarget
	Alias string
}

// PackageGraph is the directed graph over build targets described in
// spec.md 3. Edges are derived, not stored twice: the source target depends
// on source targets of imports; test targets additionally depend on
// test-imports and their own package's source target (replaced, for
// whitebox tests, by the whitebox target itself in link closures - see
// src/plan for that substitution, which is a link-time concern rather than
// a graph-edge concern).
type PackageGraph struct {
	mutex   sync.RWMutex
	targets map[TargetKey]BuildTarget
	edges   map[TargetKey][]DepEdge
}

// NewPackageGraph constructs an empty graph.
func NewPackageGraph() *PackageGraph {
	return &PackageGraph{
		targets: map[TargetKey]BuildTarget{},
		edges:   map[TargetKey][]DepEdge{},
	}
}

// AddTarget registers a target in the graph if not already present.
func (g *PackageGraph) AddTarget(t BuildTarget) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.targets[t.Key()] = t
}

// AddEdge records that `from` depends on `to` via the given import alias.
func (g *PackageGraph) AddEdge(from BuildTarget, to BuildTarget, alias string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.targets[from.Key()] = from
	g.targets[to.Key()] = to
	for _, e := range g.edges[from.Key()] {
		if e.To.Key() == to.Key() && e.Alias == alias {
			return // idempotent
		}
	}
	g.edges[from.Key()] = append(g.edges[from.Key()], DepEdge{To: to, Alias: alias})
}

// Deps returns the labelled dependency edges of a target, in a deterministic
// (alias-sorted) order.
func (g *PackageGraph) Deps(t BuildTarget) []DepEdge {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	edges := append([]DepEdge(nil), g.edges[t.Key()]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Alias < edges[j].Alias })
	return edges
}

// Target returns the registered target for a key, if any.
func (g *PackageGraph) Target(k TargetKey) (BuildTarget, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	t, ok := g.targets[k]
	return t, ok
}

// DetectCycle walks the graph with three-colour DFS (spec.md 9, "Cyclic
// graphs") and returns the first cycle found, or nil if the graph is a DAG.
func (g *PackageGraph) DetectCycle() []TargetKey {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[TargetKey]int{}
	var stack []TargetKey
	var cycle []TargetKey

	var visit func(k TargetKey) bool
	visit = func(k TargetKey) bool {
		color[k] = grey
		stack = append(stack, k)
		t := g.targets[k]
		for _, e := range g.edges[k] {
			dk := e.To.Key()
			switch color[dk] {
			case grey:
				// Found the cycle: everything on the stack from dk's first
				// occurrence onward.
				for i, s := range stack {
					if s == dk {
						cycle = append([]TargetKey(nil), stack[i:]...)
						cycle = append(cycle, dk)
						return true
					}
				}
			case white:
				if visit(dk) {
					return true
				}
			}
		}
		_ = t
		stack = stack[:len(stack)-1]
		color[k] = black
		return false
	}

	keys := make([]TargetKey, 0, len(g.targets))
	for k := range g.targets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].FQN != keys[j].FQN {
			return keys[i].FQN < keys[j].FQN
		}
		return keys[i].Kind < keys[j].Kind
	})
	for _, k := range keys {
		if color[k] == white {
			if visit(k) {
				return cycle
			}
		}
	}
	return nil
}
