package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/moonbitlang/moon/src/core"
)

// Resolver runs Minimum Version Selection over a root module manifest and a
// Registry backend, producing a resolved module graph (spec.md 4.1).
type Resolver struct {
	registry Registry
	gitHome  string
}

// New constructs a Resolver. gitHome is the root directory git checkouts are
// expected to already be materialized under (see GitCheckoutPath);
// materializing them is a collaborator outside this module's scope.
func New(registry Registry, gitHome string) *Resolver {
	return &Resolver{registry: registry, gitHome: gitHome}
}

// pendingEdge defers graph-edge construction for registry requirements until
// every compatibility set's final version has been selected.
type pendingEdge struct {
	from      core.ModuleID
	alias     string
	toLocal   *core.ModuleID // set for path/git deps, whose identity is already exact
	name      string         // set for registry deps
	compatKey string
}

type resolveState struct {
	r    *Resolver
	errs errorCollector

	arena *core.Arena
	graph *core.ModuleGraph

	selected     map[string]map[string]*semver.Version // name -> compatKey -> chosen floor
	fetchedExact map[string]*core.ModuleManifest        // "name@version" already fetched+recursed
	visitedLocal map[core.ModuleID]bool
	pendingEdges []pendingEdge
}

// Resolve builds the module graph rooted at the given manifest. root.Root
// must already be set to the root module's canonical filesystem path.
func (r *Resolver) Resolve(root *core.ModuleManifest) (*core.ModuleGraph, *core.Arena, error) {
	if err := validateModuleName(root.Name); err != nil {
		return nil, nil, err
	}
	rootID := core.ModuleID{Name: root.Name, Version: root.Version, Source: core.SourceLocal, Disambiguator: root.Root}

	st := &resolveState{
		r:            r,
		arena:        core.NewArena(),
		graph:        core.NewModuleGraph(rootID),
		selected:     map[string]map[string]*semver.Version{},
		fetchedExact: map[string]*core.ModuleManifest{},
		visitedLocal: map[core.ModuleID]bool{},
	}

	rootModule := &core.Module{ID: rootID, Manifest: root}
	st.arena.PutModule(rootModule)
	st.visitedLocal[rootID] = true

	st.processManifest(root, rootID)

	st.finalizeEdges()

	if err := st.errs.result(); err != nil {
		return nil, nil, err
	}

	if cycle := st.graph.DetectCycle(); cycle != nil {
		return nil, nil, fmt.Errorf("cyclic module dependency: %v", cycle)
	}

	return st.graph, st.arena, nil
}

// processManifest walks one manifest's deps, recursing into path/git
// dependencies immediately (their identity is exact) and registering
// registry dependencies against the running MVS selection.
func (st *resolveState) processManifest(m *core.ModuleManifest, id core.ModuleID) {
	for _, dep := range append(append([]core.DependencyRequirement{}, m.Deps...), m.BinDeps...) {
		st.processDep(dep, id, m.Root)
	}
}

func (st *resolveState) processDep(dep core.DependencyRequirement, requirerID core.ModuleID, requirerRoot string) {
	if err := validateModuleName(dep.Name); err != nil {
		st.errs.add(err)
		return
	}
	if requirerID.Source == core.SourceRegistry && (dep.Path != "" || dep.Git != nil) {
		st.errs.add(fmt.Errorf("module %s: registry modules may only depend on registry modules (dependency %q declares a path/git override)", requirerID, dep.Name))
		return
	}

	switch {
	case dep.Path != "":
		st.resolveLocalDep(dep, requirerID, requirerRoot)
	case dep.Git != nil:
		st.resolveGitDep(dep, requirerID)
	default:
		st.resolveRegistryDep(dep, requirerID)
	}
}

func (st *resolveState) resolveLocalDep(dep core.DependencyRequirement, requirerID core.ModuleID, requirerRoot string) {
	abs := filepath.Join(requirerRoot, dep.Path)
	manifest, err := readManifestFromDir(abs)
	if err != nil {
		st.errs.add(fmt.Errorf("module %s: path dependency %q (%s): %w", requirerID, dep.Name, abs, err))
		return
	}
	manifest.Root = abs
	if dep.Range != "" {
		if err := st.checkVersionSatisfies(dep, manifest); err != nil {
			st.errs.add(err)
			return
		}
	}
	id := core.ModuleID{Name: dep.Name, Version: manifest.Version, Source: core.SourceLocal, Disambiguator: abs}
	st.addLocalEdge(requirerID, id, dep.Name)
	if st.visitedLocal[id] {
		return
	}
	st.visitedLocal[id] = true
	st.arena.PutModule(&core.Module{ID: id, Manifest: manifest})
	st.processManifest(manifest, id)
}

func (st *resolveState) resolveGitDep(dep core.DependencyRequirement, requirerID core.ModuleID) {
	if err := dep.Git.Validate(); err != nil {
		st.errs.add(fmt.Errorf("module %s: git dependency %q: %w", requirerID, dep.Name, err))
		return
	}
	checkoutPath, err := GitCheckoutPath(st.r.gitHome, *dep.Git)
	if err != nil {
		st.errs.add(fmt.Errorf("module %s: git dependency %q: %w", requirerID, dep.Name, err))
		return
	}
	manifest, err := readManifestFromDir(checkoutPath)
	if err != nil {
		st.errs.add(fmt.Errorf("module %s: git dependency %q (%s): %w", requirerID, dep.Name, checkoutPath, err))
		return
	}
	manifest.Root = checkoutPath
	if dep.Range != "" {
		if err := st.checkVersionSatisfies(dep, manifest); err != nil {
			st.errs.add(err)
			return
		}
	}
	id := core.ModuleID{Name: dep.Name, Version: manifest.Version, Source: core.SourceGit, Disambiguator: checkoutPath}
	st.addLocalEdge(requirerID, id, dep.Name)
	if st.visitedLocal[id] {
		return
	}
	st.visitedLocal[id] = true
	st.arena.PutModule(&core.Module{ID: id, Manifest: manifest})
	st.processManifest(manifest, id)
}

// checkVersionSatisfies enforces spec.md 4.1's "version mismatch between
// path-override requirement and the manifest it points to" error.
func (st *resolveState) checkVersionSatisfies(dep core.DependencyRequirement, manifest *core.ModuleManifest) error {
	constraint, err := core.ParseConstraint(dep.Range)
	if err != nil {
		return fmt.Errorf("dependency %q: %w", dep.Name, err)
	}
	v, err := semver.NewVersion(manifest.Version)
	if err != nil {
		return fmt.Errorf("dependency %q: manifest at %s has invalid version %q: %w", dep.Name, manifest.Root, manifest.Version, err)
	}
	if !constraint.Satisfies(v) {
		return fmt.Errorf("dependency %q: requirement %s is not satisfied by the manifest at %s (version %s)", dep.Name, dep.Range, manifest.Root, manifest.Version)
	}
	return nil
}

func (st *resolveState) addLocalEdge(from, to core.ModuleID, alias string) {
	st.pendingEdges = append(st.pendingEdges, pendingEdge{from: from, alias: alias, toLocal: &to})
}

// resolveRegistryDep applies Minimum Version Selection: the final selected
// version of a compatibility set is the maximum of every requirer's floor
// (spec.md 4.1). Each requirement's floor manifest is fetched so its own
// transitive deps are discovered - the classic non-iterative MVS trick of
// reading a version's manifest once, at the exact version it was required
// at, rather than re-scanning at the eventual winning version.
func (st *resolveState) resolveRegistryDep(dep core.DependencyRequirement, requirerID core.ModuleID) {
	if dep.Range == "" {
		st.errs.add(fmt.Errorf("module %s: dependency %q has no version requirement and no path/git override", requirerID, dep.Name))
		return
	}
	constraint, err := core.ParseConstraint(dep.Range)
	if err != nil {
		st.errs.add(fmt.Errorf("module %s: dependency %q: %w", requirerID, dep.Name, err))
		return
	}
	compatKey := constraint.CompatibilityKey()
	floor := constraint.Floor()

	sets, ok := st.selected[dep.Name]
	if !ok {
		sets = map[string]*semver.Version{}
		st.selected[dep.Name] = sets
	}
	if existing, ok := sets[compatKey]; !ok || floor.GreaterThan(existing) {
		sets[compatKey] = floor
	}

	st.pendingEdges = append(st.pendingEdges, pendingEdge{from: requirerID, alias: dep.Name, name: dep.Name, compatKey: compatKey})

	reqKey := dep.Name + "@" + floor.String()
	if _, ok := st.fetchedExact[reqKey]; ok {
		return
	}
	manifest, err := st.fetchRegistryManifest(dep.Name, floor)
	if err != nil {
		st.errs.add(fmt.Errorf("module %s: dependency %q: %w", requirerID, dep.Name, err))
		return
	}
	st.fetchedExact[reqKey] = manifest
	id := core.ModuleID{Name: dep.Name, Version: floor.String(), Source: core.SourceRegistry, Disambiguator: "registry"}
	st.processManifest(manifest, id)
}

func (st *resolveState) fetchRegistryManifest(name string, version *semver.Version) (*core.ModuleManifest, error) {
	data, err := st.r.registry.Manifest(context.Background(), name, version)
	if err != nil {
		return nil, err
	}
	manifest, err := parseModuleManifest(data, "registry")
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w", name, version, err)
	}
	return manifest, nil
}

// finalizeEdges resolves every deferred registry edge against the final MVS
// selection and writes it into the module graph. Per the classic non-
// iterative MVS trick, the winning version of every compatibility set is
// always one of the floors already fetched and cached during the scan, so
// this never needs to hit the registry again.
func (st *resolveState) finalizeEdges() {
	registered := map[core.ModuleID]bool{}
	for _, e := range st.pendingEdges {
		if e.toLocal != nil {
			st.graph.AddEdge(e.from, *e.toLocal, e.alias)
			continue
		}
		version := st.selected[e.name][e.compatKey]
		id := core.ModuleID{Name: e.name, Version: version.String(), Source: core.SourceRegistry, Disambiguator: "registry"}
		if !registered[id] {
			manifest, ok := st.fetchedExact[e.name+"@"+version.String()]
			if !ok {
				st.errs.add(fmt.Errorf("internal error: selected version %s of %q was never fetched during resolution", version, e.name))
				continue
			}
			st.arena.PutModule(&core.Module{ID: id, Manifest: manifest})
			registered[id] = true
		}
		st.graph.AddEdge(e.from, id, e.alias)
	}
}

func parseModuleManifest(data []byte, root string) (*core.ModuleManifest, error) {
	m := &core.ModuleManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("malformed moon.mod.json: %w", err)
	}
	if root != "" {
		m.Root = root
	}
	return m, nil
}
