// Package discover implements package discovery and conditional compilation
// (spec.md 4.2): walking a module's source tree, parsing per-directory
// manifests, classifying source files, and building the inter-package
// dependency graph with import aliases.
package discover

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/moonbitlang/moon/src/cli/logging"
	"github.com/moonbitlang/moon/src/core"
)

var log = logging.Log

// Discoverer walks modules and populates an Arena and PackageGraph.
type Discoverer struct {
	arena *core.Arena
	graph *core.PackageGraph
}

// New constructs a Discoverer writing into the given arena and graph.
func New(arena *core.Arena, graph *core.PackageGraph) *Discoverer {
	return &Discoverer{arena: arena, graph: graph}
}

// DiscoverModule walks a single resolved module's source tree and registers every
// package it finds into the arena (spec.md 4.2, "Discovery"). Errors from individual
// packages are accumulated so discovery can report as many as possible in one pass.
func (d *Discoverer) DiscoverModule(mod *core.Module) error {
	root := mod.Manifest.SourceRoot()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("module %s: source root %s does not exist", mod.ID, root)
	}

	var errs *multierror.Error
	err := walkPackageDirs(root, func(dir string) error {
		pkg, err := d.discoverPackage(mod, root, dir)
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		d.arena.PutPackage(pkg)
		d.graph.AddTarget(core.BuildTarget{Package: pkg, Kind: core.TargetSource})
		return nil
	})
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// discoverPackage parses one package directory's manifest and classifies its files.
func (d *Discoverer) discoverPackage(mod *core.Module, srcRoot, dir string) (*core.Package, error) {
	rel, err := filepath.Rel(srcRoot, dir)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	fqn := mod.ID.Name
	if rel != "." {
		fqn = path.Join(mod.ID.Name, rel)
	}

	manifest, err := parseManifest(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", fqn, err)
	}

	pkg := core.NewPackage(fqn, mod.ID, dir, manifest)
	if err := classifyDir(pkg, dir); err != nil {
		return nil, fmt.Errorf("package %s: %w", fqn, err)
	}
	return pkg, nil
}

func parseManifest(file string) (*core.PackageManifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	m := &core.PackageManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	if m.Virtual != nil {
		m.Virtual.HasInterface = m.Virtual.Interface != ""
	}
	for backend, cfg := range m.Link {
		cfg.Backend = backend
		m.Link[backend] = cfg
	}
	return m, nil
}

// classifyDir lists dir's immediate entries (non-recursive: packages don't inherit
// files from subdirectories, those are separate packages) and sorts files into the
// package's SourceFiles categories plus C stubs.
func classifyDir(pkg *core.Package, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".c"):
			pkg.CStubs = append(pkg.CStubs, name)
			continue
		}
		c, ok := classify(name)
		if !ok {
			continue
		}
		switch {
		case c.isMD:
			pkg.Sources.Doctest = append(pkg.Sources.Doctest, name)
		case c.kind == core.TargetWhiteboxTest:
			pkg.Sources.Whitebox = append(pkg.Sources.Whitebox, name)
		case c.kind == core.TargetBlackboxTest:
			pkg.Sources.Blackbox = append(pkg.Sources.Blackbox, name)
		default:
			pkg.Sources.Regular = append(pkg.Sources.Regular, name)
		}
	}
	return nil
}
