package discover

import (
	"fmt"
	"path"

	"github.com/hashicorp/go-multierror"

	"github.com/moonbitlang/moon/src/core"
)

// ResolveImports wires up every discovered package's import list into dependency edges
// in the graph, resolving aliases and enforcing the internal-package restriction
// (spec.md 4.2, "Import resolution" and "Internal-package restriction"). It must run
// after every module in the resolved graph has been discovered, since an import may
// cross module boundaries.
func (d *Discoverer) ResolveImports() error {
	var errs *multierror.Error
	for _, pkg := range d.arena.Packages() {
		if err := d.resolvePackageImports(pkg); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (d *Discoverer) resolvePackageImports(pkg *core.Package) error {
	var errs *multierror.Error
	resolve := func(imports []core.PackageImport, kind core.TargetKind) {
		from := core.BuildTarget{Package: pkg, Kind: kind}
		for _, imp := range imports {
			target, err := d.resolveImportPath(pkg, imp)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			alias := imp.Alias
			if alias == "" {
				alias = core.DefaultAlias(imp.Path)
			}
			if err := pkg.AddAlias(alias, target.FQN); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if err := target.VisibleTo(pkg.FQN, pkg.ModuleID); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			d.graph.AddEdge(from, core.BuildTarget{Package: target, Kind: core.TargetSource}, alias)
		}
	}
	resolve(pkg.Manifest.Import, core.TargetSource)
	if pkg.HasWhitebox() {
		resolve(pkg.Manifest.Import, core.TargetWhiteboxTest)
		resolve(pkg.Manifest.WBTestImport, core.TargetWhiteboxTest)
	}
	if pkg.HasBlackbox() {
		resolve(pkg.Manifest.TestImport, core.TargetBlackboxTest)
	}
	return errs.ErrorOrNil()
}

// resolveImportPath resolves an import string of the form "<module>/<path>" (module
// prefix optional if intra-module) to the package it names.
func (d *Discoverer) resolveImportPath(from *core.Package, imp core.PackageImport) (*core.Package, error) {
	if target, ok := d.arena.LookupPackage(imp.Path); ok {
		return target, nil
	}
	if target, ok := d.arena.LookupPackage(path.Join(from.ModuleID.Name, imp.Path)); ok {
		return target, nil
	}
	return nil, fmt.Errorf("package %s: import %q does not resolve to a known package", from.FQN, imp.Path)
}
