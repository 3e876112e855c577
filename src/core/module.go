package core

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// A SourceKind distinguishes where a module's code comes from (spec.md 3,
// "Module identity").
type SourceKind int

// The three module source kinds.
const (
	SourceRegistry SourceKind = iota
	SourceLocal
	SourceGit
)

func (k SourceKind) String() string {
	switch k {
	case SourceRegistry:
		return "registry"
	case SourceLocal:
		return "local"
	case SourceGit:
		return "git"
	}
	return "unknown"
}

// GitCoordinate identifies a git dependency. Branch and Revision are both
// optional; actually cloning the repository is out of scope (spec.md 1) -
// this type only carries enough to identify and validate the source.
type GitCoordinate struct {
	URL      string
	Branch   string
	Revision string
}

// Validate checks that URL is a syntactically valid git transport endpoint.
// It does not perform any network I/O; cloning is a collaborator (spec.md 1).
func (g GitCoordinate) Validate() error {
	if g.URL == "" {
		return fmt.Errorf("git dependency is missing a url")
	}
	if _, err := transport.NewEndpoint(g.URL); err != nil {
		return fmt.Errorf("invalid git url %q: %w", g.URL, err)
	}
	return nil
}

// ModuleID is the triple (name, version, source-kind) that uniquely
// identifies a module in the resolved graph (spec.md 3). Two modules with
// the same name and different source kinds are distinct, so SourceKind (and,
// for local/git sources, the disambiguating field) participates in equality.
type ModuleID struct {
	Name    string
	Version string // empty for unversioned local modules
	Source  SourceKind
	// Disambiguator distinguishes otherwise-identical (name, version, kind)
	// triples with different concrete sources: a local path, or a git
	// url+branch+revision, or a registry host.
	Disambiguator string
}

func (id ModuleID) String() string {
	if id.Version == "" {
		return fmt.Sprintf("%s@%s(%s)", id.Name, id.Source, id.Disambiguator)
	}
	return fmt.Sprintf("%s@%s", id.Name, id.Version)
}

// DependencyRequirement is one entry in a module manifest's deps map
// (spec.md 3, "Module manifest").
type DependencyRequirement struct {
	Name       string
	Range      string // caret range, e.g. "^1.2.3"; required unless Path or Git is set
	Path       string // local path override, optional
	Git        *GitCoordinate
	registryID string // resolved registry host, filled in by the resolver
}

// ModuleManifest is the parsed form of moon.mod.json (spec.md 6).
type ModuleManifest struct {
	Name         string                   `json:"name"`
	Version      string                   `json:"version"`
	Deps         []DependencyRequirement  `json:"deps"`
	BinDeps      []DependencyRequirement  `json:"bin_deps"`
	Source       string                   `json:"source"` // source-root subdirectory override
	CompileFlags string                   `json:"compile_flags"`
	LinkFlags    string                   `json:"link_flags"`
	WarnList     string                   `json:"warn_list"`
	AlertList    string                   `json:"alert_list"`
	Include      []string                 `json:"include"`
	Exclude      []string                 `json:"exclude"`
	Scripts      map[string]string        `json:"scripts"`
	Checksum     string                   `json:"checksum"`
	Readme       string                   `json:"readme"`
	Repository   string                   `json:"repository"`
	License      string                   `json:"license"`
	Keywords     []string                 `json:"keywords"`
	Description  string                   `json:"description"`
	Ext          map[string]interface{}   `json:"ext"`

	// Root is the canonical filesystem path this manifest was read from.
	// Not part of the JSON wire format; filled in by the loader.
	Root string `json:"-"`
}

// SourceRoot returns the absolute directory package discovery should walk:
// the declared override joined onto Root if present, else Root itself.
func (m *ModuleManifest) SourceRoot() string {
	if m.Source != "" {
		return filepath.Join(m.Root, m.Source)
	}
	return m.Root
}

// A Module is a resolved module: its identity plus its parsed manifest.
type Module struct {
	ID       ModuleID
	Manifest *ModuleManifest
}
