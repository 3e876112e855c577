package core

import (
	"sync"

	"github.com/moonbitlang/moon/src/cmap"
)

// fnv32 is a 32-bit FNV-1a hash of a string, used to shard the Arena's maps.
func fnv32(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Arena is the single owner of every resolved Module and Package for one
// invocation (spec.md 9, "Shared ownership of manifests": store once in an
// arena keyed by id; pass ids around; hand out borrowed views at use sites).
type Arena struct {
	modules  *cmap.Map[ModuleID, *Module]
	packages *cmap.Map[string, *Package]

	// mutex guards the two presence sets below, which exist so callers that
	// need to know whether an id will EVER be present (as opposed to "not yet")
	// can check without registering an awaiter on the cmap and blocking forever
	// on an id that is simply never going to resolve (spec.md 4.2/4.1, missing
	// imports and missing dependencies are ordinary reported errors, not a hang).
	mutex        sync.RWMutex
	knownModules map[ModuleID]bool
	knownPkgs    map[string]bool
}

// NewArena constructs an empty arena.
func NewArena() *Arena {
	return &Arena{
		modules:      cmap.New[ModuleID, *Module](cmap.DefaultShardCount, func(id ModuleID) uint32 { return fnv32(id.String()) }),
		packages:     cmap.New[string, *Package](cmap.DefaultShardCount, fnv32),
		knownModules: map[ModuleID]bool{},
		knownPkgs:    map[string]bool{},
	}
}

// PutModule stores a module, returning false if it was already present.
func (a *Arena) PutModule(m *Module) bool {
	a.mutex.Lock()
	a.knownModules[m.ID] = true
	a.mutex.Unlock()
	return a.modules.Set(m.ID, m)
}

// Module blocks until the module is present and returns it. Only call this once the
// caller already knows (e.g. via LookupModule, or because it is itself waiting on
// concurrent resolution work that is guaranteed to produce it) that the module will
// eventually be stored.
func (a *Arena) Module(id ModuleID) *Module {
	m, wait := a.modules.Get(id)
	if wait != nil {
		<-wait
		m, _ = a.modules.Get(id)
	}
	return m
}

// LookupModule is a non-blocking lookup: ok is false if the module was never stored.
func (a *Arena) LookupModule(id ModuleID) (*Module, bool) {
	a.mutex.RLock()
	known := a.knownModules[id]
	a.mutex.RUnlock()
	if !known {
		return nil, false
	}
	return a.Module(id), true
}

// Modules returns every module currently stored.
func (a *Arena) Modules() []*Module { return a.modules.Values() }

// PutPackage stores a package, returning false if it was already present.
func (a *Arena) PutPackage(p *Package) bool {
	a.mutex.Lock()
	a.knownPkgs[p.FQN] = true
	a.mutex.Unlock()
	return a.packages.Set(p.FQN, p)
}

// Package blocks until the package is present and returns it. See the caveat on Module.
func (a *Arena) Package(fqn string) *Package {
	p, wait := a.packages.Get(fqn)
	if wait != nil {
		<-wait
		p, _ = a.packages.Get(fqn)
	}
	return p
}

// LookupPackage is a non-blocking lookup: ok is false if the package was never stored.
func (a *Arena) LookupPackage(fqn string) (*Package, bool) {
	a.mutex.RLock()
	known := a.knownPkgs[fqn]
	a.mutex.RUnlock()
	if !known {
		return nil, false
	}
	return a.Package(fqn), true
}

// Packages returns every package currently stored.
func (a *Arena) Packages() []*Package { return a.packages.Values() }
