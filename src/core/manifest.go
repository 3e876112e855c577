package core

// PackageImport is one entry in a package manifest's import list (spec.md 3
// "Package manifest"). Path is "<module>/<path>" (module prefix optional if
// intra-module); Alias defaults to the last path component when empty.
type PackageImport struct {
	Path  string `json:"path"`
	Alias string `json:"alias,omitempty"`
}

// LinkConfig holds the per-backend link block fields (spec.md 9, "Deep/
// multiple inheritance replacement": modelled as a tagged variant selected
// at lowering time, instead of one struct with every backend's fields
// flattened together and silently ignored for the wrong backend).
type LinkConfig struct {
	Backend           string   `json:"-"` // which of Wasm/WasmGC/Js/Native this came from
	ExportMemoryName  string   `json:"export-memory-name,omitempty"`
	ImportMemory      *ImportMemorySpec `json:"import-memory,omitempty"`
	JSFormat          string   `json:"format,omitempty"` // "esm" (default) or "cjs"
	SharedMemory      bool     `json:"shared-memory,omitempty"`
	HeapStartAddress  int      `json:"heap-start-address,omitempty"`
	ExtraLinkFlags    string   `json:"flags,omitempty"`
	ExportedFunctions []string `json:"exports,omitempty"`
	MemoryMin         int      `json:"memory-limits-min,omitempty"`
	MemoryMax         int      `json:"memory-limits-max,omitempty"`
}

// ImportMemorySpec describes the wasm import-memory manifest field.
type ImportMemorySpec struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

// CStubConfig is the optional C-stub configuration of a package manifest.
type CStubConfig struct {
	CC        string `json:"cc,omitempty"`
	CFlags    string `json:"cflags,omitempty"`
	ArFlags   string `json:"ar-flags,omitempty"`
	LinkFlags string `json:"link-flags,omitempty"`
}

// VirtualConfig declares a package as virtual (interface-only), or as the
// implementation/override of one.
type VirtualConfig struct {
	// Interface is the hand-written .mbti path for a virtual package.
	Interface string `json:"interface,omitempty"`
	// Overridable is true if implementations may override this virtual package.
	Overridable bool `json:"overridable,omitempty"`
	// Implements names the virtual package (fqn) this package implements, if any.
	Implements string `json:"implements,omitempty"`
	// HasInterface is true if Interface was explicitly set (a pure virtual package).
	HasInterface bool `json:"-"`
}

// PrebuildEntry is one user-declared prebuild script (spec.md 4.4,
// "Prebuild command expansion").
type PrebuildEntry struct {
	Command string   `json:"command"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

// TargetOverride lets a package manifest override backend/optlevel inference
// for a specific file (spec.md 4.2, "Files carrying explicit backend/optlevel
// arrays in the package manifest override pattern-based inference").
type TargetOverride struct {
	File      string   `json:"file"`
	Backend   []string `json:"backend,omitempty"`
	OptLevel  []string `json:"optlevel,omitempty"`
}

// PackageManifest is the parsed form of moon.pkg.json (spec.md 6).
type PackageManifest struct {
	IsMain       bool              `json:"is-main,omitempty"`
	Import       []PackageImport   `json:"import,omitempty"`
	TestImport   []PackageImport   `json:"test-import,omitempty"`
	WBTestImport []PackageImport   `json:"wbtest-import,omitempty"`
	Link         map[string]LinkConfig `json:"link,omitempty"` // keyed by backend name
	WarnList     string            `json:"warn-list,omitempty"`
	AlertList    string            `json:"alert-list,omitempty"`
	Targets      []TargetOverride  `json:"targets,omitempty"`
	PreBuild     []PrebuildEntry   `json:"pre-build,omitempty"`
	Virtual      *VirtualConfig    `json:"virtual,omitempty"`
	NativeStub   *CStubConfig      `json:"native_stub,omitempty"`
}
