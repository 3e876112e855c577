// Package plan implements build plan construction (spec.md 4.3): expanding a
// set of goal nodes into the full need-graph of abstract build steps, ready
// for src/lower to translate into concrete commands.
package plan

import (
	"fmt"

	"github.com/moonbitlang/moon/src/core"
)

// NodeKind enumerates the abstract build plan node kinds (spec.md 4.3).
type NodeKind int

const (
	Check NodeKind = iota
	BuildCore
	LinkCore
	GenerateTestInfo
	BuildCStub
	ArchiveOrLinkCStubs
	MakeExecutable
	BuildRuntimeLib
	Bundle
	ParseMbti
	GenerateMbti
	BuildDocs
	RunPrebuild
)

func (k NodeKind) String() string {
	switch k {
	case Check:
		return "Check"
	case BuildCore:
		return "BuildCore"
	case LinkCore:
		return "LinkCore"
	case GenerateTestInfo:
		return "GenerateTestInfo"
	case BuildCStub:
		return "BuildCStub"
	case ArchiveOrLinkCStubs:
		return "ArchiveOrLinkCStubs"
	case MakeExecutable:
		return "MakeExecutable"
	case BuildRuntimeLib:
		return "BuildRuntimeLib"
	case Bundle:
		return "Bundle"
	case ParseMbti:
		return "ParseMbti"
	case GenerateMbti:
		return "GenerateMbti"
	case BuildDocs:
		return "BuildDocs"
	case RunPrebuild:
		return "RunPrebuild"
	}
	return "Unknown"
}

// NodeState is a build plan node's position in the lifecycle state machine
// (spec.md 4.3, "State machine: build plan node lifecycle").
type NodeState int

const (
	Created NodeState = iota
	Needed
	Resolved
)

// NodeKey identifies a node uniquely: its kind plus whatever distinguishes
// two nodes of the same kind (target, module, or an index for fan-out nodes
// like BuildCStub/RunPrebuild).
type NodeKey struct {
	Kind    NodeKind
	FQN     string // package or module FQN/name, as applicable
	Target  core.TargetKind
	Backend string
	OptDebug bool
	Index   int // disambiguates per-package fan-out (stub index, prebuild index)
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%s(%s,%s,%s,debug=%v,#%d)", k.Kind, k.FQN, k.Target, k.Backend, k.OptDebug, k.Index)
}

// Node is one build plan node: its identity, lifecycle state, and whatever
// auxiliary data construction attached to it.
type Node struct {
	Key   NodeKey
	State NodeState

	Package *core.Package
	Module  *core.Module

	// Deps are the keys of nodes this node needs, populated by construction.
	Deps []NodeKey

	// LinkClosure is populated on LinkCore/MakeExecutable nodes: the ordered
	// list of BuildCore node keys to link, per the DFS/whitebox-substitution
	// rule in spec.md 4.3.
	LinkClosure []NodeKey
	// CStubPackages lists packages in the link closure that declare C stubs
	// (native backends only).
	CStubPackages []string

	// PrebuildIndex/PrebuildCommand are populated on RunPrebuild nodes.
	PrebuildIndex   int
	PrebuildCommand string
}
