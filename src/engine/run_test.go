package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/lower"
	"github.com/moonbitlang/moon/src/plan"
	"github.com/moonbitlang/moon/src/process"
)

func newCheckGraphAndLowerer(t *testing.T) (*plan.Graph, *lower.Lowerer) {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "main.mbt")
	require.NoError(t, os.WriteFile(src, []byte("fn main { }"), 0644))

	manifest := &core.PackageManifest{}
	pkg := core.NewPackage("root/main", core.ModuleID{Name: "root"}, root, manifest)
	pkg.Sources.Regular = []string{src}

	arena := core.NewArena()

	g := plan.NewGraph()
	node := g.Need(plan.NodeKey{Kind: plan.Check, FQN: pkg.FQN, Backend: "wasm-gc"})
	node.Package = pkg
	g.MarkResolved(node.Key)

	cfg := core.DefaultConfiguration()
	cfg.Moon.Home = t.TempDir()

	lowerer := &lower.Lowerer{
		Arena:      arena,
		TargetRoot: t.TempDir(),
		Options:    &lower.Options{Config: cfg},
	}
	return g, lowerer
}

func TestRunCountsFailedNodeWhenCommandFails(t *testing.T) {
	g, lowerer := newCheckGraphAndLowerer(t)
	exec := process.New()

	opts := Options{TargetRoot: t.TempDir(), Mode: "check", HashFunction: "sha256"}

	// moonc isn't actually on PATH in this sandbox, so the command itself
	// fails, but the scheduler must still visit the node and count it as
	// failed.
	result, err := Run(context.Background(), g, lowerer, exec, opts)
	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestRunSkipsUnchangedNodeWithMatchingHashAndOutputs(t *testing.T) {
	g, lowerer := newCheckGraphAndLowerer(t)
	targetRoot := t.TempDir()

	node := g.Node(plan.NodeKey{Kind: plan.Check, FQN: "root/main", Backend: "wasm-gc"})
	cmd, err := lowerer.Lower(node)
	require.NoError(t, err)
	require.Len(t, cmd.Outputs, 1)
	require.NoError(t, os.MkdirAll(filepath.Dir(cmd.Outputs[0]), 0755))
	require.NoError(t, os.WriteFile(cmd.Outputs[0], []byte("stale .mi"), 0644))

	hasher, err := NewNodeHasher(targetRoot, "sha256")
	require.NoError(t, err)
	hash := hasher.Hash(cmd)
	db := OpenDatabase(targetRoot)
	require.NoError(t, db.Put(node.Key, Record{Hash: hash}))

	ranCommand := false
	sched := &Scheduler{
		Graph:       g,
		Parallelism: 1,
		Runner: func(ctx context.Context, n *plan.Node) ([]byte, error) {
			lowered, err := lowerer.Lower(n)
			if err != nil {
				return nil, err
			}
			h := hasher.Hash(lowered)
			if rec, ok := db.Get(n.Key); ok && string(rec.Hash) == string(h) && outputsExist(lowered.Outputs) {
				ranCommand = false
				return nil, nil
			}
			ranCommand = true
			return nil, nil
		},
	}
	require.NoError(t, sched.Run(context.Background()))
	assert.False(t, ranCommand, "unchanged node with matching hash and existing outputs should be skipped")
}
