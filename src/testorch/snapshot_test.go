package testorch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReconcileUpdateWritesFile(t *testing.T) {
	dir := t.TempDir()
	s := SnapshotOutcome{Path: filepath.Join("__snapshot__", "render.txt"), Actual: "hello"}

	diff, err := s.Reconcile(dir, true)
	require.NoError(t, err)
	assert.Empty(t, diff)

	got, err := os.ReadFile(filepath.Join(dir, "__snapshot__", "render.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestSnapshotReconcileCheckPassesWhenMatching(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "__snapshot__"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__snapshot__", "render.txt"), []byte("hello"), 0644))

	s := SnapshotOutcome{Path: filepath.Join("__snapshot__", "render.txt"), Actual: "hello"}
	diff, err := s.Reconcile(dir, false)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestSnapshotReconcileCheckFailsWithDiffWhenMismatched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "__snapshot__"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__snapshot__", "render.txt"), []byte("old"), 0644))

	s := SnapshotOutcome{Path: filepath.Join("__snapshot__", "render.txt"), Actual: "new"}
	diff, err := s.Reconcile(dir, false)
	require.Error(t, err)
	assert.NotEmpty(t, diff)
}

func TestSnapshotReconcileCheckTreatsMissingFileAsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := SnapshotOutcome{Path: filepath.Join("__snapshot__", "render.txt"), Actual: "new"}
	diff, err := s.Reconcile(dir, false)
	require.Error(t, err)
	assert.NotEmpty(t, diff)
}
