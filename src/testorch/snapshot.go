package testorch

import (
	"os"
	"path/filepath"
)

// SnapshotOutcome is a SNAPSHOT_TESTING JSON output's payload: the test
// references a file under a `__snapshot__` subdirectory holding the expected
// rendering (spec.md 4.6, "Snapshot tests").
type SnapshotOutcome struct {
	// Path is the snapshot file's path, relative to the test's package
	// directory (conventionally under `__snapshot__/`).
	Path   string
	Actual string
}

// Reconcile applies (update=true) or checks (update=false) one snapshot
// outcome against packageDir. On update it writes Actual to Path,
// creating `__snapshot__` if necessary, and returns ("", nil). Otherwise it
// reads the existing snapshot (treated as empty if absent) and, if it
// differs from Actual, returns a rendered unified diff and a non-nil error.
func (s SnapshotOutcome) Reconcile(packageDir string, update bool) (diffText string, err error) {
	path := filepath.Join(packageDir, s.Path)
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
		return "", os.WriteFile(path, []byte(s.Actual), 0644)
	}

	existing, readErr := os.ReadFile(path)
	if readErr != nil && !os.IsNotExist(readErr) {
		return "", readErr
	}
	if string(existing) == s.Actual {
		return "", nil
	}
	diffText, diffErr := RenderDiff(s.Path, string(existing), s.Actual)
	if diffErr != nil {
		return "", diffErr
	}
	return diffText, errSnapshotMismatch{path: s.Path}
}

type errSnapshotMismatch struct{ path string }

func (e errSnapshotMismatch) Error() string {
	return "snapshot " + e.path + " does not match actual output"
}
