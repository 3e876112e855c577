package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/moonbitlang/moon/src/core"
)

// GitCheckoutPath returns the deterministic local path a git dependency
// would be checked out to under home. Actually cloning the repository is a
// collaborator outside this module's scope (spec.md 1); the resolver only
// needs to read moon.mod.json from whatever is already checked out there
// (spec.md 4.1, "the dependency is fetched (out of scope) and resolved
// against the checked-out tree").
func GitCheckoutPath(home string, coord core.GitCoordinate) (string, error) {
	if _, err := transport.NewEndpoint(coord.URL); err != nil {
		return "", fmt.Errorf("invalid git url %q: %w", coord.URL, err)
	}
	h := sha256.Sum256([]byte(coord.URL + "#" + coord.Branch + "#" + coord.Revision))
	return filepath.Join(home, "git", hex.EncodeToString(h[:8])), nil
}

// readManifestFromDir reads and parses the moon.mod.json at the root of an
// already-materialized module directory (a local path override or a git
// checkout). It does not perform any I/O beyond the single file read.
func readManifestFromDir(dir string) (*core.ModuleManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "moon.mod.json"))
	if err != nil {
		return nil, err
	}
	return parseModuleManifest(data, dir)
}
