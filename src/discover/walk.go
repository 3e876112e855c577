package discover

import (
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
)

// ManifestFileName is the per-directory package manifest that marks a directory as a
// package (spec.md 4.2, "Discovery").
const ManifestFileName = "moon.pkg.json"

// walkPackageDirs walks the source subtree rooted at root and calls fn for every
// directory that contains a package manifest, grounded on the teacher's godirwalk-based
// Walk helper (fs/walk.go) but scoped to this package so discover has no hard fs import
// dependency beyond what it actually needs.
func walkPackageDirs(root string, fn func(dir string) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, ent *godirwalk.Dirent) error {
			if !ent.IsDir() {
				return nil
			}
			if base := filepath.Base(path); base == ".git" || base == "target" {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, ManifestFileName)); err == nil {
				return fn(path)
			}
			return nil
		},
		Unsorted: false,
	})
}
