package fs

import (
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// boolTrueHashValue is written into the hash in place of a symlink's actual contents.
var boolTrueHashValue = []byte{2}

// A PathHasher is responsible for hashing & remembering paths, using a pluggable hash
// algorithm (spec.md 4.5, "Content hashing": sha256, blake3 or xxhash selected by
// configuration, the same way core.Configuration.Build.HashFunction does).
type PathHasher struct {
	memo    map[string][]byte
	mutex   sync.RWMutex
	root    string
	hashNew func() hash.Hash
}

// NewPathHasher returns a new PathHasher rooted at root, using hashNew to construct a
// fresh hash.Hash for each file or tree that's hashed.
func NewPathHasher(root string, hashNew func() hash.Hash) *PathHasher {
	return &PathHasher{
		memo:    map[string][]byte{},
		root:    root,
		hashNew: hashNew,
	}
}

// Hash hashes a single path, which may be a file, directory or symlink.
// It is memoised and so will only hash each path once unless recalc is true, which forces
// a recalculation.
func (hasher *PathHasher) Hash(path string, recalc bool) ([]byte, error) {
	path = hasher.ensureRelative(path)
	if !recalc {
		hasher.mutex.RLock()
		cached, present := hasher.memo[path]
		hasher.mutex.RUnlock()
		if present {
			return cached, nil
		}
	}
	result, err := hasher.hash(path)
	if err == nil {
		hasher.mutex.Lock()
		hasher.memo[path] = result
		hasher.mutex.Unlock()
	}
	return result, err
}

// MustHash is as Hash but panics on error.
func (hasher *PathHasher) MustHash(path string) []byte {
	h, err := hasher.Hash(path, false)
	if err != nil {
		panic(err)
	}
	return h
}

// CopyHash copies a memoised hash from oldPath to newPath, used when an output is moved
// from a temporary location to its final artifact path without its content changing.
func (hasher *PathHasher) CopyHash(oldPath, newPath string) {
	oldPath = hasher.ensureRelative(oldPath)
	newPath = hasher.ensureRelative(newPath)
	hasher.mutex.Lock()
	defer hasher.mutex.Unlock()
	if oldHash, present := hasher.memo[oldPath]; present {
		hasher.memo[newPath] = oldHash
	}
}

// SetHash directly sets a hash for a path, used when the hash is already known, e.g. for
// standard library bundle artifacts that are assumed immutable for the run.
func (hasher *PathHasher) SetHash(path string, hash []byte) {
	path = hasher.ensureRelative(path)
	hasher.mutex.Lock()
	defer hasher.mutex.Unlock()
	hasher.memo[path] = hash
}

func (hasher *PathHasher) hash(path string) ([]byte, error) {
	h := hasher.hashNew()
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		dest, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		h.Write(boolTrueHashValue)
		h.Write([]byte(hasher.ensureRelative(dest)))
		return h.Sum(nil), nil
	case info.IsDir():
		err = WalkMode(path, func(p string, isDir bool, mode os.FileMode) error {
			if mode&os.ModeSymlink != 0 {
				h.Write(boolTrueHashValue)
				return nil
			} else if !isDir {
				return hasher.fileHash(h, p)
			}
			return nil
		})
		return h.Sum(nil), err
	default:
		err = hasher.fileHash(h, path)
		return h.Sum(nil), err
	}
}

// fileHash hashes the contents of a single regular file into h.
func (hasher *PathHasher) fileHash(h hash.Hash, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(h, file)
	return err
}

// ensureRelative makes a path relative to the hasher's root, which keeps the memoisation
// map keyed consistently regardless of how callers pass paths in.
func (hasher *PathHasher) ensureRelative(path string) string {
	if hasher.root != "" && strings.HasPrefix(path, hasher.root) {
		return strings.TrimPrefix(strings.TrimPrefix(path, hasher.root), string(filepath.Separator))
	}
	return path
}
