package engine

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/moonbitlang/moon/src/cli/logging"
	"github.com/moonbitlang/moon/src/plan"
)

var log = logging.Log

// Record is what the build database remembers about one node: the content
// hash it was built with, so a later invocation with an identical hash can
// skip re-running it (spec.md 4.5, "Persistence").
type Record struct {
	Hash []byte
}

// Database is the on-disk build database: a gob-encoded snapshot of every
// node's last-known hash, written atomically so a crash mid-write can never
// leave a half-written file on disk that would be mistaken for valid state
// (spec.md 4.5: "A corruption of the database must not corrupt the
// artifacts; the engine tolerates missing DB by re-executing all nodes").
type Database struct {
	mutex   sync.Mutex
	path    string
	records map[plan.NodeKey]Record
}

// DatabaseFileName is the build database's file name, stored directly under
// the target root alongside the backend/opt artifact trees (spec.md 6,
// "Persisted state layout").
const DatabaseFileName = "build.moon_db"

// OpenDatabase loads the database at <targetRoot>/build.moon_db, or starts
// with an empty one if the file is missing or unreadable.
func OpenDatabase(targetRoot string) *Database {
	db := &Database{path: filepath.Join(targetRoot, DatabaseFileName), records: map[plan.NodeKey]Record{}}
	db.load()
	return db
}

func (db *Database) load() {
	data, err := os.ReadFile(db.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warningf("Failed to read build database %s, rebuilding from scratch: %s", db.path, err)
		}
		return
	}
	var records map[plan.NodeKey]Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		log.Warningf("Build database %s is corrupt, rebuilding from scratch: %s", db.path, err)
		return
	}
	db.records = records
}

// Get returns the persisted record for a node key, if any.
func (db *Database) Get(key plan.NodeKey) (Record, bool) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	r, ok := db.records[key]
	return r, ok
}

// Put records a node's new hash and flushes the database to disk
// immediately, so that a cancelled run only ever loses the in-flight node,
// never previously-succeeded ones (spec.md 4.5, "Cancellation": "the
// database is left consistent - only fully-succeeded nodes are recorded").
func (db *Database) Put(key plan.NodeKey, rec Record) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.records[key] = rec
	return db.flushLocked()
}

func (db *Database) flushLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(db.records); err != nil {
		return err
	}
	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, db.path)
}
