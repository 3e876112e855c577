// Package clean implements moon's clean verb: removing build output.
package clean

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"gopkg.in/op/go-logging.v1"

	"github.com/moonbitlang/moon/src/fs"
)

var log = logging.MustGetLogger("clean")

// Clean removes targetRoot, the configured build output directory,
// optionally in the background.
func Clean(targetRoot string, background bool) error {
	if !fs.PathExists(targetRoot) {
		return nil
	}
	if background {
		if err := AsyncDeleteDir(targetRoot); err != nil {
			log.Warning("Couldn't clean in background; cleaning synchronously: %s", err)
		} else {
			return nil
		}
	}
	log.Info("Cleaning %s", targetRoot)
	return deleteDir(targetRoot, false)
}

// AsyncDeleteDir deletes a directory asynchronously. It first renames the
// directory to a temporary sibling path, then forks off the actual removal,
// so the caller doesn't wait for a large output tree to be removed.
func AsyncDeleteDir(dir string) error {
	return deleteDir(dir, true)
}

func deleteDir(dir string, async bool) error {
	rm, err := exec.LookPath("rm")
	if err != nil {
		return err
	} else if !fs.PathExists(dir) {
		return nil
	}
	newDir, err := moveDir(dir)
	if err != nil {
		return err
	}
	if async {
		_, err = syscall.ForkExec(rm, []string{rm, "-rf", newDir}, nil)
		return err
	}
	out, err := exec.Command(rm, "-rf", newDir).CombinedOutput()
	if err != nil {
		log.Error("Failed to remove directory: %s", string(out))
	}
	return err
}

// moveDir moves dir to a new, uniquely-named sibling location and returns
// that new location.
func moveDir(dir string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	name := filepath.Join(filepath.Dir(dir), ".moon_clean_"+hex.EncodeToString(b))
	log.Notice("Moving %s to %s", dir, name)
	return name, os.Rename(dir, name)
}
