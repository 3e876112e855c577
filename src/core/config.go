// Utilities for reading moon's ambient configuration.
//
// Manifests (moon.mod.json, moon.pkg.json) are JSON and are parsed directly
// by the resolver/discoverer from their own files (spec.md 6); this file
// covers the separate ambient configuration layer that isn't part of any
// workspace manifest - machine and user level defaults for parallelism, the
// standard library location and the hash function to use, read the same way
// the teacher reads its .plzconfig cascade (core/config.go), just with moon's
// much smaller settings surface.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/please-build/gcfg"
)

// GlobalConfigFileName is the per-user override, analogous to the teacher's
// UserConfigFileName.
const GlobalConfigFileName = "~/.moon/config"

// MachineConfigFileName can be used to override settings for a particular
// build machine (e.g. a CI runner with different default parallelism).
const MachineConfigFileName = "/etc/moon/config"

// Configuration holds the ambient settings that aren't part of any one
// workspace manifest.
type Configuration struct {
	Moon struct {
		Home          string `gcfg:"home"`           // MOON_HOME override
		NumThreads    int    `gcfg:"num-threads"`     // overridden by -j
		TestWorkers   int    `gcfg:"test-workers"`    // default 16, spec.md 5
		Colour        bool   `gcfg:"colour"`
		IterationLimit int   `gcfg:"expect-iteration-limit"` // default 256, spec.md 4.6
	}
	Build struct {
		HashFunction string   `gcfg:"hash-function"` // sha256 | blake3 | xxhash
		HashCheckers []string `gcfg:"hash-checker"`   // additional hashes to compute for verification
	}
	Tools struct {
		CC string `gcfg:"cc"` // MOON_CC override
		AR string `gcfg:"ar"` // MOON_AR override
	}
}

// DefaultConfiguration returns the default configuration with no overrides applied.
func DefaultConfiguration() *Configuration {
	c := &Configuration{}
	c.Moon.NumThreads = runtime.NumCPU()
	c.Moon.TestWorkers = 16
	c.Moon.IterationLimit = 256
	c.Moon.Colour = true
	c.Build.HashFunction = "blake3"
	c.Tools.CC = "cc"
	c.Tools.AR = "ar"
	return c
}

// ReadConfigFiles reads all the given config locations in order and merges
// them into one configuration, starting from the defaults. It is not an
// error for any individual file to be missing.
func ReadConfigFiles(filenames []string) (*Configuration, error) {
	config := DefaultConfiguration()
	for _, filename := range filenames {
		if err := readConfigFile(config, filename); err != nil {
			return config, err
		}
	}
	applyEnvOverrides(config)
	return config, nil
}

func readConfigFile(config *Configuration, filename string) error {
	filename = expandHome(filename)
	if err := gcfg.ReadFileInto(config, filename); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if gcfg.FatalOnly(err) != nil {
			return fmt.Errorf("error reading config file %s: %w", filename, err)
		}
	}
	return nil
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// applyEnvOverrides applies the environment variables named in spec.md 6
// ("Environment variables"): MOON_CC, MOON_AR, MOON_HOME.
func applyEnvOverrides(config *Configuration) {
	if v := os.Getenv("MOON_CC"); v != "" {
		config.Tools.CC = v
	}
	if v := os.Getenv("MOON_AR"); v != "" {
		config.Tools.AR = v
	}
	if v := os.Getenv("MOON_HOME"); v != "" {
		config.Moon.Home = v
	}
}

// StdlibPath returns the root of the standard library bundle for a given
// backend, e.g. "<MOON_HOME>/lib/core" laid out per backend/opt the same way
// as build output (spec.md 4.4, "Standard library inclusion").
func (c *Configuration) StdlibPath(backend string) string {
	return filepath.Join(c.Moon.Home, "lib", "core", backend, "release", "bundle")
}
