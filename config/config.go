// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package config loads <repo>/.oxen/config (TOML, spec §6.1) and the
// OXEN_* environment variables (spec §6.4).
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/naoina/toml"

	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
)

// DefaultChunkSize is the threshold (bytes) above which FileNode content
// is split into chunks rather than stored as a single blob.
const DefaultChunkSize = 16 * 1024 * 1024

// User identifies the committer for new commits.
type User struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// Remote is one configured push/pull target.
type Remote struct {
	Name string `toml:"-"`
	URL  string `toml:"url"`
}

// Core holds repository-wide settings.
type Core struct {
	MinVersion string `toml:"min_version"`
}

// Config is the parsed form of .oxen/config.
type Config struct {
	User    User              `toml:"user"`
	Core    Core              `toml:"core"`
	Remotes map[string]Remote `toml:"-"`

	raw rawConfig
}

// rawConfig mirrors the on-disk TOML shape; naoina/toml maps `[remote.origin]`
// tables into this generic structure, which Load then flattens into
// Config.Remotes.
type rawConfig struct {
	User    User              `toml:"user"`
	Core    Core              `toml:"core"`
	Remote  map[string]Remote `toml:"remote"`
}

// Load reads and parses oxenDir/config. A missing file is not an error;
// it yields a zero-value Config (an uninitialized user, no remotes).
func Load(oxenDir string) (*Config, error) {
	path := filepath.Join(oxenDir, "config")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Remotes: map[string]Remote{}}, nil
		}
		return nil, oxenerr.Wrap(oxenerr.TransportError, "config.load", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(b, &raw); err != nil {
		return nil, oxenerr.Wrap(oxenerr.IntegrityError, "config.load", path, err)
	}
	c := &Config{User: raw.User, Core: raw.Core, Remotes: map[string]Remote{}, raw: raw}
	for name, r := range raw.Remote {
		r.Name = name
		c.Remotes[name] = r
	}
	return c, nil
}

// Save writes c back to oxenDir/config.
func (c *Config) Save(oxenDir string) error {
	raw := rawConfig{User: c.User, Core: c.Core, Remote: map[string]Remote{}}
	for name, r := range c.Remotes {
		raw.Remote[name] = r
	}
	b, err := toml.Marshal(raw)
	if err != nil {
		return oxenerr.Wrap(oxenerr.InvalidInput, "config.save", "", err)
	}
	path := filepath.Join(oxenDir, "config")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "config.save", path, err)
	}
	return nil
}

// SetRemote adds or replaces a named remote.
func (c *Config) SetRemote(name, url string) {
	if c.Remotes == nil {
		c.Remotes = map[string]Remote{}
	}
	c.Remotes[name] = Remote{Name: name, URL: url}
}

// Env holds the OXEN_* environment overrides (spec §6.4).
type Env struct {
	NumThreads   int
	Home         string
	MaxOpenFiles int
	ChunkSize    int64
}

// LoadEnv reads OXEN_NUM_THREADS, OXEN_HOME, OXEN_MAX_OPEN_FILES, and
// OXEN_CHUNK_SIZE, falling back to runtime-derived defaults.
func LoadEnv() Env {
	e := Env{
		NumThreads:   runtime.NumCPU(),
		MaxOpenFiles: 1024,
		ChunkSize:    DefaultChunkSize,
	}
	if home, err := os.UserHomeDir(); err == nil {
		e.Home = filepath.Join(home, ".config", "oxen")
	}
	if v := os.Getenv("OXEN_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			e.NumThreads = n
		}
	}
	if v := os.Getenv("OXEN_HOME"); v != "" {
		e.Home = v
	}
	if v := os.Getenv("OXEN_MAX_OPEN_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			e.MaxOpenFiles = n
		}
	}
	if v := os.Getenv("OXEN_CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			e.ChunkSize = n
		}
	}
	return e
}
