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

// Package repo wires every core component (VersionStore, NodeDB,
// RefStore, Stager, TreeBuilder, TreeReader, Committer, Checkout,
// SyncEngine) to a single on-disk layout and owns the repository-wide
// exclusive lock (spec §4.4, §5, §6.1).
package repo

import (
	"os"
	"path/filepath"
)

// Layout computes every on-disk path under a repository root's hidden
// .oxen directory.
type Layout struct {
	Root    string
	OxenDir string
}

// NewLayout returns the Layout rooted at root (the working directory
// that contains .oxen).
func NewLayout(root string) Layout {
	return Layout{Root: root, OxenDir: filepath.Join(root, ".oxen")}
}

func (l Layout) ConfigPath() string     { return filepath.Join(l.OxenDir, "config") }
func (l Layout) LockPath() string       { return filepath.Join(l.OxenDir, "LOCK") }
func (l Layout) VersionsDir() string    { return filepath.Join(l.OxenDir, "versions") }
func (l Layout) NodesDir() string       { return filepath.Join(l.OxenDir, "nodes") }
func (l Layout) StagedDir() string      { return filepath.Join(l.OxenDir, "staged") }
func (l Layout) RefsDir() string        { return l.OxenDir }
func (l Layout) IgnoreFileName() string { return ".oxenignore" }

// Exists reports whether root already contains an initialized .oxen
// directory.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.OxenDir)
	return err == nil && info.IsDir()
}
