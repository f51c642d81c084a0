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

// Package checkout materializes a commit's tree onto the working
// directory and restores individual paths from an arbitrary commit
// (spec §4.10), driven by package diff so the work done is proportional
// to what actually changed between the two trees.
package checkout

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Oxen-AI/oxen-release-sub010/diff"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

// StatusChecker reports whether the working directory has uncommitted
// modifications checkout would otherwise clobber. *status.Checker
// satisfies this; tests use a stub.
type StatusChecker interface {
	HasUncommittedChanges(workingRoot string, head objects.Hash) (bool, error)
}

// Checkout materializes commits onto a working directory.
type Checkout struct {
	reader *treereader.Reader
	refs   *refstore.Store
	store  *versionstore.Store
}

// New returns a Checkout over the given components.
func New(reader *treereader.Reader, refs *refstore.Store, store *versionstore.Store) *Checkout {
	return &Checkout{reader: reader, refs: refs, store: store}
}

// Options controls one checkout or restore call.
type Options struct {
	// Force allows checkout to proceed even if the working directory has
	// uncommitted modifications.
	Force bool
}

// ToRef resolves refOrCommit (a branch name first, then a raw commit
// hash), computes the diff between the currently checked-out commit and
// the target, materializes it onto workingRoot, and moves HEAD (spec
// §4.10 steps 1, 3-6). Uncommitted modifications abort the checkout
// unless opts.Force is set.
func (c *Checkout) ToRef(workingRoot, refOrCommit string, checker StatusChecker, opts Options) error {
	target, attached, err := c.resolve(refOrCommit)
	if err != nil {
		return err
	}

	head, err := c.refs.GetHead()
	if err != nil {
		return err
	}

	if !opts.Force && checker != nil {
		dirty, err := checker.HasUncommittedChanges(workingRoot, head.Commit)
		if err != nil {
			return err
		}
		if dirty {
			return oxenerr.New(oxenerr.InvalidInput, "checkout.to_ref", "uncommitted changes would be overwritten")
		}
	}

	changes, err := c.diffAgainstHead(head.Commit, target)
	if err != nil {
		return err
	}
	if err := c.apply(workingRoot, target, changes); err != nil {
		return err
	}

	if attached {
		if err := c.refs.SetHeadToRef(refOrCommit); err != nil {
			return err
		}
	} else {
		if err := c.refs.SetHeadToCommit(target); err != nil {
			return err
		}
	}
	return nil
}

// Restore re-materializes relPath (a file or directory subtree) as it
// existed at fromCommit, without moving HEAD.
func (c *Checkout) Restore(workingRoot, relPath string, fromCommit objects.Hash) error {
	dirB, err := c.reader.GetDir(fromCommit, relPath)
	var changes []diff.Change
	if err == nil {
		changes, err = diff.Trees(diff.MapSource{}, diff.EmptyDir, c.reader.Source(fromCommit), dirB, relPath)
		if err != nil {
			return err
		}
	} else if oxenerr.Is(err, oxenerr.NotFound) {
		// relPath names a single file, not a directory, under fromCommit.
		file, ferr := c.fileAt(fromCommit, relPath)
		if ferr != nil {
			return ferr
		}
		changes = []diff.Change{{Path: relPath, Type: diff.Added, Kind: objects.EntryFile, NewHash: file.Hash()}}
	} else {
		return err
	}
	return c.apply(workingRoot, fromCommit, changes)
}

func (c *Checkout) resolve(refOrCommit string) (commit objects.Hash, attached bool, err error) {
	if h, err := c.refs.GetRef(refOrCommit); err == nil {
		return h, true, nil
	} else if !oxenerr.Is(err, oxenerr.NotFound) {
		return objects.Hash{}, false, err
	}
	h, err := parseHash(refOrCommit)
	if err != nil {
		return objects.Hash{}, false, oxenerr.New(oxenerr.NotFound, "checkout.resolve", refOrCommit)
	}
	return h, false, nil
}

func (c *Checkout) diffAgainstHead(head, target objects.Hash) ([]diff.Change, error) {
	if head.IsZero() {
		dirB, err := c.reader.GetRoot(target)
		if err != nil {
			return nil, err
		}
		return diff.Trees(diff.MapSource{}, diff.EmptyDir, c.reader.Source(target), dirB, "")
	}
	dirA, err := c.reader.GetRoot(head)
	if err != nil {
		return nil, err
	}
	dirB, err := c.reader.GetRoot(target)
	if err != nil {
		return nil, err
	}
	return diff.Trees(c.reader.Source(head), dirA, c.reader.Source(target), dirB, "")
}

// apply executes the file-level side effects of changes against
// workingRoot, reading added/modified content from commit via
// VersionStore (spec §4.10 step 4), then prunes directories left empty
// by removed files (step 5).
func (c *Checkout) apply(workingRoot string, commit objects.Hash, changes []diff.Change) error {
	touchedDirs := map[string]bool{}
	for _, ch := range changes {
		full := filepath.Join(workingRoot, filepath.FromSlash(ch.Path))
		touchedDirs[filepath.Dir(full)] = true
		switch ch.Type {
		case diff.Removed:
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return oxenerr.Wrap(oxenerr.TransportError, "checkout.apply", ch.Path, err)
			}
		case diff.Added, diff.Modified:
			if ch.Kind != objects.EntryFile {
				continue
			}
			if err := c.materialize(commit, ch.Path, ch.NewHash, full); err != nil {
				return err
			}
		}
	}
	return c.pruneEmptyDirs(workingRoot, touchedDirs)
}

func (c *Checkout) materialize(commit objects.Hash, relPath string, fileHash objects.Hash, destPath string) error {
	file, err := c.fileAt(commit, relPath)
	if err != nil {
		return err
	}
	r, err := c.store.OpenChunked(file.ChunkHashes)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	tmp := destPath + ".oxen-tmp"
	w, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		os.Remove(tmp)
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "checkout.materialize", relPath, err)
	}
	if !file.LastModified.IsZero() {
		_ = os.Chtimes(destPath, file.LastModified, file.LastModified)
	}
	return nil
}

func (c *Checkout) fileAt(commit objects.Hash, relPath string) (*objects.FileNode, error) {
	dirPath, name := splitPath(relPath)
	dir, err := c.reader.GetDir(commit, dirPath)
	if err != nil {
		return nil, err
	}
	entries, err := c.reader.ListChildren(commit, dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name && e.Kind == objects.EntryFile {
			return c.reader.GetFile(commit, e.Hash)
		}
	}
	return nil, oxenerr.New(oxenerr.NotFound, "checkout.file_at", relPath)
}

// pruneEmptyDirs removes any directory (innermost first) left with no
// entries after removals, walking up toward workingRoot.
func (c *Checkout) pruneEmptyDirs(workingRoot string, touched map[string]bool) error {
	dirs := make([]string, 0, len(touched))
	for d := range touched {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	cleanRoot := filepath.Clean(workingRoot)
	for _, d := range dirs {
		dir := d
		for {
			dir = filepath.Clean(dir)
			if dir == cleanRoot || !strings.HasPrefix(dir, cleanRoot) {
				break
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				break
			}
			if len(entries) > 0 {
				break
			}
			if err := os.Remove(dir); err != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
	return nil
}

func splitPath(relPath string) (dir, name string) {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return "", relPath
	}
	return relPath[:idx], relPath[idx+1:]
}

func parseHash(s string) (objects.Hash, error) {
	return oxenhash.ParseHash(s)
}
