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

// Package status cross-references HEAD's tree, the staging table, and
// the working directory to report what is staged and what is not (spec
// §4.8's status() operation).
package status

import (
	"os"
	"path/filepath"

	"github.com/Oxen-AI/oxen-release-sub010/ignore"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/stager"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
)

// Kind classifies one reported entry.
type Kind int

const (
	Added Kind = iota + 1
	Modified
	Removed
	Untracked
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Untracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// Entry is one line of a status report.
type Entry struct {
	Path string
	Kind Kind
}

// Report is the full cross-reference: what is staged for the next
// commit, and what has changed in the working directory since.
type Report struct {
	Staged   []Entry
	Unstaged []Entry
}

// Checker computes Report and answers the cheaper HasUncommittedChanges
// question checkout needs before overwriting working-directory state.
type Checker struct {
	reader *treereader.Reader
	stager *stager.Stager
}

// New returns a Checker over the given components.
func New(reader *treereader.Reader, st *stager.Stager) *Checker {
	return &Checker{reader: reader, stager: st}
}

// Report walks workingRoot (skipping paths matcher ignores) and compares
// it against head's committed tree and the staging table. A file whose
// (size, mtime) matches HEAD is assumed unchanged without touching
// content; any mismatch is confirmed (or ruled out) with a content hash,
// the same fast-path TreeBuilder uses when reusing FileNodes (spec §4.6
// step 2, §4.8).
func (c *Checker) Report(workingRoot string, head objects.Hash, matcher *ignore.Matcher) (*Report, error) {
	if matcher == nil {
		matcher = ignore.New() // .oxen/ itself is always excluded, even with no .oxenignore rules
	}
	staged, err := c.stager.All()
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for path, e := range staged {
		var k Kind
		switch e.Status {
		case stager.StagedAdded:
			k = Added
		case stager.StagedModified:
			k = Modified
		case stager.StagedRemoved:
			k = Removed
		}
		report.Staged = append(report.Staged, Entry{Path: path, Kind: k})
	}

	view := c.reader.BoundToCommit(head)
	seen := map[string]bool{}
	if err := c.walkDir(workingRoot, "", matcher, view, staged, seen, report); err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "status.report", workingRoot, err)
	}

	// Anything HEAD tracks that the walk never saw has been deleted from
	// disk without being staged as removed.
	err = view.WalkFiles("", func(rel string, f *objects.FileNode) error {
		if seen[rel] {
			return nil
		}
		if _, alreadyStaged := staged[rel]; alreadyStaged {
			return nil
		}
		report.Unstaged = append(report.Unstaged, Entry{Path: rel, Kind: Removed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// walkDir recurses into workingRoot, pushing each directory's .oxenignore
// rules before descending and popping them on the way back out, the
// same stack discipline treebuilder.Builder.buildDir uses.
func (c *Checker) walkDir(absDir, relDir string, matcher *ignore.Matcher, view *treereader.CommitView, staged map[string]stager.Entry, seen map[string]bool, report *Report) error {
	if err := matcher.Push(absDir); err != nil {
		return err
	}
	defer matcher.Pop()

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e.Name()
		if relDir != "" {
			rel = relDir + "/" + e.Name()
		}
		if e.IsDir() {
			if matcher.IsIgnored(rel, true) {
				continue
			}
			if err := c.walkDir(filepath.Join(absDir, e.Name()), rel, matcher, view, staged, seen, report); err != nil {
				return err
			}
			continue
		}
		if matcher.IsIgnored(rel, false) {
			continue
		}
		seen[rel] = true
		if _, alreadyStaged := staged[rel]; alreadyStaged {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		kind, changed, err := c.compareToHead(view, rel, filepath.Join(absDir, e.Name()), fi)
		if err != nil {
			return err
		}
		if changed {
			report.Unstaged = append(report.Unstaged, Entry{Path: rel, Kind: kind})
		}
	}
	return nil
}

func (c *Checker) compareToHead(view *treereader.CommitView, rel, absPath string, fi os.FileInfo) (Kind, bool, error) {
	prev, ok, err := view.FileAt(rel)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return Untracked, true, nil
	}
	if uint64(fi.Size()) == prev.NumBytes && fi.ModTime().UnixNano() == prev.LastModified.UnixNano() {
		return 0, false, nil
	}
	f, err := os.Open(absPath)
	if err != nil {
		return 0, false, oxenerr.Wrap(oxenerr.TransportError, "status.compare", rel, err)
	}
	defer f.Close()
	h, err := oxenhash.HashStream(f)
	if err != nil {
		return 0, false, oxenerr.Wrap(oxenerr.TransportError, "status.compare", rel, err)
	}
	if h == prev.Hash() {
		return 0, false, nil
	}
	return Modified, true, nil
}

// HasUncommittedChanges reports whether checking out a different commit
// would discard anything: any staged entry, or any unstaged change to a
// file HEAD already tracks (untracked files are not in HEAD's way).
func (c *Checker) HasUncommittedChanges(workingRoot string, head objects.Hash) (bool, error) {
	report, err := c.Report(workingRoot, head, nil)
	if err != nil {
		return false, err
	}
	if len(report.Staged) > 0 {
		return true, nil
	}
	for _, e := range report.Unstaged {
		if e.Kind != Untracked {
			return true, nil
		}
	}
	return false, nil
}
