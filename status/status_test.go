// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Oxen-AI/oxen-release-sub010/committer"
	"github.com/Oxen-AI/oxen-release-sub010/ignore"
	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/stager"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

type harness struct {
	checker *Checker
	stager  *stager.Stager
	commit  *committer.Committer
	work    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	db, err := nodedb.Open(filepath.Join(root, "nodes"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	refs, err := refstore.Open(filepath.Join(root, "oxen"))
	require.NoError(t, err)
	require.NoError(t, refs.SetHeadToRef("main"))

	vs, err := versionstore.New(filepath.Join(root, "versions"))
	require.NoError(t, err)

	st, err := stager.Open(filepath.Join(root, "staged"), vs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reader, err := treereader.New(db, 0)
	require.NoError(t, err)

	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))

	return &harness{
		checker: New(reader, st),
		stager:  st,
		commit:  committer.New(db, refs, reader, st),
		work:    work,
	}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(h.work, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (h *harness) stage(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, h.stager.Add(h.work, rel, stager.NoHead{}, nil))
}

func entryFor(entries []Entry, path string) (Entry, bool) {
	for _, e := range entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

func TestReportClassifiesStagedEntries(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")

	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	h.write(t, "b.txt", "world")
	h.stage(t, "b.txt")

	report, err := h.checker.Report(h.work, head.Hash(), nil)
	require.NoError(t, err)

	e, ok := entryFor(report.Staged, "b.txt")
	require.True(t, ok)
	require.Equal(t, Added, e.Kind)
}

func TestReportClassifiesUnstagedModifiedAndUntracked(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	// Modify a.txt on disk without staging the change.
	h.write(t, "a.txt", "hello, changed")
	// Add a new file on disk without staging it.
	h.write(t, "c.txt", "new")

	report, err := h.checker.Report(h.work, head.Hash(), nil)
	require.NoError(t, err)

	modified, ok := entryFor(report.Unstaged, "a.txt")
	require.True(t, ok)
	require.Equal(t, Modified, modified.Kind)

	untracked, ok := entryFor(report.Unstaged, "c.txt")
	require.True(t, ok)
	require.Equal(t, Untracked, untracked.Kind)
}

func TestReportFlagsDeletedFileNotStagedAsRemoved(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(h.work, "a.txt")))

	report, err := h.checker.Report(h.work, head.Hash(), nil)
	require.NoError(t, err)

	e, ok := entryFor(report.Unstaged, "a.txt")
	require.True(t, ok)
	require.Equal(t, Removed, e.Kind)
}

func TestReportUnchangedFileNotReported(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	report, err := h.checker.Report(h.work, head.Hash(), nil)
	require.NoError(t, err)

	require.Empty(t, report.Staged)
	require.Empty(t, report.Unstaged)
}

// TestReportAppliesAncestorIgnoreRulesToNestedDirectories exercises the
// stack discipline walkDir relies on: a root .oxenignore rule must still
// apply several directories down, layered on top of (not replaced by)
// that nested directory's own .oxenignore.
func TestReportAppliesAncestorIgnoreRulesToNestedDirectories(t *testing.T) {
	h := newHarness(t)
	h.write(t, "tracked.txt", "x")
	h.stage(t, "tracked.txt")
	head, err := h.commit.Commit("root", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(h.work, ".oxenignore"), []byte("*.log\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(h.work, "nested", "deeper"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.work, "nested", ".oxenignore"), []byte("*.tmp\n"), 0o644))

	h.write(t, "nested/deeper/build.log", "ignored by root rule")
	h.write(t, "nested/deeper/scratch.tmp", "ignored by nested rule")
	h.write(t, "nested/deeper/keep.txt", "untracked but not ignored")

	matcher := ignore.New()
	report, err := h.checker.Report(h.work, head.Hash(), matcher)
	require.NoError(t, err)

	_, logReported := entryFor(report.Unstaged, "nested/deeper/build.log")
	require.False(t, logReported, "root .oxenignore rule should reach nested/deeper")

	_, tmpReported := entryFor(report.Unstaged, "nested/deeper/scratch.tmp")
	require.False(t, tmpReported, "nested .oxenignore rule should apply to its own subtree")

	keep, ok := entryFor(report.Unstaged, "nested/deeper/keep.txt")
	require.True(t, ok, "file matching no rule should still be reported")
	require.Equal(t, Untracked, keep.Kind)
}

func TestReportNeverWalksOxenDirectory(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(h.work, ".oxen"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.work, ".oxen", "config"), []byte("junk"), 0o644))

	report, err := h.checker.Report(h.work, head.Hash(), nil)
	require.NoError(t, err)

	_, ok := entryFor(report.Unstaged, ".oxen/config")
	require.False(t, ok)
}

func TestHasUncommittedChanges(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	dirty, err := h.checker.HasUncommittedChanges(h.work, head.Hash())
	require.NoError(t, err)
	require.False(t, dirty)

	h.write(t, "a.txt", "changed")
	dirty, err = h.checker.HasUncommittedChanges(h.work, head.Hash())
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestHasUncommittedChangesIgnoresUntrackedFiles(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.txt", "hello")
	h.stage(t, "a.txt")
	head, err := h.commit.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	h.write(t, "new.txt", "untracked")

	dirty, err := h.checker.HasUncommittedChanges(h.work, head.Hash())
	require.NoError(t, err)
	require.False(t, dirty)
}
