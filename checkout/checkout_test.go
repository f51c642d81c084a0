// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package checkout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Oxen-AI/oxen-release-sub010/committer"
	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/stager"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

func objectsHashZero() objects.Hash { return objects.Hash{} }

type harness struct {
	checkout *Checkout
	commits  *committer.Committer
	refs     *refstore.Store
	stager   *stager.Stager
	reader   *treereader.Reader
	work     string
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))

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

	return &harness{
		checkout: New(reader, refs, vs),
		commits:  committer.New(db, refs, reader, st),
		refs:     refs,
		stager:   st,
		reader:   reader,
		work:     work,
		root:     root,
	}
}

func (h *harness) writeAndStage(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(h.work, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	require.NoError(t, h.stager.Add(h.work, rel, stager.NoHead{}, nil))
}

func TestCheckoutFromZeroHeadMaterializesWholeTree(t *testing.T) {
	h := newHarness(t)
	h.writeAndStage(t, "a.txt", "hello")
	first, err := h.commits.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	// Detach HEAD at the zero hash, as a freshly cloned repo would be
	// before its first checkout: nothing is materialized yet, and the
	// diff against target must come from the empty tree, not from "main".
	require.NoError(t, h.refs.SetHeadToCommit(objectsHashZero()))
	require.NoError(t, os.RemoveAll(h.work))
	require.NoError(t, os.MkdirAll(h.work, 0o755))

	require.NoError(t, h.checkout.ToRef(h.work, first.Hash().String(), nil, Options{}))

	content, err := os.ReadFile(filepath.Join(h.work, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestCheckoutRemovesDeletedFileBetweenCommits(t *testing.T) {
	h := newHarness(t)
	h.writeAndStage(t, "a.txt", "hello")
	h.writeAndStage(t, "b.txt", "world")
	first, err := h.commits.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	// Rm needs HEAD to know b.txt is tracked, so it is given a real view
	// over the just-written commit rather than the NoHead stub.
	require.NoError(t, h.stager.Rm("b.txt", h.reader.BoundToCommit(first.Hash())))

	second, err := h.commits.Commit("remove b", "a", "a@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Hash(), second.Hash())

	// Commit advanced HEAD straight to "second"; rewind it to "first" so
	// the checkout below has something to actually transition between
	// (the working directory still holds b.txt from the first commit).
	require.NoError(t, h.refs.SetHeadToCommit(first.Hash()))

	require.NoError(t, h.checkout.ToRef(h.work, second.Hash().String(), nil, Options{Force: true}))
	_, err = os.Stat(filepath.Join(h.work, "b.txt"))
	require.True(t, os.IsNotExist(err))

	content, err := os.ReadFile(filepath.Join(h.work, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestRestoreSinglePathFromCommitDoesNotMoveHead(t *testing.T) {
	h := newHarness(t)
	h.writeAndStage(t, "a.txt", "v1")
	first, err := h.commits.Commit("first", "a", "a@example.com")
	require.NoError(t, err)

	h.writeAndStage(t, "a.txt", "v2")
	_, err = h.commits.Commit("second", "a", "a@example.com")
	require.NoError(t, err)

	require.NoError(t, h.checkout.Restore(h.work, "a.txt", first.Hash()))

	content, err := os.ReadFile(filepath.Join(h.work, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	head, err := h.refs.GetHead()
	require.NoError(t, err)
	require.NotEqual(t, first.Hash(), head.Commit)
}
