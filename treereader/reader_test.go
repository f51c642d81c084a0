// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package treereader

import (
	"testing"
	"time"

	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/stretchr/testify/require"
)

func newTestReader(t *testing.T) (*Reader, *nodedb.DB) {
	t.Helper()
	db, err := nodedb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r, err := New(db, 0)
	require.NoError(t, err)
	return r, db
}

func buildSimpleCommit(t *testing.T, db *nodedb.DB) (objects.Hash, *objects.FileNode) {
	t.Helper()
	f := &objects.FileNode{Name: "a.txt", NumBytes: 3, LastModified: time.Now()}
	v := &objects.VNode{Entries: []objects.VEntry{
		{Name: "a.txt", Kind: objects.EntryFile, Hash: f.Hash()},
	}}
	d := &objects.DirNode{Name: ".", ChildrenHash: v.Hash(), NumBytes: 3}
	c := &objects.CommitNode{RootDirHash: d.Hash(), Message: "first", Author: "tester"}

	require.NoError(t, db.PutNodes(c.Hash(), []objects.Node{f, v, d, c}))
	return c.Hash(), f
}

func TestGetRootAndListChildren(t *testing.T) {
	r, db := newTestReader(t)
	commit, f := buildSimpleCommit(t, db)

	root, err := r.GetRoot(commit)
	require.NoError(t, err)

	entries, err := r.ListChildren(commit, root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, f.Hash(), entries[0].Hash)
}

func TestGetDirNestedPath(t *testing.T) {
	r, db := newTestReader(t)

	leaf := &objects.FileNode{Name: "b.txt", NumBytes: 1}
	leafVNode := &objects.VNode{Entries: []objects.VEntry{
		{Name: "b.txt", Kind: objects.EntryFile, Hash: leaf.Hash()},
	}}
	nested := &objects.DirNode{Name: "nested", ChildrenHash: leafVNode.Hash()}
	rootVNode := &objects.VNode{Entries: []objects.VEntry{
		{Name: "nested", Kind: objects.EntryDir, Hash: nested.Hash()},
	}}
	root := &objects.DirNode{Name: ".", ChildrenHash: rootVNode.Hash()}
	commit := &objects.CommitNode{RootDirHash: root.Hash()}

	require.NoError(t, db.PutNodes(commit.Hash(), []objects.Node{leaf, leafVNode, nested, rootVNode, root, commit}))

	got, err := r.GetDir(commit.Hash(), "nested")
	require.NoError(t, err)
	require.Equal(t, nested.Hash(), got.Hash())
}

func TestMissingNodeYieldsMissingNodeError(t *testing.T) {
	r, _ := newTestReader(t)
	bogus := oxenhash.HashBytes([]byte("does-not-exist"))

	_, err := r.GetCommit(bogus)
	var mn *MissingNodeError
	require.ErrorAs(t, err, &mn)
	require.Equal(t, bogus, mn.Hash)
}

func TestFlattenResolvesBucketIndexVNodes(t *testing.T) {
	r, db := newTestReader(t)

	fileA := &objects.FileNode{Name: "a", NumBytes: 1}
	fileB := &objects.FileNode{Name: "b", NumBytes: 1}
	bucket0 := &objects.VNode{Entries: []objects.VEntry{{Name: "a", Kind: objects.EntryFile, Hash: fileA.Hash()}}}
	bucket1 := &objects.VNode{Entries: []objects.VEntry{{Name: "b", Kind: objects.EntryFile, Hash: fileB.Hash()}}}
	index := &objects.VNode{Entries: []objects.VEntry{
		{Name: "0", Kind: objects.EntryVNode, Hash: bucket0.Hash()},
		{Name: "1", Kind: objects.EntryVNode, Hash: bucket1.Hash()},
	}}
	root := &objects.DirNode{Name: ".", ChildrenHash: index.Hash()}
	commit := &objects.CommitNode{RootDirHash: root.Hash()}

	require.NoError(t, db.PutNodes(commit.Hash(), []objects.Node{fileA, fileB, bucket0, bucket1, index, root, commit}))

	got, err := r.GetRoot(commit.Hash())
	require.NoError(t, err)
	entries, err := r.ListChildren(commit.Hash(), got)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestPreviousTreeFindsUnchangedFile(t *testing.T) {
	r, db := newTestReader(t)
	commit, f := buildSimpleCommit(t, db)

	pt := NewPreviousTree(r, commit)
	got, ok := pt.PreviousFile("a.txt")
	require.True(t, ok)
	require.Equal(t, f.Hash(), got.Hash())
}

func TestPreviousTreeMissingFileReturnsFalse(t *testing.T) {
	r, db := newTestReader(t)
	commit, _ := buildSimpleCommit(t, db)

	pt := NewPreviousTree(r, commit)
	_, ok := pt.PreviousFile("nope.txt")
	require.False(t, ok)
}
