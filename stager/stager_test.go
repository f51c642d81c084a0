// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package stager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
	"github.com/stretchr/testify/require"
)

func newTestStager(t *testing.T) (*Stager, string) {
	t.Helper()
	root := t.TempDir()
	vs, err := versionstore.New(filepath.Join(root, "versions"))
	require.NoError(t, err)
	s, err := Open(filepath.Join(root, "staged"), vs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, root
}

func writeWorkingFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

type fakeHead struct {
	files map[string]*objects.FileNode
}

func (h fakeHead) FileAt(rel string) (*objects.FileNode, bool, error) {
	f, ok := h.files[rel]
	return f, ok, nil
}

func (h fakeHead) WalkFiles(dirPath string, fn func(string, *objects.FileNode) error) error {
	for rel, f := range h.files {
		if dirPath == "" || rel == dirPath || len(rel) > len(dirPath) && rel[:len(dirPath)+1] == dirPath+"/" {
			if err := fn(rel, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestAddNewFileStagesAdded(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "a.txt", "hello")

	require.NoError(t, s.Add(root, "a.txt", NoHead{}, nil))

	e, ok, err := s.Get("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StagedAdded, e.Status)
}

func TestAddIdenticalToHeadClearsEntry(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "a.txt", "hello")

	f := &objects.FileNode{Name: "a.txt", NumBytes: 5}
	require.NoError(t, s.Add(root, "a.txt", NoHead{}, nil)) // stage it once
	staged, _, err := s.Get("a.txt")
	require.NoError(t, err)
	f.SetHash(staged.Hash)

	head := fakeHead{files: map[string]*objects.FileNode{"a.txt": f}}
	require.NoError(t, s.Add(root, "a.txt", head, nil))

	_, ok, err := s.Get("a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddChangedFromHeadStagesModified(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "a.txt", "new-content")

	oldNode := &objects.FileNode{Name: "a.txt", NumBytes: 3}
	var oldHash objects.Hash
	oldHash[0] = 0x99
	oldNode.SetHash(oldHash)

	head := fakeHead{files: map[string]*objects.FileNode{"a.txt": oldNode}}
	require.NoError(t, s.Add(root, "a.txt", head, nil))

	e, ok, err := s.Get("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StagedModified, e.Status)
}

func TestAddDirectoryRecurses(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "dir/a.txt", "a")
	writeWorkingFile(t, root, "dir/b.txt", "b")

	require.NoError(t, s.Add(root, "dir", NoHead{}, nil))

	paths, err := s.Paths()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dir/a.txt", "dir/b.txt"}, paths)
}

func TestAddRespectsIgnoreFunc(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "keep.txt", "keep")
	writeWorkingFile(t, root, "skip.txt", "skip")

	ignored := func(rel string, isDir bool) bool { return rel == "skip.txt" }
	require.NoError(t, s.Add(root, "keep.txt", NoHead{}, ignored))
	require.NoError(t, s.Add(root, "skip.txt", NoHead{}, ignored))

	paths, err := s.Paths()
	require.NoError(t, err)
	require.Equal(t, []string{"keep.txt"}, paths)
}

func TestRmRecordsRemovedForHeadFiles(t *testing.T) {
	s, _ := newTestStager(t)
	f := &objects.FileNode{Name: "gone.txt", NumBytes: 1}
	head := fakeHead{files: map[string]*objects.FileNode{"gone.txt": f}}

	require.NoError(t, s.Rm("gone.txt", head))

	e, ok, err := s.Get("gone.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StagedRemoved, e.Status)
}

func TestRmUnstagesAddedPathNotInHead(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "new.txt", "x")
	require.NoError(t, s.Add(root, "new.txt", NoHead{}, nil))

	require.NoError(t, s.Rm("new.txt", NoHead{}))

	_, ok, err := s.Get("new.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearEmptiesTable(t *testing.T) {
	s, root := newTestStager(t)
	writeWorkingFile(t, root, "a.txt", "a")
	require.NoError(t, s.Add(root, "a.txt", NoHead{}, nil))

	require.NoError(t, s.Clear())

	paths, err := s.Paths()
	require.NoError(t, err)
	require.Empty(t, paths)
}
