// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package refstore

import (
	"testing"

	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetRef(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	h := oxenhash.HashBytes([]byte("commit"))
	require.NoError(t, s.SetRef("main", h))

	got, err := s.GetRef("main")
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestGetRefMissingIsNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = s.GetRef("main")
	require.True(t, oxenerr.Is(err, oxenerr.NotFound))
}

func TestEmptyInitHeadPointsAtMainWithNoCommit(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SetHeadToRef("main"))

	head, err := s.GetHead()
	require.NoError(t, err)
	require.True(t, head.Attached())
	require.Equal(t, "main", head.RefName)
	require.True(t, head.Commit.IsZero())
}

func TestDetachedHead(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	h := oxenhash.HashBytes([]byte("detached-at-me"))
	require.NoError(t, s.SetHeadToCommit(h))

	head, err := s.GetHead()
	require.NoError(t, err)
	require.False(t, head.Attached())
	require.Equal(t, h, head.Commit)
}

func TestListRefs(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SetRef("main", oxenhash.HashBytes([]byte("a"))))
	require.NoError(t, s.SetRef("dev", oxenhash.HashBytes([]byte("b"))))

	names, err := s.ListRefs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"main", "dev"}, names)
}

func TestDeleteRef(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.SetRef("main", oxenhash.HashBytes([]byte("a"))))
	require.NoError(t, s.DeleteRef("main"))
	_, err = s.GetRef("main")
	require.Error(t, err)
}
