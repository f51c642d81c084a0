// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package versionstore

import (
	"bytes"
	"io"
	"testing"

	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello world")

	h, err := s.Put(data)
	require.NoError(t, err)

	got, err := s.Get(h)
	require.NoError(t, err)
	require.Equal(t, data, got)

	ok, err := s.Exists(h)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same bytes")

	h1, err := s.Put(data)
	require.NoError(t, err)
	h2, err := s.Put(data)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(oxenhash.HashBytes([]byte("never stored")))
	require.Error(t, err)
}

func TestPutChunkedSmallFileIsOneChunk(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hi\n")

	fileHash, chunks, err := s.PutChunked(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, oxenhash.HashBytes(data), fileHash)
}

func TestPutChunkedExactlyChunkSizeIsOneChunk(t *testing.T) {
	s, err := New(t.TempDir(), WithChunkSize(16))
	require.NoError(t, err)
	data := bytes.Repeat([]byte{1}, 16)

	_, chunks, err := s.PutChunked(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestPutChunkedOneByteOverThresholdIsTwoChunks(t *testing.T) {
	s, err := New(t.TempDir(), WithChunkSize(16))
	require.NoError(t, err)
	data := bytes.Repeat([]byte{1}, 17)

	_, chunks, err := s.PutChunked(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

func TestPutChunkedLargeFileProducesExpectedChunkCount(t *testing.T) {
	s, err := New(t.TempDir(), WithChunkSize(16<<20))
	require.NoError(t, err)
	data := bytes.Repeat([]byte{7}, 40<<20) // 40 MiB

	fileHash, chunks, err := s.PutChunked(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, oxenhash.HashBytes(data), fileHash)

	r, err := s.OpenChunked(chunks)
	require.NoError(t, err)
	defer r.Close()
	reassembled, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, reassembled))
}

func TestModifyingSecondChunkChangesOnlyThatChunkHash(t *testing.T) {
	s, err := New(t.TempDir(), WithChunkSize(16<<20))
	require.NoError(t, err)
	data := bytes.Repeat([]byte{7}, 40<<20)

	_, chunksBefore, err := s.PutChunked(bytes.NewReader(data))
	require.NoError(t, err)

	modified := make([]byte, len(data))
	copy(modified, data)
	modified[24<<20] ^= 0xFF // flip a byte in the second chunk

	_, chunksAfter, err := s.PutChunked(bytes.NewReader(modified))
	require.NoError(t, err)

	require.Equal(t, chunksBefore[0], chunksAfter[0])
	require.NotEqual(t, chunksBefore[1], chunksAfter[1])
	require.Equal(t, chunksBefore[2], chunksAfter[2])
}

func TestCorruptedBlobFailsHashVerificationOnGetAndOpen(t *testing.T) {
	s := newTestStore(t)
	data := []byte("tamper me")
	h, err := s.Put(data)
	require.NoError(t, err)

	// Evict the cache entry so the corrupted bytes are actually read
	// from disk, then tamper with the on-disk blob directly.
	s.cache.Del(h[:])
	require.NoError(t, writeFileDurable(s.pathFor(h), []byte("TAMPERED!")))

	_, err = s.Get(h)
	require.Error(t, err)
	require.True(t, oxenerr.Is(err, oxenerr.IntegrityError))

	r, err := s.Open(h)
	require.NoError(t, err) // corruption is only detectable once the stream is drained
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, r.Close())
	require.Error(t, err)
	require.True(t, oxenerr.Is(err, oxenerr.IntegrityError))
}
