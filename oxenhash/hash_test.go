// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package oxenhash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world"))
	require.Equal(t, a, b)
	require.NotEqual(t, Zero, a)
}

func TestHashBytesDiffersOnContent(t *testing.T) {
	a := HashBytes([]byte("hi\n"))
	b := HashBytes([]byte("hello\n"))
	require.NotEqual(t, a, b)
}

func TestHashStreamMatchesHashBytes(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 1<<20+17)
	want := HashBytes(data)
	got, err := HashStream(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestStreamHasherMatchesOneShot(t *testing.T) {
	part1 := []byte("hello ")
	part2 := []byte("world")
	want := HashBytes(append(append([]byte{}, part1...), part2...))

	sh := NewStreamHasher()
	_, _ = sh.Write(part1)
	_, _ = sh.Write(part2)
	require.Equal(t, want, sh.Sum())
}

func TestParseHashRoundTrip(t *testing.T) {
	h := HashBytes([]byte("round trip"))
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestParseHashRejectsBadLength(t *testing.T) {
	_, err := ParseHash("deadbeef")
	require.Error(t, err)
}

func TestZeroHash(t *testing.T) {
	var h Hash
	require.True(t, h.IsZero())
	require.False(t, HashBytes([]byte("x")).IsZero())
}
