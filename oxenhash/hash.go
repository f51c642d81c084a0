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

// Package oxenhash computes the 128-bit content hashes that address every
// blob and every Merkle node in the repository. It wraps xxh3-128 (a
// non-cryptographic, high-throughput hash) seeded with a fixed constant so
// that hashes are reproducible across processes and hosts.
package oxenhash

import (
	"encoding/hex"
	"errors"
	"io"

	"github.com/zeebo/xxh3"
)

// Seed is the fixed xxh3 seed used everywhere in the repository. Changing
// it would change the hash of every object ever stored, so it is never
// configurable.
const Seed uint64 = 0x4f58454e5f434f52 // ASCII "OXEN_COR"

// Size is the length of a Hash in bytes.
const Size = 16

// Hash is a 128-bit content hash, displayed as lowercase hex.
type Hash [Size]byte

// Zero is the all-zero hash, used as a sentinel for "no parent" and similar.
var Zero Hash

// String renders the hash as 32 lowercase hex characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Bytes returns a copy of the hash's raw bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// ParseHash decodes a 32-character lowercase hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != Size*2 {
		return h, errors.New("oxenhash: hash string has wrong length")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// MustParseHash is ParseHash but panics on error; for constants and tests.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// fromUint128 lays out a 128-bit xxh3 digest into a Hash, high qword first,
// so that String() produces the same hex ordering regardless of host
// endianness.
func fromUint128(u xxh3.Uint128) Hash {
	var h Hash
	hi, lo := u.Hi, u.Lo
	for i := 7; i >= 0; i-- {
		h[i] = byte(hi)
		hi >>= 8
	}
	for i := 15; i >= 8; i-- {
		h[i] = byte(lo)
		lo >>= 8
	}
	return h
}

// HashBytes hashes a buffer already resident in memory.
func HashBytes(buf []byte) Hash {
	return fromUint128(xxh3.HashSeed128(buf, Seed))
}

// HashStream hashes the entirety of r without requiring the whole stream
// to be resident in memory at once.
func HashStream(r io.Reader) (Hash, error) {
	h := xxh3.NewSeed(Seed)
	if _, err := io.Copy(h, r); err != nil {
		return Hash{}, err
	}
	return fromUint128(h.Sum128()), nil
}

// StreamHasher incrementally accumulates a hash across multiple Write
// calls, for callers (chunkers, node builders) that produce bytes
// piecemeal rather than from a single io.Reader.
type StreamHasher struct {
	h *xxh3.Hasher
}

// NewStreamHasher returns a StreamHasher seeded with the fixed Oxen seed.
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{h: xxh3.NewSeed(Seed)}
}

func (s *StreamHasher) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

// Sum returns the hash of everything written so far.
func (s *StreamHasher) Sum() Hash {
	return fromUint128(s.h.Sum128())
}

// Reset clears the hasher back to its initial seeded state for reuse.
func (s *StreamHasher) Reset() {
	s.h.Reset()
}
