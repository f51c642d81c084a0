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

// Package versionstore implements the content-addressed blob store:
// hash -> bytes, with optional chunking for large files. Every blob lives
// at versions/<hash[0:2]>/<hash[2:4]>/<hash> so no directory holds more
// than a few thousand entries.
package versionstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get/Open when the requested hash is absent.
var ErrNotFound = errors.New("versionstore: hash not found")

const (
	defaultRetries    = 5
	defaultBackoff    = 50 * time.Millisecond
	defaultCacheBytes = 64 << 20 // 64 MiB hot-blob cache
)

// Store is the on-disk, content-addressed blob store described in spec
// §4.2. It is safe for concurrent Put/Get: content-addressed writes are
// idempotent, and Put never truncates a path another writer might be
// reading.
type Store struct {
	root      string // <repo>/.oxen/versions
	chunkSize int
	cache     *fastcache.Cache
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithChunkSize overrides DefaultChunkSize, e.g. from OXEN_CHUNK_SIZE.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithCacheBytes overrides the hot-blob read cache size.
func WithCacheBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cache = fastcache.New(n)
		}
	}
}

// New opens (creating if necessary) a Store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "versionstore.new", dir, err)
	}
	s := &Store{
		root:      dir,
		chunkSize: DefaultChunkSize,
		cache:     fastcache.New(defaultCacheBytes),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) pathFor(h oxenhash.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[0:2], hex[2:4], hex)
}

// Exists reports whether a blob for h is present.
func (s *Store) Exists(h oxenhash.Hash) (bool, error) {
	if s.cache.Has(h[:]) {
		return true, nil
	}
	_, err := os.Stat(s.pathFor(h))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, oxenerr.Wrap(oxenerr.TransportError, "versionstore.exists", h.String(), err)
}

// Put stores buf under its content hash. Idempotent: storing the same
// bytes twice is a no-op the second time and yields the same hash. It
// returns only after bytes are durably written (fsync on file and
// containing directory).
func (s *Store) Put(buf []byte) (oxenhash.Hash, error) {
	h := oxenhash.HashBytes(buf)
	if ok, _ := s.Exists(h); ok {
		return h, nil
	}
	if err := s.writeWithRetry(h, func(dst string) error {
		return writeFileDurable(dst, buf)
	}); err != nil {
		return h, err
	}
	s.cache.Set(h[:], buf)
	return h, nil
}

// Get returns the bytes stored under h, verified against h (spec §3:
// "Loaders verify this on read"). A cache hit is not re-verified: it was
// already checked the first time it entered the cache, either here or in
// Put, which only ever caches bytes it just hashed itself.
func (s *Store) Get(h oxenhash.Hash) ([]byte, error) {
	if b, ok := s.cache.HasGet(nil, h[:]); ok {
		return b, nil
	}
	b, err := os.ReadFile(s.pathFor(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxenerr.Wrap(oxenerr.NotFound, "versionstore.get", h.String(), ErrNotFound)
		}
		return nil, oxenerr.Wrap(oxenerr.TransportError, "versionstore.get", h.String(), err)
	}
	if got := oxenhash.HashBytes(b); got != h {
		return nil, oxenerr.Wrap(oxenerr.IntegrityError, "versionstore.get", h.String(), fmt.Errorf("hash mismatch: stored bytes hash to %s", got))
	}
	s.cache.Set(h[:], b)
	return b, nil
}

// Open returns a reader over the bytes stored under h, for a single
// unchunked blob (see OpenChunked for chunked files). The returned reader
// verifies the full stream against h as it is consumed (spec §3), failing
// the final Read with an IntegrityError rather than io.EOF on mismatch.
func (s *Store) Open(h oxenhash.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxenerr.Wrap(oxenerr.NotFound, "versionstore.open", h.String(), ErrNotFound)
		}
		return nil, oxenerr.Wrap(oxenerr.TransportError, "versionstore.open", h.String(), err)
	}
	return &verifyingReader{rc: f, want: h, hasher: oxenhash.NewStreamHasher()}, nil
}

// verifyingReader hashes bytes as they are read and checks the running
// digest against want once the underlying reader reports io.EOF, so blob
// corruption is caught by streaming consumers (e.g. checkout) without
// buffering the whole blob in memory first.
type verifyingReader struct {
	rc     io.ReadCloser
	want   oxenhash.Hash
	hasher *oxenhash.StreamHasher
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		_, _ = r.hasher.Write(p[:n])
	}
	if err == io.EOF {
		if got := r.hasher.Sum(); got != r.want {
			return n, oxenerr.Wrap(oxenerr.IntegrityError, "versionstore.open", r.want.String(), fmt.Errorf("hash mismatch: stored bytes hash to %s", got))
		}
	}
	return n, err
}

func (r *verifyingReader) Close() error {
	return r.rc.Close()
}

// PutChunked streams r, emitting fixed-size chunks (the last may be
// shorter), storing each chunk via Put, and returns the whole-file hash
// (computed over the raw stream, independent of chunking — spec §4.1)
// alongside the ordered chunk hashes.
func (s *Store) PutChunked(r io.Reader) (fileHash oxenhash.Hash, chunkHashes []oxenhash.Hash, err error) {
	fh := oxenhash.NewStreamHasher()
	buf := make([]byte, s.chunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := fh.Write(chunk); werr != nil {
				return oxenhash.Hash{}, nil, werr
			}
			ch, perr := s.Put(chunk)
			if perr != nil {
				return oxenhash.Hash{}, nil, perr
			}
			chunkHashes = append(chunkHashes, ch)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return oxenhash.Hash{}, nil, oxenerr.Wrap(oxenerr.TransportError, "versionstore.put_chunked", "", readErr)
		}
	}
	if len(chunkHashes) == 0 {
		// Zero-byte file: still has one (empty) chunk for consistency
		// with "below threshold" files being their own single chunk.
		ch, perr := s.Put(nil)
		if perr != nil {
			return oxenhash.Hash{}, nil, perr
		}
		chunkHashes = append(chunkHashes, ch)
	}
	return fh.Sum(), chunkHashes, nil
}

// OpenChunked returns a reader that concatenates the bytes of every chunk
// in order, for a FileNode whose ChunkHashes names more than one chunk.
func (s *Store) OpenChunked(chunkHashes []oxenhash.Hash) (io.ReadCloser, error) {
	return &chunkReader{store: s, hashes: chunkHashes}, nil
}

type chunkReader struct {
	store  *Store
	hashes []oxenhash.Hash
	idx    int
	cur    io.ReadCloser
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if c.idx >= len(c.hashes) {
				return 0, io.EOF
			}
			r, err := c.store.Open(c.hashes[c.idx])
			if err != nil {
				return 0, err
			}
			c.cur = r
			c.idx++
		}
		n, err := c.cur.Read(p)
		if err == io.EOF {
			_ = c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *chunkReader) Close() error {
	if c.cur != nil {
		return c.cur.Close()
	}
	return nil
}

// writeWithRetry retries transient I/O errors with bounded backoff;
// ENOSPC is reported fatally without retry (spec §4.2 failure semantics).
func (s *Store) writeWithRetry(h oxenhash.Hash, write func(dst string) error) error {
	dst := s.pathFor(h)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return oxenerr.Wrap(oxenerr.InvalidInput, "versionstore.put", h.String(), err)
	}
	var lastErr error
	for attempt := 0; attempt < defaultRetries; attempt++ {
		err := write(dst)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.ENOSPC) {
			return oxenerr.Wrap(oxenerr.InvalidInput, "versionstore.put", h.String(), fmt.Errorf("no space left on device: %w", err))
		}
		lastErr = err
		log.Warn("versionstore: transient write failure, retrying", "hash", h.String(), "attempt", attempt, "err", err)
		time.Sleep(defaultBackoff * time.Duration(attempt+1))
	}
	return oxenerr.Wrap(oxenerr.TransportError, "versionstore.put", h.String(), lastErr)
}

// writeFileDurable writes data to a unique temp file in dst's directory,
// fsyncs it, renames it into place and then fsyncs the directory, so a
// crash never leaves a partially-written blob visible.
func writeFileDurable(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}
