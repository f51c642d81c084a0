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

// Package stager implements the staging table described in spec §4.8: a
// path -> StagedEntry map backed by an embedded KV store (pebble),
// separate from NodeDB so it can be cleared atomically on commit.
package stager

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

// Status classifies a staged entry.
type Status byte

const (
	StagedAdded Status = iota + 1
	StagedModified
	StagedRemoved
)

// Entry is one row of the staging table.
type Entry struct {
	Status   Status
	Hash     objects.Hash // zero for StagedRemoved
	NumBytes uint64
	Node     *objects.FileNode // nil for StagedRemoved
}

// HeadTree is the read side of the committed tree the Stager compares
// against. treereader.CommitView (from Reader.BoundToCommit) satisfies it.
type HeadTree interface {
	// FileAt returns the FileNode committed at relPath in HEAD, if any.
	FileAt(relPath string) (*objects.FileNode, bool, error)
	// WalkFiles calls fn for every file reachable under dirPath (empty
	// dirPath walks the whole tree).
	WalkFiles(dirPath string, fn func(relPath string, f *objects.FileNode) error) error
}

// NoHead is used when the repository has no commits yet.
type NoHead struct{}

func (NoHead) FileAt(string) (*objects.FileNode, bool, error) { return nil, false, nil }
func (NoHead) WalkFiles(string, func(string, *objects.FileNode) error) error { return nil }

// Stager is the staging-table handle, rooted at <repo>/.oxen/staged.
type Stager struct {
	db    *pebble.DB
	store *versionstore.Store
}

// Open opens (creating if necessary) a Stager rooted at dir, storing
// file content through store.
func Open(dir string, store *versionstore.Store) (*Stager, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "stager.open", dir, err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "stager.open", dir, err)
	}
	return &Stager{db: db, store: store}, nil
}

// Close releases the staging table's file handles.
func (s *Stager) Close() error { return s.db.Close() }

// Add stages every file under workingRoot/relPath (a single file or a
// directory), comparing each against HEAD's FileNode. File content is
// written into VersionStore immediately, per spec §4.8, so that Commit
// only needs to persist Merkle nodes.
func (s *Stager) Add(workingRoot, relPath string, head HeadTree, isIgnored func(relPath string, isDir bool) bool) error {
	absPath := filepath.Join(workingRoot, relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		return oxenerr.Wrap(oxenerr.NotFound, "stager.add", relPath, err)
	}
	if info.IsDir() {
		return filepath.Walk(absPath, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel := toRel(workingRoot, p)
			if fi.IsDir() {
				if isIgnored != nil && isIgnored(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if isIgnored != nil && isIgnored(rel, false) {
				return nil
			}
			return s.addOne(rel, p, head)
		})
	}
	if isIgnored != nil && isIgnored(relPath, false) {
		return nil
	}
	return s.addOne(relPath, absPath, head)
}

func (s *Stager) addOne(relPath, absPath string, head HeadTree) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.add", relPath, err)
	}
	f, err := os.Open(absPath)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.add", relPath, err)
	}
	defer f.Close()

	fileHash, chunkHashes, err := s.store.PutChunked(f)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.add", relPath, err)
	}

	node := &objects.FileNode{
		Name:         filepath.Base(relPath),
		NumBytes:     uint64(info.Size()),
		LastModified: info.ModTime(),
		ChunkHashes:  chunkHashes,
	}
	node.SetHash(fileHash)

	prev, ok, err := head.FileAt(relPath)
	if err != nil {
		return err
	}
	if ok && prev.Hash() == fileHash {
		return s.clear(relPath) // identical to HEAD: idempotent, clear any stale entry
	}
	status := StagedAdded
	if ok {
		status = StagedModified
	}
	return s.put(relPath, Entry{Status: status, Hash: fileHash, NumBytes: node.NumBytes, Node: node})
}

// PutFile records a staged Added/Modified entry for relPath from a
// node the caller already hashed and persisted into VersionStore
// itself (e.g. treebuilder.Builder's parallel scan), without
// re-reading or re-hashing the file the way addOne does. It still
// collapses to a no-op clear when node's hash already matches HEAD's.
func (s *Stager) PutFile(relPath string, node *objects.FileNode, head HeadTree) error {
	prev, ok, err := head.FileAt(relPath)
	if err != nil {
		return err
	}
	if ok && prev.Hash() == node.Hash() {
		return s.clear(relPath)
	}
	status := StagedAdded
	if ok {
		status = StagedModified
	}
	return s.put(relPath, Entry{Status: status, Hash: node.Hash(), NumBytes: node.NumBytes, Node: node})
}

// MarkRemoved records a staged Removed entry directly for relPath,
// for callers that already know relPath is gone (e.g. a diff against
// HEAD) rather than discovering it by walking HEAD's tree the way Rm
// does.
func (s *Stager) MarkRemoved(relPath string) error {
	return s.put(relPath, Entry{Status: StagedRemoved})
}

// Rm records Removed for every file HEAD tracks under relPath, and
// drops any prior Added/Modified entry for those paths.
func (s *Stager) Rm(relPath string, head HeadTree) error {
	found := false
	err := head.WalkFiles(relPath, func(rel string, _ *objects.FileNode) error {
		found = true
		return s.put(rel, Entry{Status: StagedRemoved})
	})
	if err != nil {
		return err
	}
	if !found {
		// Not in HEAD: if it was only ever staged as Added, unstage it.
		return s.clear(relPath)
	}
	return nil
}

func (s *Stager) clear(relPath string) error {
	if err := s.db.Delete(key(relPath), pebble.Sync); err != nil && err != pebble.ErrNotFound {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.clear", relPath, err)
	}
	return nil
}

func (s *Stager) put(relPath string, e Entry) error {
	if err := s.db.Set(key(relPath), encodeEntry(e), pebble.Sync); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.put", relPath, err)
	}
	return nil
}

// Get returns the staged entry for relPath, if any.
func (s *Stager) Get(relPath string) (Entry, bool, error) {
	v, closer, err := s.db.Get(key(relPath))
	if err == pebble.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, oxenerr.Wrap(oxenerr.TransportError, "stager.get", relPath, err)
	}
	defer closer.Close()
	e, err := decodeEntry(v)
	if err != nil {
		return Entry{}, false, oxenerr.Wrap(oxenerr.IntegrityError, "stager.get", relPath, err)
	}
	return e, true, nil
}

// All returns every staged path and entry as a map (unordered; Paths
// returns the sorted path list), for Commit and Status to fold over.
func (s *Stager) All() (map[string]Entry, error) {
	out := make(map[string]Entry)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "stager.all", "", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		relPath := string(iter.Key())
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return nil, oxenerr.Wrap(oxenerr.IntegrityError, "stager.all", relPath, err)
		}
		out[relPath] = e
	}
	if err := iter.Error(); err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "stager.all", "", err)
	}
	return out, nil
}

// Paths returns every staged path, sorted.
func (s *Stager) Paths() ([]string, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for p := range all {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Clear empties the staging table, after a successful commit (spec §4.9
// step 5).
func (s *Stager) Clear() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.clear_all", "", err)
	}
	defer iter.Close()
	batch := s.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return oxenerr.Wrap(oxenerr.TransportError, "stager.clear_all", "", err)
		}
	}
	if err := iter.Error(); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "stager.clear_all", "", err)
	}
	return batch.Commit(pebble.Sync)
}

func key(relPath string) []byte { return []byte(relPath) }

func toRel(root, absPath string) string {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

// encodeEntry/decodeEntry use a small fixed layout rather than the
// canonical node codec: [status(1)][hash(16)][num_bytes(uvarint)][node
// bytes...] (node bytes empty for StagedRemoved, and equal to
// FileNode.Encode() otherwise).
func encodeEntry(e Entry) []byte {
	var buf []byte
	buf = append(buf, byte(e.Status))
	buf = append(buf, e.Hash.Bytes()...)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], e.NumBytes)
	buf = append(buf, lenBuf[:n]...)
	if e.Node != nil {
		buf = append(buf, e.Node.Encode()...)
	}
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 1+oxenhash.Size {
		return Entry{}, oxenerr.New(oxenerr.IntegrityError, "stager.decode_entry", "")
	}
	e := Entry{Status: Status(b[0])}
	copy(e.Hash[:], b[1:1+oxenhash.Size])
	rest := b[1+oxenhash.Size:]
	numBytes, n := binary.Uvarint(rest)
	if n <= 0 {
		return Entry{}, oxenerr.New(oxenerr.IntegrityError, "stager.decode_entry", "")
	}
	e.NumBytes = numBytes
	rest = rest[n:]
	if len(rest) > 0 {
		node, err := objects.Decode(rest)
		if err != nil {
			return Entry{}, err
		}
		fn, ok := node.(*objects.FileNode)
		if !ok {
			return Entry{}, oxenerr.New(oxenerr.IntegrityError, "stager.decode_entry", "")
		}
		fn.SetHash(e.Hash)
		e.Node = fn
	}
	return e, nil
}
