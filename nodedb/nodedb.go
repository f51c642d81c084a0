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

// Package nodedb is the keyed store for Merkle nodes described in spec
// §4.3: one append-only file per node kind per commit, plus a per-commit
// index (hash -> offset/length) and a global secondary index
// (node_hash -> commit_hash[]) that lets callers resolve a node without
// knowing which commit wrote it.
package nodedb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func filenameFor(k objects.Kind) (string, error) {
	switch k {
	case objects.KindCommit:
		return "commits", nil
	case objects.KindDir:
		return "dirs", nil
	case objects.KindVNode:
		return "vnodes", nil
	case objects.KindFile:
		return "files", nil
	case objects.KindSchema:
		return "schemas", nil
	default:
		return "", fmt.Errorf("nodedb: unknown kind %d", k)
	}
}

// indexEntry locates one node's record within a commit's per-kind file.
type indexEntry struct {
	kind   objects.Kind
	offset int64
	length int64
}

// commitIndex is the parsed, in-memory form of one commit's index file.
type commitIndex struct {
	mu      sync.RWMutex
	entries map[oxenhash.Hash]indexEntry
}

// DB is the NodeDB handle, rooted at <repo>/.oxen/nodes.
type DB struct {
	root string

	mu      sync.Mutex
	indices map[oxenhash.Hash]*commitIndex // loaded on demand, never evicted (commits are small)

	global *leveldb.DB // one key per (node, commit) pair: node_hash(16) ":" commit_hash(hex) -> commit_hash(16)
}

// Open opens (creating if necessary) a NodeDB rooted at dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.open", dir, err)
	}
	g, err := leveldb.OpenFile(filepath.Join(dir, "global.ldb"), nil)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.open", dir, err)
	}
	return &DB{
		root:    dir,
		indices: make(map[oxenhash.Hash]*commitIndex),
		global:  g,
	}, nil
}

// Close releases the global index's file handles.
func (db *DB) Close() error {
	return db.global.Close()
}

func (db *DB) commitDir(commitHash oxenhash.Hash) string {
	return filepath.Join(db.root, commitHash.String())
}

// PutNodes appends nodes to commitHash's per-kind files, builds/updates
// its index, and records each node hash in the global secondary index.
// The per-kind files and the index file are fsynced before returning; the
// global index batch is written without a sync.
func (db *DB) PutNodes(commitHash oxenhash.Hash, nodes []objects.Node) error {
	dir := db.commitDir(commitHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.put_nodes", commitHash.String(), err)
	}

	byKind := make(map[objects.Kind][]objects.Node)
	for _, n := range nodes {
		byKind[n.Kind()] = append(byKind[n.Kind()], n)
	}

	db.mu.Lock()
	idx, ok := db.indices[commitHash]
	if !ok {
		idx = &commitIndex{entries: make(map[oxenhash.Hash]indexEntry)}
		db.indices[commitHash] = idx
	}
	db.mu.Unlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	batch := new(leveldb.Batch)
	for kind, kindNodes := range byKind {
		name, err := filenameFor(kind)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.put_nodes", commitHash.String(), err)
		}
		offset, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			f.Close()
			return oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.put_nodes", commitHash.String(), err)
		}
		for _, n := range kindNodes {
			h := n.Hash()
			compressed := snappy.Encode(nil, n.Encode())
			record := encodeRecord(kind, compressed)
			if _, err := f.Write(record); err != nil {
				f.Close()
				return oxenerr.Wrap(oxenerr.TransportError, "nodedb.put_nodes", h.String(), err)
			}
			idx.entries[h] = indexEntry{kind: kind, offset: offset, length: int64(len(record))}
			offset += int64(len(record))
			batch.Put(append(h.Bytes(), []byte(":"+commitHash.String())...), commitHash.Bytes())
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return oxenerr.Wrap(oxenerr.TransportError, "nodedb.put_nodes", commitHash.String(), err)
		}
		if err := f.Close(); err != nil {
			return oxenerr.Wrap(oxenerr.TransportError, "nodedb.put_nodes", commitHash.String(), err)
		}
	}
	if err := db.global.Write(batch, nil); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "nodedb.put_nodes", commitHash.String(), err)
	}
	if err := writeIndexFile(dir, idx); err != nil {
		return err
	}
	return nil
}

// encodeRecord frames one node as len(uvarint of kind+payload) | kind(1) | payload.
func encodeRecord(kind objects.Kind, payload []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(payload)+1))
	out := make([]byte, 0, n+1+len(payload))
	out = append(out, lenBuf[:n]...)
	out = append(out, byte(kind))
	out = append(out, payload...)
	return out
}

func writeIndexFile(dir string, idx *commitIndex) error {
	path := filepath.Join(dir, "index")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return oxenerr.Wrap(oxenerr.InvalidInput, "nodedb.write_index", dir, err)
	}
	defer f.Close()
	for h, e := range idx.entries {
		var rec [objects.Size + 1 + 8 + 8]byte
		copy(rec[:objects.Size], h[:])
		rec[objects.Size] = byte(e.kind)
		binary.LittleEndian.PutUint64(rec[objects.Size+1:], uint64(e.offset))
		binary.LittleEndian.PutUint64(rec[objects.Size+9:], uint64(e.length))
		if _, err := f.Write(rec[:]); err != nil {
			return oxenerr.Wrap(oxenerr.TransportError, "nodedb.write_index", dir, err)
		}
	}
	return f.Sync()
}

func (db *DB) loadIndex(commitHash oxenhash.Hash) (*commitIndex, error) {
	db.mu.Lock()
	if idx, ok := db.indices[commitHash]; ok {
		db.mu.Unlock()
		return idx, nil
	}
	db.mu.Unlock()

	path := filepath.Join(db.commitDir(commitHash), "index")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oxenerr.Wrap(oxenerr.NotFound, "nodedb.load_index", commitHash.String(), err)
		}
		return nil, oxenerr.Wrap(oxenerr.TransportError, "nodedb.load_index", commitHash.String(), err)
	}
	const recSize = objects.Size + 1 + 8 + 8
	if len(b)%recSize != 0 {
		return nil, oxenerr.New(oxenerr.IntegrityError, "nodedb.load_index", commitHash.String())
	}
	idx := &commitIndex{entries: make(map[oxenhash.Hash]indexEntry, len(b)/recSize)}
	for off := 0; off < len(b); off += recSize {
		var h oxenhash.Hash
		copy(h[:], b[off:off+objects.Size])
		kind := objects.Kind(b[off+objects.Size])
		offset := binary.LittleEndian.Uint64(b[off+objects.Size+1:])
		length := binary.LittleEndian.Uint64(b[off+objects.Size+9:])
		idx.entries[h] = indexEntry{kind: kind, offset: int64(offset), length: int64(length)}
	}

	db.mu.Lock()
	db.indices[commitHash] = idx
	db.mu.Unlock()
	return idx, nil
}

// GetNode loads a single node by (commit, node hash), verifying its
// content hash on read (spec §3 invariants: "Loaders verify this on
// read"). FileNodes are the exception: a FileNode's hash is its file's
// content hash, which the record does not hold, so it is set from
// nodeHash rather than checked.
func (db *DB) GetNode(commitHash, nodeHash oxenhash.Hash) (objects.Node, error) {
	idx, err := db.loadIndex(commitHash)
	if err != nil {
		return nil, err
	}
	idx.mu.RLock()
	entry, ok := idx.entries[nodeHash]
	idx.mu.RUnlock()
	if !ok {
		return nil, oxenerr.New(oxenerr.NotFound, "nodedb.get_node", nodeHash.String())
	}
	name, err := filenameFor(entry.kind)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(db.commitDir(commitHash), name))
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "nodedb.get_node", nodeHash.String(), err)
	}
	defer f.Close()
	buf := make([]byte, entry.length)
	if _, err := f.ReadAt(buf, entry.offset); err != nil {
		return nil, oxenerr.Wrap(oxenerr.IntegrityError, "nodedb.get_node", nodeHash.String(), err)
	}
	n, err := decodeAndVerify(buf, nodeHash)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.IntegrityError, "nodedb.get_node", nodeHash.String(), err)
	}
	return n, nil
}

func decodeAndVerify(record []byte, expect oxenhash.Hash) (objects.Node, error) {
	_, payloadLen := uvarintAt(record)
	if payloadLen <= 0 {
		return nil, fmt.Errorf("nodedb: malformed record")
	}
	rest := record[payloadLen:]
	if len(rest) < 1 {
		return nil, fmt.Errorf("nodedb: truncated record")
	}
	compressed := rest[1:]
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("nodedb: decompressing record: %w", err)
	}
	n, err := objects.Decode(raw)
	if err != nil {
		return nil, err
	}
	if f, ok := n.(*objects.FileNode); ok {
		// A FileNode's hash is its file's content hash (see
		// FileNode.SetHash), which cannot be recomputed from the record.
		f.SetHash(expect)
		return n, nil
	}
	if n.Hash() != expect {
		return nil, fmt.Errorf("nodedb: hash mismatch: stored content hashes to %s, expected %s", n.Hash(), expect)
	}
	return n, nil
}

func uvarintAt(b []byte) (uint64, int) {
	v, n := binary.Uvarint(b)
	return v, n
}

// GetNodeByHash resolves a node hash without knowing its commit, via the
// global secondary index. When the node was written by several commits
// (content-identical nodes are deduplicated by hash, so this is common),
// the commit whose hex hash sorts last in the global index is used; the
// candidates are not ordered by write time.
func (db *DB) GetNodeByHash(nodeHash oxenhash.Hash) (objects.Node, error) {
	commits, err := db.commitsForNode(nodeHash)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, oxenerr.New(oxenerr.NotFound, "nodedb.get_node_by_hash", nodeHash.String())
	}
	return db.GetNode(commits[len(commits)-1], nodeHash)
}

func (db *DB) commitsForNode(nodeHash oxenhash.Hash) ([]oxenhash.Hash, error) {
	var out []oxenhash.Hash
	iter := db.global.NewIterator(util.BytesPrefix(nodeHash.Bytes()), nil)
	defer iter.Release()
	for iter.Next() {
		var c oxenhash.Hash
		copy(c[:], iter.Value())
		out = append(out, c)
	}
	if err := iter.Error(); err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "nodedb.commits_for_node", nodeHash.String(), err)
	}
	return out, nil
}

// ListChildren loads dir's VNode and returns its entries.
func (db *DB) ListChildren(dir *objects.DirNode) ([]objects.VEntry, error) {
	if dir.ChildrenHash.IsZero() {
		return nil, nil
	}
	n, err := db.GetNodeByHash(dir.ChildrenHash)
	if err != nil {
		return nil, err
	}
	v, ok := n.(*objects.VNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "nodedb.list_children", dir.ChildrenHash.String())
	}
	return v.Entries, nil
}

// Has reports whether nodeHash is present anywhere in the NodeDB.
func (db *DB) Has(nodeHash oxenhash.Hash) (bool, error) {
	commits, err := db.commitsForNode(nodeHash)
	if err != nil {
		return false, err
	}
	return len(commits) > 0, nil
}
