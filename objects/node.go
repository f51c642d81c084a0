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

// Package objects defines the five Merkle node variants (Commit, Dir,
// VNode, File, Schema) and their canonical binary encoding. A node's hash
// is the hash of its canonical encoding, except for FileNode, whose hash
// is the hash of the file's raw bytes (see FileNode.SetHash); nothing here
// ever mutates a node in place once its hash has been computed.
package objects

import (
	"fmt"
	"time"

	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
)

// Hash and Size are re-exported from oxenhash so callers of this package
// don't need to import both.
type Hash = oxenhash.Hash

const Size = oxenhash.Size

// Kind tags which of the five node variants a record holds.
type Kind byte

const (
	KindCommit Kind = iota + 1
	KindDir
	KindVNode
	KindFile
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindDir:
		return "dir"
	case KindVNode:
		return "vnode"
	case KindFile:
		return "file"
	case KindSchema:
		return "schema"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// EntryKind tags what a VNode entry points at.
type EntryKind byte

const (
	EntryDir EntryKind = iota + 1
	EntryFile
	EntrySchema
	// EntryVNode marks a bucket-index pointer: the entry's Hash names
	// another VNode rather than a Dir/File/Schema node. TreeBuilder emits
	// these only for directories wide enough to need more than one
	// bucket (spec §4.6 step 3); TreeReader resolves through them
	// transparently so callers outside the tree-walking core never see
	// the indirection.
	EntryVNode
)

// Node is implemented by all five node variants. Encode returns the
// canonical byte encoding with the node's own hash field omitted (the
// hash is never included in its own encoding; for every kind except a
// FileNode stamped via SetHash, it is computed over it).
type Node interface {
	Kind() Kind
	Hash() Hash
	Encode() []byte
}

// field ids, stable across releases since they are part of the on-disk
// format. Each node kind owns its own id space.
const (
	fCommitParents   = 1
	fCommitRoot      = 2
	fCommitMessage   = 3
	fCommitAuthor    = 4
	fCommitEmail     = 5
	fCommitTimestamp = 6

	fDirName           = 1
	fDirChildrenHash   = 2
	fDirNumBytes       = 3
	fDirLastCommit     = 4
	fDirLastModified   = 5
	fDirDataTypeCounts = 6

	fVNodeEntries = 1

	fFileName         = 1
	fFileNumBytes     = 2
	fFileLastModified = 3
	fFileChunkHashes  = 4
	fFileDataType     = 5
	fFileMimeType     = 6

	fSchemaName   = 1
	fSchemaFields = 2
)

func timeToUnixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func unixNanoToTime(n uint64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(n)).UTC()
}

// ---- CommitNode ----

// CommitNode is an immutable snapshot: parents, root directory, and
// authorship metadata. Its hash is derived from every other field
// (including ParentHashes, in order), so any mutation yields a new
// identity.
type CommitNode struct {
	ParentHashes []Hash
	RootDirHash  Hash
	Message      string
	Author       string
	Email        string
	Timestamp    time.Time

	hash Hash
}

func (c *CommitNode) Kind() Kind { return KindCommit }

func (c *CommitNode) Encode() []byte {
	w := newFieldWriter(KindCommit)
	w.hashSliceField(fCommitParents, c.ParentHashes)
	w.hashField(fCommitRoot, c.RootDirHash)
	w.stringField(fCommitMessage, c.Message)
	w.stringField(fCommitAuthor, c.Author)
	w.stringField(fCommitEmail, c.Email)
	w.uvarintField(fCommitTimestamp, timeToUnixNano(c.Timestamp))
	return w.bytes()
}

// Hash computes (and caches) the node's content hash.
func (c *CommitNode) Hash() Hash {
	if c.hash.IsZero() {
		c.hash = oxenhash.HashBytes(c.Encode())
	}
	return c.hash
}

// IsInitialCommit reports whether this commit has no parents.
func (c *CommitNode) IsInitialCommit() bool { return len(c.ParentHashes) == 0 }

func decodeCommit(r *fieldReader) (*CommitNode, error) {
	c := &CommitNode{
		ParentHashes: r.hashSlice(fCommitParents),
		RootDirHash:  r.hash(fCommitRoot),
		Message:      r.str(fCommitMessage),
		Author:       r.str(fCommitAuthor),
		Email:        r.str(fCommitEmail),
		Timestamp:    unixNanoToTime(r.u64(fCommitTimestamp)),
	}
	return c, nil
}

// ---- DirNode ----

// DirNode describes one directory. ChildrenHash names the VNode holding
// its (possibly bucketed) children.
type DirNode struct {
	Name            string
	ChildrenHash    Hash
	NumBytes        uint64
	LastCommitHash  Hash
	LastModified    time.Time
	DataTypeCounts  map[string]uint64

	hash Hash
}

func (d *DirNode) Kind() Kind { return KindDir }

func (d *DirNode) Encode() []byte {
	w := newFieldWriter(KindDir)
	w.stringField(fDirName, d.Name)
	w.hashField(fDirChildrenHash, d.ChildrenHash)
	w.uvarintField(fDirNumBytes, d.NumBytes)
	w.hashField(fDirLastCommit, d.LastCommitHash)
	w.uvarintField(fDirLastModified, timeToUnixNano(d.LastModified))
	w.stringU64MapField(fDirDataTypeCounts, d.DataTypeCounts)
	return w.bytes()
}

func (d *DirNode) Hash() Hash {
	if d.hash.IsZero() {
		d.hash = oxenhash.HashBytes(d.Encode())
	}
	return d.hash
}

func decodeDir(r *fieldReader) (*DirNode, error) {
	d := &DirNode{
		Name:           r.str(fDirName),
		ChildrenHash:   r.hash(fDirChildrenHash),
		NumBytes:       r.u64(fDirNumBytes),
		LastCommitHash: r.hash(fDirLastCommit),
		LastModified:   unixNanoToTime(r.u64(fDirLastModified)),
		DataTypeCounts: r.stringU64Map(fDirDataTypeCounts),
	}
	return d, nil
}

// ---- VNode ----

// VEntry is one child reference inside a VNode bucket.
type VEntry struct {
	Name string
	Kind EntryKind
	Hash Hash
}

// VNode is an intermediate fan-out bucket between a DirNode and its
// children, bounding per-node byte size in wide directories (spec §4.6).
type VNode struct {
	Entries []VEntry

	hash Hash
}

func (v *VNode) Kind() Kind { return KindVNode }

func (v *VNode) Encode() []byte {
	w := newFieldWriter(KindVNode)
	// Entries must be sorted by name for canonical serialization (spec
	// §4.6 step 4); callers are expected to hand in sorted entries, but
	// we defend the invariant here too since it is cheap and the cost of
	// getting it wrong is a non-reproducible hash.
	entries := make([]VEntry, len(v.Entries))
	copy(entries, v.Entries)
	sortEntriesByName(entries)

	var payload fieldWriter
	payload.buf.Reset()
	putUvarint(&payload.buf, uint64(len(entries)))
	for _, e := range entries {
		putUvarint(&payload.buf, uint64(len(e.Name)))
		payload.buf.WriteString(e.Name)
		payload.buf.WriteByte(byte(e.Kind))
		payload.buf.Write(e.Hash.Bytes())
	}
	w.bytesField(fVNodeEntries, payload.buf.Bytes())
	return w.bytes()
}

func (v *VNode) Hash() Hash {
	if v.hash.IsZero() {
		v.hash = oxenhash.HashBytes(v.Encode())
	}
	return v.hash
}

func sortEntriesByName(entries []VEntry) {
	// insertion sort is fine: vnode buckets are capped near
	// TARGET_BUCKET_SIZE (10,000) entries by construction.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Name > entries[j].Name; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func decodeVNode(r *fieldReader) (*VNode, error) {
	b, ok := r.fields[fVNodeEntries]
	if !ok {
		return &VNode{}, nil
	}
	v := &VNode{}
	pos := 0
	readUvarint := func() (uint64, error) {
		val, n := uvarintAt(b[pos:])
		if n <= 0 {
			return 0, fmt.Errorf("objects: bad vnode entry length")
		}
		pos += n
		return val, nil
	}
	n, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		nameLen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if pos+int(nameLen) > len(b) {
			return nil, fmt.Errorf("objects: truncated vnode entry name")
		}
		name := string(b[pos : pos+int(nameLen)])
		pos += int(nameLen)
		if pos+1+Size > len(b) {
			return nil, fmt.Errorf("objects: truncated vnode entry")
		}
		kind := EntryKind(b[pos])
		pos++
		var h Hash
		copy(h[:], b[pos:pos+Size])
		pos += Size
		v.Entries = append(v.Entries, VEntry{Name: name, Kind: kind, Hash: h})
	}
	return v, nil
}

func uvarintAt(b []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, byt := range b {
		if byt < 0x80 {
			if i > 9 || (i == 9 && byt > 1) {
				return 0, -(i + 1)
			}
			return x | uint64(byt)<<s, i + 1
		}
		x |= uint64(byt&0x7f) << s
		s += 7
	}
	return 0, 0
}

// ---- FileNode ----

// FileNode describes one file. ChunkHashes is [self] for files below the
// chunk threshold, or the ordered list of chunk hashes otherwise.
type FileNode struct {
	Name         string
	NumBytes     uint64
	LastModified time.Time
	ChunkHashes  []Hash
	DataType     string
	MimeType     string

	hash Hash
}

func (f *FileNode) Kind() Kind { return KindFile }

func (f *FileNode) Encode() []byte {
	w := newFieldWriter(KindFile)
	w.stringField(fFileName, f.Name)
	w.uvarintField(fFileNumBytes, f.NumBytes)
	w.uvarintField(fFileLastModified, timeToUnixNano(f.LastModified))
	w.hashSliceField(fFileChunkHashes, f.ChunkHashes)
	w.stringField(fFileDataType, f.DataType)
	w.stringField(fFileMimeType, f.MimeType)
	return w.bytes()
}

func (f *FileNode) Hash() Hash {
	if f.hash.IsZero() {
		f.hash = oxenhash.HashBytes(f.Encode())
	}
	return f.hash
}

// SetHash overrides the cached hash. FileNode.Hash is defined by spec
// §4.1 as the hash of the raw file bytes, not of this node's own
// encoding (so that file identity is independent of chunking threshold);
// callers that already know the content hash (TreeBuilder, after
// VersionStore.PutChunked) use this to stamp it in rather than recompute
// it from Encode().
func (f *FileNode) SetHash(h Hash) { f.hash = h }

func decodeFile(r *fieldReader) (*FileNode, error) {
	f := &FileNode{
		Name:         r.str(fFileName),
		NumBytes:     r.u64(fFileNumBytes),
		LastModified: unixNanoToTime(r.u64(fFileLastModified)),
		ChunkHashes:  r.hashSlice(fFileChunkHashes),
		DataType:     r.str(fFileDataType),
		MimeType:     r.str(fFileMimeType),
	}
	return f, nil
}

// ---- SchemaNode ----

// SchemaField is one column of a tabular FileNode's schema.
type SchemaField struct {
	Name  string
	DType string
}

// SchemaNode optionally attaches to a tabular FileNode, naming its
// columns. Column-level diffing is delegated to the DataFrame engine;
// the core only knows a schema exists.
type SchemaNode struct {
	Name   string
	Fields []SchemaField

	hash Hash
}

func (s *SchemaNode) Kind() Kind { return KindSchema }

func (s *SchemaNode) Encode() []byte {
	w := newFieldWriter(KindSchema)
	w.stringField(fSchemaName, s.Name)
	var payload fieldWriter
	payload.buf.Reset()
	putUvarint(&payload.buf, uint64(len(s.Fields)))
	for _, field := range s.Fields {
		putUvarint(&payload.buf, uint64(len(field.Name)))
		payload.buf.WriteString(field.Name)
		putUvarint(&payload.buf, uint64(len(field.DType)))
		payload.buf.WriteString(field.DType)
	}
	w.bytesField(fSchemaFields, payload.buf.Bytes())
	return w.bytes()
}

func (s *SchemaNode) Hash() Hash {
	if s.hash.IsZero() {
		s.hash = oxenhash.HashBytes(s.Encode())
	}
	return s.hash
}

func decodeSchema(r *fieldReader) (*SchemaNode, error) {
	s := &SchemaNode{Name: r.str(fSchemaName)}
	b, ok := r.fields[fSchemaFields]
	if !ok {
		return s, nil
	}
	pos := 0
	readUvarint := func() (uint64, error) {
		val, n := uvarintAt(b[pos:])
		if n <= 0 {
			return 0, fmt.Errorf("objects: bad schema field length")
		}
		pos += n
		return val, nil
	}
	n, err := readUvarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		nameLen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		name := string(b[pos : pos+int(nameLen)])
		pos += int(nameLen)
		dtypeLen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		dtype := string(b[pos : pos+int(dtypeLen)])
		pos += int(dtypeLen)
		s.Fields = append(s.Fields, SchemaField{Name: name, DType: dtype})
	}
	return s, nil
}

// Decode parses a record previously produced by Node.Encode, dispatching
// on its leading kind tag. The caller (typically NodeDB) is responsible
// for verifying the decoded node's Hash() matches the hash it was looked
// up by; Decode itself only performs structural parsing.
func Decode(b []byte) (Node, error) {
	r, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	switch r.kind {
	case KindCommit:
		return decodeCommit(r)
	case KindDir:
		return decodeDir(r)
	case KindVNode:
		return decodeVNode(r)
	case KindFile:
		return decodeFile(r)
	case KindSchema:
		return decodeSchema(r)
	default:
		return nil, fmt.Errorf("objects: unknown node kind %d", r.kind)
	}
}
