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

// Package treebuilder walks a working directory and produces a new
// Merkle root DirNode, reusing unchanged FileNodes from the previous
// commit and bucketing wide directories into VNodes (spec §4.6).
package treebuilder

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/Oxen-AI/oxen-release-sub010/ignore"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TargetBucketSize is the approximate number of entries aimed for per
// VNode before TreeBuilder splits a directory's children across more
// than one bucket.
const TargetBucketSize = 10_000

// defaultMaxWorkers is used when no OXEN_NUM_THREADS override is given.
const defaultMaxWorkers = 16

// PreviousLookup lets TreeBuilder skip rehashing files whose (path,
// size, mtime) are unchanged since the referenced tree. TreeReader
// implements this against a previous commit's root.
type PreviousLookup interface {
	PreviousFile(relPath string) (*objects.FileNode, bool)
}

// noPrevious is used when building the very first commit.
type noPrevious struct{}

func (noPrevious) PreviousFile(string) (*objects.FileNode, bool) { return nil, false }

// NoPrevious is the PreviousLookup to pass when there is no prior tree
// (the repository's first commit).
var NoPrevious PreviousLookup = noPrevious{}

// Builder scans a working directory into a Merkle tree.
type Builder struct {
	store      *versionstore.Store
	maxWorkers int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxWorkers overrides the hashing worker pool size, e.g. from
// OXEN_NUM_THREADS. Values <= 0 are ignored.
func WithMaxWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxWorkers = n
		}
	}
}

// New returns a Builder that stores file content through store.
func New(store *versionstore.Store, opts ...Option) *Builder {
	b := &Builder{store: store, maxWorkers: resolveDefaultWorkers()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func resolveDefaultWorkers() int {
	cpus := runtime.NumCPU()
	if defaultMaxWorkers < cpus {
		return defaultMaxWorkers
	}
	return cpus
}

// Result bundles a TreeBuilder run's output: the new root and every node
// of the new tree (all DirNodes and VNodes, and every FileNode, including
// FileNodes reused unchanged from the previous tree).
type Result struct {
	Root  *objects.DirNode
	Nodes []objects.Node
}

// Build walks root (an absolute working-directory path), applying
// matcher's ignore rules, and returns the new Merkle root plus every node
// of the tree, reused FileNodes included.
func (b *Builder) Build(ctx context.Context, root string, matcher *ignore.Matcher, prev PreviousLookup) (*Result, error) {
	if prev == nil {
		prev = NoPrevious
	}
	sem := semaphore.NewWeighted(int64(b.maxWorkers))
	var collected []objects.Node
	dir, err := b.buildDir(ctx, sem, &collected, root, "", matcher, prev)
	if err != nil {
		return nil, err
	}
	collected = append(collected, dir)
	return &Result{Root: dir, Nodes: collected}, nil
}

type fileEntry struct {
	name     string
	absPath  string
	relPath  string
	size     int64
	modTime  int64 // unix nanoseconds
}

// buildDir recursively folds one directory. collected accumulates every
// node minted along the way; it needs no lock because it is only appended
// to outside the hashing goroutines. Subdirectories are folded one after
// another, and each directory's files are hashed in parallel against the
// shared semaphore; sibling subtrees are not built concurrently.
func (b *Builder) buildDir(ctx context.Context, sem *semaphore.Weighted, collected *[]objects.Node, absDir, relDir string, matcher *ignore.Matcher, prev PreviousLookup) (*objects.DirNode, error) {
	if err := matcher.Push(absDir); err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "treebuilder.build_dir", absDir, err)
	}
	defer matcher.Pop()

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "treebuilder.build_dir", absDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []fileEntry
	var subdirNames []string
	for _, e := range entries {
		relPath := joinRel(relDir, e.Name())
		if e.IsDir() {
			if matcher.IsIgnored(relPath, true) {
				continue
			}
			subdirNames = append(subdirNames, e.Name())
			continue
		}
		if matcher.IsIgnored(relPath, false) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, oxenerr.Wrap(oxenerr.TransportError, "treebuilder.build_dir", relPath, err)
		}
		files = append(files, fileEntry{
			name:    e.Name(),
			absPath: filepath.Join(absDir, e.Name()),
			relPath: relPath,
			size:    info.Size(),
			modTime: info.ModTime().UnixNano(),
		})
	}

	var entryList []objects.VEntry
	var totalBytes uint64
	var lastModified time.Time
	dataTypeCounts := map[string]uint64{}

	// Subdirectories fold serially: each recursion call fans its own
	// files out across the shared worker semaphore and waits for them
	// before returning, so sibling subtrees do not overlap in time.
	for _, name := range subdirNames {
		childRel := joinRel(relDir, name)
		child, err := b.buildDir(ctx, sem, collected, filepath.Join(absDir, name), childRel, matcher, prev)
		if err != nil {
			return nil, err
		}
		*collected = append(*collected, child)
		entryList = append(entryList, objects.VEntry{Name: name, Kind: objects.EntryDir, Hash: child.Hash()})
		totalBytes += child.NumBytes
		if child.LastModified.After(lastModified) {
			lastModified = child.LastModified
		}
		for k, v := range child.DataTypeCounts {
			dataTypeCounts[k] += v
		}
	}

	fileNodes, err := b.hashFiles(ctx, sem, files, prev)
	if err != nil {
		return nil, err
	}
	for i, f := range fileNodes {
		*collected = append(*collected, f)
		entryList = append(entryList, objects.VEntry{Name: files[i].name, Kind: objects.EntryFile, Hash: f.Hash()})
		totalBytes += f.NumBytes
		if f.LastModified.After(lastModified) {
			lastModified = f.LastModified
		}
		if f.DataType != "" {
			dataTypeCounts[f.DataType]++
		}
	}

	childrenHash, vnodes := bucketEntries(entryList)
	*collected = append(*collected, vnodes...)

	name := relDir
	if name == "" {
		name = "."
	} else {
		name = filepath.Base(relDir)
	}
	dir := &objects.DirNode{
		Name:           name,
		ChildrenHash:   childrenHash,
		NumBytes:       totalBytes,
		LastModified:   lastModified,
		DataTypeCounts: dataTypeCounts,
	}
	return dir, nil
}

// hashFiles fans file hashing out across the shared semaphore, reusing
// a previous FileNode when (path, size, mtime) match (spec §4.6 step 2).
func (b *Builder) hashFiles(ctx context.Context, sem *semaphore.Weighted, files []fileEntry, prev PreviousLookup) ([]*objects.FileNode, error) {
	out := make([]*objects.FileNode, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, fe := range files {
		i, fe := i, fe
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			node, err := b.hashOneFile(fe, prev)
			if err != nil {
				return err
			}
			out[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder) hashOneFile(fe fileEntry, prev PreviousLookup) (*objects.FileNode, error) {
	if cached, ok := prev.PreviousFile(fe.relPath); ok {
		if int64(cached.NumBytes) == fe.size && cached.LastModified.UnixNano() == fe.modTime {
			return cached, nil
		}
	}
	f, err := os.Open(fe.absPath)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "treebuilder.hash_file", fe.relPath, err)
	}
	defer f.Close()

	fileHash, chunkHashes, err := b.store.PutChunked(f)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "treebuilder.hash_file", fe.relPath, err)
	}
	dataType, mimeType := classify(fe.name)
	node := &objects.FileNode{
		Name:         fe.name,
		NumBytes:     uint64(fe.size),
		LastModified: modTimeFromUnixNano(fe.modTime),
		ChunkHashes:  chunkHashes,
		DataType:     dataType,
		MimeType:     mimeType,
	}
	node.SetHash(fileHash)
	return node, nil
}

// bucketEntries implements spec §4.6 step 3-4: distribute entries into
// num_buckets VNodes by the high bits of hash(name), then hash each
// bucket. When there is exactly one bucket, DirNode.ChildrenHash names
// it directly; for wider directories, a thin index VNode of EntryVNode
// pointers sits above the buckets so DirNode still only ever names one
// hash.
func bucketEntries(entries []objects.VEntry) (objects.Hash, []objects.Node) {
	numBuckets := nextPow2(maxInt(1, ceilDiv(len(entries), TargetBucketSize)))
	if numBuckets <= 1 {
		v := &objects.VNode{Entries: entries}
		return v.Hash(), []objects.Node{v}
	}

	bits := log2(numBuckets)
	buckets := make([][]objects.VEntry, numBuckets)
	for _, e := range entries {
		idx := highBits(oxenhash.HashBytes([]byte(e.Name)), bits)
		buckets[idx] = append(buckets[idx], e)
	}

	width := len(strconv.Itoa(numBuckets - 1))
	var nodes []objects.Node
	var indexEntries []objects.VEntry
	for i, bucket := range buckets {
		v := &objects.VNode{Entries: bucket}
		nodes = append(nodes, v)
		indexEntries = append(indexEntries, objects.VEntry{
			Name: fmt.Sprintf("%0*d", width, i),
			Kind: objects.EntryVNode,
			Hash: v.Hash(),
		})
	}
	top := &objects.VNode{Entries: indexEntries}
	nodes = append(nodes, top)
	return top.Hash(), nodes
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// nextPow2 rounds n up to the next power of two (n itself if already one).
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// log2 returns the base-2 logarithm of a power of two.
func log2(n int) uint {
	var bits uint
	for n > 1 {
		n >>= 1
		bits++
	}
	return bits
}

// highBits returns the top `bits` bits of h's first 8 bytes, interpreted
// as a big-endian uint64, as an index in [0, 2^bits).
func highBits(h oxenhash.Hash, bits uint) int {
	if bits == 0 {
		return 0
	}
	v := binary.BigEndian.Uint64(h[:8])
	return int(v >> (64 - bits))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func modTimeFromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
