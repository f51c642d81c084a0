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

// Package treereader loads Merkle nodes lazily from a NodeDB, memoizing
// hot nodes in an LRU cache and resolving paths one segment at a time
// (spec §4.7). A partial tree is legal: descending into a node this
// NodeDB does not have yields a MissingNodeError that SyncEngine can
// resolve against a remote.
package treereader

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Oxen-AI/oxen-release-sub010/diff"
	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
)

// DefaultCacheEntries bounds the reader's LRU memoization by entry
// count rather than bytes, since nodes vary widely in size but the
// cache only needs to keep hot path-walks cheap.
const DefaultCacheEntries = 8192

// MissingNodeError is returned when a path walk needs a node this
// NodeDB does not (yet) have. SyncEngine treats this as a signal to
// fetch Hash from a remote rather than a fatal error.
type MissingNodeError struct {
	Hash objects.Hash
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("treereader: missing node %s", e.Hash)
}

type cacheKey struct {
	commit objects.Hash
	node   objects.Hash
}

// Reader is the lazy tree loader.
type Reader struct {
	db    *nodedb.DB
	cache *lru.Cache
}

// New returns a Reader backed by db, memoizing up to cacheEntries nodes.
// cacheEntries <= 0 uses DefaultCacheEntries.
func New(db *nodedb.DB, cacheEntries int) (*Reader, error) {
	if cacheEntries <= 0 {
		cacheEntries = DefaultCacheEntries
	}
	c, err := lru.New(cacheEntries)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "treereader.new", "", err)
	}
	return &Reader{db: db, cache: c}, nil
}

// GetCommit loads a commit record.
func (r *Reader) GetCommit(commit objects.Hash) (*objects.CommitNode, error) {
	n, err := r.getNode(commit, commit)
	if err != nil {
		return nil, err
	}
	c, ok := n.(*objects.CommitNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "treereader.get_commit", commit.String())
	}
	return c, nil
}

// GetRoot loads commit's root DirNode.
func (r *Reader) GetRoot(commit objects.Hash) (*objects.DirNode, error) {
	c, err := r.GetCommit(commit)
	if err != nil {
		return nil, err
	}
	return r.getDirByHash(commit, c.RootDirHash)
}

// GetDir walks from commit's root through named path segments (slash
// separated, relative to the repository root; "" means the root
// itself) and returns the DirNode found there.
func (r *Reader) GetDir(commit objects.Hash, path string) (*objects.DirNode, error) {
	dir, err := r.GetRoot(commit)
	if err != nil {
		return nil, err
	}
	if path == "" || path == "." {
		return dir, nil
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		entries, err := r.ListChildren(commit, dir)
		if err != nil {
			return nil, err
		}
		entry, ok := findEntry(entries, seg, objects.EntryDir)
		if !ok {
			return nil, oxenerr.New(oxenerr.NotFound, "treereader.get_dir", path)
		}
		dir, err = r.getDirByHash(commit, entry.Hash)
		if err != nil {
			return nil, err
		}
	}
	return dir, nil
}

// ListChildren returns dir's logical children (Dir/File/Schema entries
// only), transparently resolving any intermediate bucket-index VNodes
// TreeBuilder introduced for wide directories (spec §4.6 step 3).
func (r *Reader) ListChildren(commit objects.Hash, dir *objects.DirNode) ([]objects.VEntry, error) {
	if dir.ChildrenHash.IsZero() {
		return nil, nil
	}
	return r.flatten(commit, dir.ChildrenHash)
}

func (r *Reader) flatten(commit, vnodeHash objects.Hash) ([]objects.VEntry, error) {
	n, err := r.getNode(commit, vnodeHash)
	if err != nil {
		return nil, err
	}
	v, ok := n.(*objects.VNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "treereader.flatten", vnodeHash.String())
	}
	var out []objects.VEntry
	for _, e := range v.Entries {
		if e.Kind != objects.EntryVNode {
			out = append(out, e)
			continue
		}
		nested, err := r.flatten(commit, e.Hash)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// GetFile loads the FileNode named by an entry previously returned from
// ListChildren.
func (r *Reader) GetFile(commit objects.Hash, h objects.Hash) (*objects.FileNode, error) {
	n, err := r.getNode(commit, h)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*objects.FileNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "treereader.get_file", h.String())
	}
	return f, nil
}

func (r *Reader) getDirByHash(commit, h objects.Hash) (*objects.DirNode, error) {
	n, err := r.getNode(commit, h)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*objects.DirNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "treereader.get_dir_by_hash", h.String())
	}
	return d, nil
}

func (r *Reader) getNode(commit, h objects.Hash) (objects.Node, error) {
	key := cacheKey{commit: commit, node: h}
	if v, ok := r.cache.Get(key); ok {
		return v.(objects.Node), nil
	}
	n, err := r.db.GetNodeByHash(h)
	if err != nil {
		if oxenerr.Is(err, oxenerr.NotFound) {
			return nil, &MissingNodeError{Hash: h}
		}
		return nil, err
	}
	r.cache.Add(key, n)
	return n, nil
}

func findEntry(entries []objects.VEntry, name string, kind objects.EntryKind) (objects.VEntry, bool) {
	for _, e := range entries {
		if e.Name == name && e.Kind == kind {
			return e, true
		}
	}
	return objects.VEntry{}, false
}

// BoundToCommit returns a view of this Reader pinned to one commit,
// satisfying stager.HeadTree (and treebuilder.PreviousLookup via
// PreviousTree) without every caller having to thread the commit hash
// through each call.
func (r *Reader) BoundToCommit(commit objects.Hash) *CommitView {
	return &CommitView{reader: r, commit: commit}
}

// CommitView is a Reader pinned to a single commit.
type CommitView struct {
	reader *Reader
	commit objects.Hash
}

// FileAt implements stager.HeadTree.
func (v *CommitView) FileAt(relPath string) (*objects.FileNode, bool, error) {
	dirPath, name := splitPath(relPath)
	dir, err := v.reader.GetDir(v.commit, dirPath)
	if err != nil {
		if _, ok := err.(*MissingNodeError); ok {
			return nil, false, nil
		}
		if oxenerr.Is(err, oxenerr.NotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entries, err := v.reader.ListChildren(v.commit, dir)
	if err != nil {
		return nil, false, err
	}
	entry, ok := findEntry(entries, name, objects.EntryFile)
	if !ok {
		return nil, false, nil
	}
	f, err := v.reader.GetFile(v.commit, entry.Hash)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// WalkFiles implements stager.HeadTree.
func (v *CommitView) WalkFiles(dirPath string, fn func(relPath string, f *objects.FileNode) error) error {
	dir, err := v.reader.GetDir(v.commit, dirPath)
	if err != nil {
		if _, ok := err.(*MissingNodeError); ok {
			return nil
		}
		if oxenerr.Is(err, oxenerr.NotFound) {
			return nil
		}
		return err
	}
	return v.walk(dirPath, dir, fn)
}

func (v *CommitView) walk(basePath string, dir *objects.DirNode, fn func(string, *objects.FileNode) error) error {
	entries, err := v.reader.ListChildren(v.commit, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := joinPath(basePath, e.Name)
		switch e.Kind {
		case objects.EntryDir:
			child, err := v.reader.getDirByHash(v.commit, e.Hash)
			if err != nil {
				return err
			}
			if err := v.walk(full, child, fn); err != nil {
				return err
			}
		case objects.EntryFile:
			f, err := v.reader.GetFile(v.commit, e.Hash)
			if err != nil {
				return err
			}
			if err := fn(full, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

// commitSource adapts a Reader bound to one commit into diff.NodeSource.
type commitSource struct {
	reader *Reader
	commit objects.Hash
}

func (s commitSource) GetNode(h objects.Hash) (objects.Node, error) {
	return s.reader.getNode(s.commit, h)
}

// Source returns a diff.NodeSource that resolves nodes as they existed
// at commit, for comparing committed trees with package diff.
func (r *Reader) Source(commit objects.Hash) diff.NodeSource {
	return commitSource{reader: r, commit: commit}
}

// PreviousTree adapts a CommitView into the treebuilder.PreviousLookup
// interface, so TreeBuilder can skip rehashing files unchanged since
// that commit.
type PreviousTree struct {
	view *CommitView
}

// NewPreviousTree returns a PreviousTree rooted at commit.
func NewPreviousTree(reader *Reader, commit objects.Hash) *PreviousTree {
	return &PreviousTree{view: reader.BoundToCommit(commit)}
}

// PreviousFile implements treebuilder.PreviousLookup.
func (p *PreviousTree) PreviousFile(relPath string) (*objects.FileNode, bool) {
	f, ok, err := p.view.FileAt(relPath)
	if err != nil {
		return nil, false
	}
	return f, ok
}

func splitPath(relPath string) (dir, name string) {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return "", relPath
	}
	return relPath[:idx], relPath[idx+1:]
}
