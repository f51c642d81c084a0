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

// Package diff implements the streaming tree-diff used by status,
// checkout, push, and pull (spec §4.11): two directory trees are walked
// in lockstep, pruning whole subtrees on a single hash comparison, so
// cost is proportional to the number of changed paths rather than the
// size of the tree.
package diff

import (
	"path"
	"sort"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
)

// ChangeType classifies one diff entry.
type ChangeType int

const (
	Added ChangeType = iota + 1
	Removed
	Modified
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is one path that differs between the two trees compared.
type Change struct {
	Path    string
	Type    ChangeType
	Kind    objects.EntryKind // EntryDir, EntryFile, or EntrySchema
	OldHash objects.Hash
	NewHash objects.Hash
}

// NodeSource resolves a node hash to its decoded node. Both treereader
// (for committed trees) and MapSource (for a TreeBuilder result not yet
// written to NodeDB) implement it, so the same diff logic compares a
// working-directory scan against HEAD as easily as it compares two
// commits.
type NodeSource interface {
	GetNode(h objects.Hash) (objects.Node, error)
}

// MapSource is an in-memory NodeSource built directly from a slice of
// freshly minted nodes, for diffing against a tree TreeBuilder produced
// but Committer has not yet persisted.
type MapSource map[objects.Hash]objects.Node

// NewMapSource indexes nodes by hash.
func NewMapSource(nodes []objects.Node) MapSource {
	m := make(MapSource, len(nodes))
	for _, n := range nodes {
		m[n.Hash()] = n
	}
	return m
}

func (m MapSource) GetNode(h objects.Hash) (objects.Node, error) {
	n, ok := m[h]
	if !ok {
		return nil, oxenerr.New(oxenerr.NotFound, "diff.map_source.get_node", h.String())
	}
	return n, nil
}

// EmptyDir is the zero-value DirNode, used as the "nothing" side of a
// diff against an empty tree (e.g. the first commit, or a brand new
// untracked path).
var EmptyDir = &objects.DirNode{}

// Trees computes the set difference between dirA (read through srcA)
// and dirB (read through srcB), rooted at basePath.
func Trees(srcA NodeSource, dirA *objects.DirNode, srcB NodeSource, dirB *objects.DirNode, basePath string) ([]Change, error) {
	var out []Change
	if err := diffDirs(srcA, dirA, srcB, dirB, basePath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffDirs(srcA NodeSource, dirA *objects.DirNode, srcB NodeSource, dirB *objects.DirNode, basePath string, out *[]Change) error {
	if dirA.Hash() == dirB.Hash() {
		return nil // whole subtree identical
	}
	entriesA, err := listChildren(srcA, dirA)
	if err != nil {
		return err
	}
	entriesB, err := listChildren(srcB, dirB)
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(entriesA) || j < len(entriesB) {
		switch {
		case i >= len(entriesA):
			if err := emitAdded(srcB, entriesB[j], basePath, out); err != nil {
				return err
			}
			j++
		case j >= len(entriesB):
			if err := emitRemoved(srcA, entriesA[i], basePath, out); err != nil {
				return err
			}
			i++
		case entriesA[i].Name < entriesB[j].Name:
			if err := emitRemoved(srcA, entriesA[i], basePath, out); err != nil {
				return err
			}
			i++
		case entriesA[i].Name > entriesB[j].Name:
			if err := emitAdded(srcB, entriesB[j], basePath, out); err != nil {
				return err
			}
			j++
		default:
			if err := diffMatched(srcA, entriesA[i], srcB, entriesB[j], basePath, out); err != nil {
				return err
			}
			i++
			j++
		}
	}
	return nil
}

func diffMatched(srcA NodeSource, a objects.VEntry, srcB NodeSource, b objects.VEntry, basePath string, out *[]Change) error {
	full := path.Join(basePath, a.Name)
	if a.Kind != b.Kind {
		*out = append(*out, Change{Path: full, Type: Removed, Kind: a.Kind, OldHash: a.Hash})
		*out = append(*out, Change{Path: full, Type: Added, Kind: b.Kind, NewHash: b.Hash})
		return nil
	}
	if a.Hash == b.Hash {
		return nil
	}
	if a.Kind == objects.EntryDir {
		dirA, err := getDir(srcA, a.Hash)
		if err != nil {
			return err
		}
		dirB, err := getDir(srcB, b.Hash)
		if err != nil {
			return err
		}
		return diffDirs(srcA, dirA, srcB, dirB, full, out)
	}
	*out = append(*out, Change{Path: full, Type: Modified, Kind: a.Kind, OldHash: a.Hash, NewHash: b.Hash})
	return nil
}

func emitAdded(src NodeSource, e objects.VEntry, basePath string, out *[]Change) error {
	full := path.Join(basePath, e.Name)
	if e.Kind == objects.EntryDir {
		dir, err := getDir(src, e.Hash)
		if err != nil {
			return err
		}
		return walkAll(src, dir, full, Added, out)
	}
	*out = append(*out, Change{Path: full, Type: Added, Kind: e.Kind, NewHash: e.Hash})
	return nil
}

func emitRemoved(src NodeSource, e objects.VEntry, basePath string, out *[]Change) error {
	full := path.Join(basePath, e.Name)
	if e.Kind == objects.EntryDir {
		dir, err := getDir(src, e.Hash)
		if err != nil {
			return err
		}
		return walkAll(src, dir, full, Removed, out)
	}
	*out = append(*out, Change{Path: full, Type: Removed, Kind: e.Kind, OldHash: e.Hash})
	return nil
}

// walkAll emits every leaf under dir as the given change type, used when
// an entire subtree was added or removed wholesale.
func walkAll(src NodeSource, dir *objects.DirNode, basePath string, typ ChangeType, out *[]Change) error {
	entries, err := listChildren(src, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := path.Join(basePath, e.Name)
		if e.Kind == objects.EntryDir {
			child, err := getDir(src, e.Hash)
			if err != nil {
				return err
			}
			if err := walkAll(src, child, full, typ, out); err != nil {
				return err
			}
			continue
		}
		h := e.Hash
		c := Change{Path: full, Type: typ, Kind: e.Kind}
		if typ == Added {
			c.NewHash = h
		} else {
			c.OldHash = h
		}
		*out = append(*out, c)
	}
	return nil
}

func getDir(src NodeSource, h objects.Hash) (*objects.DirNode, error) {
	n, err := src.GetNode(h)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*objects.DirNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "diff.get_dir", h.String())
	}
	return d, nil
}

// listChildren resolves dir's ChildrenHash VNode and flattens any nested
// bucket-index entries (objects.EntryVNode), then sorts the result by
// name. Bucketing distributes entries by hash(name), not lexicographic
// order, so a directory wide enough to need more than one bucket must be
// re-sorted after flattening for the merge-join below to see a globally
// ordered sequence; subtrees that are hash-identical are pruned before
// this cost is ever paid.
func listChildren(src NodeSource, dir *objects.DirNode) ([]objects.VEntry, error) {
	if dir.ChildrenHash.IsZero() {
		return nil, nil
	}
	entries, err := flatten(src, dir.ChildrenHash)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func flatten(src NodeSource, vnodeHash objects.Hash) ([]objects.VEntry, error) {
	n, err := src.GetNode(vnodeHash)
	if err != nil {
		return nil, err
	}
	v, ok := n.(*objects.VNode)
	if !ok {
		return nil, oxenerr.New(oxenerr.IntegrityError, "diff.flatten", vnodeHash.String())
	}
	var out []objects.VEntry
	for _, e := range v.Entries {
		if e.Kind != objects.EntryVNode {
			out = append(out, e)
			continue
		}
		nested, err := flatten(src, e.Hash)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}
