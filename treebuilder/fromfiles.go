// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package treebuilder

import (
	"sort"
	"strings"
	"time"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
)

// trieNode is a transient directory node used only to assemble a tree
// from a flat path -> FileNode map (Committer's view of HEAD plus the
// staging table's overrides), without touching the filesystem.
type trieNode struct {
	dirs  map[string]*trieNode
	files map[string]*objects.FileNode
}

func newTrieNode() *trieNode {
	return &trieNode{dirs: make(map[string]*trieNode), files: make(map[string]*objects.FileNode)}
}

// BuildFromFiles assembles a root DirNode (plus every freshly minted
// DirNode/VNode along the way) directly from a flat path -> FileNode
// map. Committer uses this instead of walking the working directory:
// the staging table is the authority for what the new tree contains, so
// the new tree is exactly "HEAD's files, with staged Added/Modified
// entries overlaid and staged Removed entries deleted" (spec §4.9 step
// 3), never a fresh filesystem scan.
func BuildFromFiles(files map[string]*objects.FileNode) (*Result, error) {
	root := newTrieNode()
	for path, f := range files {
		segs := strings.Split(path, "/")
		cur := root
		for _, seg := range segs[:len(segs)-1] {
			next, ok := cur.dirs[seg]
			if !ok {
				next = newTrieNode()
				cur.dirs[seg] = next
			}
			cur = next
		}
		cur.files[segs[len(segs)-1]] = f
	}

	var collected []objects.Node
	dir := buildDirFromTrie(".", root, &collected)
	collected = append(collected, dir)
	return &Result{Root: dir, Nodes: collected}, nil
}

func buildDirFromTrie(name string, t *trieNode, collected *[]objects.Node) *objects.DirNode {
	var entries []objects.VEntry
	var totalBytes uint64
	var lastModified time.Time
	dataTypeCounts := map[string]uint64{}

	for _, dirName := range sortedKeys(t.dirs) {
		child := buildDirFromTrie(dirName, t.dirs[dirName], collected)
		*collected = append(*collected, child)
		entries = append(entries, objects.VEntry{Name: dirName, Kind: objects.EntryDir, Hash: child.Hash()})
		totalBytes += child.NumBytes
		if child.LastModified.After(lastModified) {
			lastModified = child.LastModified
		}
		for k, v := range child.DataTypeCounts {
			dataTypeCounts[k] += v
		}
	}
	for _, fileName := range sortedFileKeys(t.files) {
		f := t.files[fileName]
		*collected = append(*collected, f)
		entries = append(entries, objects.VEntry{Name: fileName, Kind: objects.EntryFile, Hash: f.Hash()})
		totalBytes += f.NumBytes
		if f.LastModified.After(lastModified) {
			lastModified = f.LastModified
		}
		if f.DataType != "" {
			dataTypeCounts[f.DataType]++
		}
	}

	childrenHash, vnodes := bucketEntries(entries)
	*collected = append(*collected, vnodes...)
	return &objects.DirNode{
		Name:           name,
		ChildrenHash:   childrenHash,
		NumBytes:       totalBytes,
		LastModified:   lastModified,
		DataTypeCounts: dataTypeCounts,
	}
}

func sortedKeys(m map[string]*trieNode) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedFileKeys(m map[string]*objects.FileNode) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
