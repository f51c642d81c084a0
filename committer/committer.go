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

// Package committer assembles a new commit from HEAD plus the staging
// table (spec §4.9). Callers are expected to hold the repository's
// exclusive lock for the duration of Commit.
package committer

import (
	"time"

	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/stager"
	"github.com/Oxen-AI/oxen-release-sub010/treebuilder"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
)

// Committer wires together the components a commit touches: NodeDB for
// persisting the new nodes, RefStore for advancing the branch, a
// treereader.Reader for loading HEAD's current file set, and the
// Stager whose table is authoritative for what changed.
type Committer struct {
	nodeDB *nodedb.DB
	refs   *refstore.Store
	reader *treereader.Reader
	stager *stager.Stager
}

// New returns a Committer over the given components.
func New(nodeDB *nodedb.DB, refs *refstore.Store, reader *treereader.Reader, st *stager.Stager) *Committer {
	return &Committer{nodeDB: nodeDB, refs: refs, reader: reader, stager: st}
}

// Commit folds the staging table onto HEAD's tree and records a new
// CommitNode, or returns an InvalidInput error tagged "nothing to
// commit" if the resulting tree is identical to HEAD's.
func (c *Committer) Commit(message, author, email string) (*objects.CommitNode, error) {
	head, err := c.refs.GetHead()
	if err != nil {
		return nil, err
	}

	files := make(map[string]*objects.FileNode)
	var prevRootHash objects.Hash
	if !head.Commit.IsZero() {
		view := c.reader.BoundToCommit(head.Commit)
		if err := view.WalkFiles("", func(rel string, f *objects.FileNode) error {
			files[rel] = f
			return nil
		}); err != nil {
			return nil, err
		}
		root, err := c.reader.GetRoot(head.Commit)
		if err != nil {
			return nil, err
		}
		prevRootHash = root.Hash()
	} else {
		// No commits yet: the comparison baseline is the empty tree's
		// encoding, not the Go zero Hash{} — an empty DirNode/VNode pair
		// still hashes to a concrete, non-zero digest.
		empty, err := treebuilder.BuildFromFiles(nil)
		if err != nil {
			return nil, err
		}
		prevRootHash = empty.Root.Hash()
	}

	staged, err := c.stager.All()
	if err != nil {
		return nil, err
	}
	for path, e := range staged {
		switch e.Status {
		case stager.StagedAdded, stager.StagedModified:
			files[path] = e.Node
		case stager.StagedRemoved:
			delete(files, path)
		}
	}

	result, err := treebuilder.BuildFromFiles(files)
	if err != nil {
		return nil, err
	}
	if result.Root.Hash() == prevRootHash {
		return nil, oxenerr.New(oxenerr.InvalidInput, "committer.commit", "nothing to commit")
	}

	var parents []oxenhash.Hash
	if !head.Commit.IsZero() {
		parents = []oxenhash.Hash{head.Commit}
	}
	commit := &objects.CommitNode{
		ParentHashes: parents,
		RootDirHash:  result.Root.Hash(),
		Message:      message,
		Author:       author,
		Email:        email,
		Timestamp:    time.Now(),
	}

	nodes := append(result.Nodes, commit)
	if err := c.nodeDB.PutNodes(commit.Hash(), nodes); err != nil {
		return nil, err
	}

	if head.Attached() {
		if err := c.refs.SetRef(head.RefName, commit.Hash()); err != nil {
			return nil, err
		}
	} else {
		if err := c.refs.SetHeadToCommit(commit.Hash()); err != nil {
			return nil, err
		}
	}

	if err := c.stager.Clear(); err != nil {
		return nil, err
	}
	return commit, nil
}
