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

// Package refstore implements the flat ref_name -> commit_hash mapping
// and the HEAD pointer (spec §4.4). Store takes no lock itself: writers
// are expected to hold the repo's exclusive lock, and reads are lock-free
// against a stable on-disk snapshot (writes go through tempfile+rename).
package refstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
)

const headRefPrefix = "ref: refs/"

// Store is the ref/HEAD handle, rooted at <repo>/.oxen.
type Store struct {
	oxenDir string
}

// Open returns a Store rooted at oxenDir (the ".oxen" directory).
func Open(oxenDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(oxenDir, "refs"), 0o755); err != nil {
		return nil, oxenerr.Wrap(oxenerr.InvalidInput, "refstore.open", oxenDir, err)
	}
	return &Store{oxenDir: oxenDir}, nil
}

func (s *Store) refPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/.\\") {
		return "", oxenerr.New(oxenerr.InvalidInput, "refstore.ref_path", name)
	}
	return filepath.Join(s.oxenDir, "refs", name), nil
}

// GetRef returns the commit hash name points at.
func (s *Store) GetRef(name string) (oxenhash.Hash, error) {
	path, err := s.refPath(name)
	if err != nil {
		return oxenhash.Hash{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return oxenhash.Hash{}, oxenerr.New(oxenerr.NotFound, "refstore.get_ref", name)
		}
		return oxenhash.Hash{}, oxenerr.Wrap(oxenerr.TransportError, "refstore.get_ref", name, err)
	}
	h, err := oxenhash.ParseHash(strings.TrimSpace(string(b)))
	if err != nil {
		return oxenhash.Hash{}, oxenerr.Wrap(oxenerr.IntegrityError, "refstore.get_ref", name, err)
	}
	return h, nil
}

// SetRef points name at commit. Callers are expected to hold the repo's
// exclusive lock before calling this (spec §4.4, §5).
func (s *Store) SetRef(name string, commit oxenhash.Hash) error {
	path, err := s.refPath(name)
	if err != nil {
		return err
	}
	return writeAtomic(path, []byte(commit.String()))
}

// DeleteRef removes name. It is not an error to delete a ref that does
// not exist.
func (s *Store) DeleteRef(name string) error {
	path, err := s.refPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return oxenerr.Wrap(oxenerr.TransportError, "refstore.delete_ref", name, err)
	}
	return nil
}

// ListRefs returns every branch name currently tracked.
func (s *Store) ListRefs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.oxenDir, "refs"))
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.TransportError, "refstore.list_refs", "", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Head is the parsed form of the HEAD file: either attached to a ref
// name, or detached at a raw commit hash.
type Head struct {
	RefName string // set iff attached
	Commit  oxenhash.Hash
}

func (h Head) Attached() bool { return h.RefName != "" }

func (s *Store) headPath() string { return filepath.Join(s.oxenDir, "HEAD") }

// GetHead parses and resolves HEAD: if attached, Commit is filled in from
// the referenced branch (left as the zero hash, with no error, if the
// branch has no commits yet, e.g. a freshly initialized repo).
func (s *Store) GetHead() (Head, error) {
	b, err := os.ReadFile(s.headPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Head{}, oxenerr.New(oxenerr.NotFound, "refstore.get_head", "HEAD")
		}
		return Head{}, oxenerr.Wrap(oxenerr.TransportError, "refstore.get_head", "HEAD", err)
	}
	text := strings.TrimSpace(string(b))
	if strings.HasPrefix(text, headRefPrefix) {
		name := strings.TrimPrefix(text, headRefPrefix)
		h := Head{RefName: name}
		commit, err := s.GetRef(name)
		if err != nil {
			if oxenerr.Is(err, oxenerr.NotFound) {
				return h, nil // attached to a branch with no commits yet
			}
			return Head{}, err
		}
		h.Commit = commit
		return h, nil
	}
	commit, err := oxenhash.ParseHash(text)
	if err != nil {
		return Head{}, oxenerr.Wrap(oxenerr.IntegrityError, "refstore.get_head", "HEAD", err)
	}
	return Head{Commit: commit}, nil
}

// SetHeadToRef attaches HEAD to a branch name.
func (s *Store) SetHeadToRef(name string) error {
	return writeAtomic(s.headPath(), []byte(headRefPrefix+name))
}

// SetHeadToCommit detaches HEAD at a raw commit hash.
func (s *Store) SetHeadToCommit(commit oxenhash.Hash) error {
	return writeAtomic(s.headPath(), []byte(commit.String()))
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "refstore.write", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "refstore.write", path, err)
	}
	return nil
}
