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

package repo

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Oxen-AI/oxen-release-sub010/checkout"
	"github.com/Oxen-AI/oxen-release-sub010/committer"
	"github.com/Oxen-AI/oxen-release-sub010/config"
	"github.com/Oxen-AI/oxen-release-sub010/diff"
	"github.com/Oxen-AI/oxen-release-sub010/ignore"
	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/stager"
	"github.com/Oxen-AI/oxen-release-sub010/status"
	"github.com/Oxen-AI/oxen-release-sub010/syncengine"
	"github.com/Oxen-AI/oxen-release-sub010/treebuilder"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

// lockTimeout bounds how long Open waits for the exclusive repository
// lock before giving up. A lock held past this is assumed to belong to
// a wedged process, not a slow one.
const lockTimeout = 10 * time.Second

// Repo is the top-level handle a CLI or embedder opens once per
// invocation. It owns the exclusive on-disk lock (spec §5, §6.1) and
// wires every storage and algorithm component together; none of those
// components take the lock themselves.
type Repo struct {
	layout Layout
	lock   *flock.Flock

	db      *nodedb.DB
	refs    *refstore.Store
	store   *versionstore.Store
	stager  *stager.Stager
	reader  *treereader.Reader
	builder *treebuilder.Builder
	commit  *committer.Committer
	out     *checkout.Checkout
	status  *status.Checker
	cfg     *config.Config
}

// Init creates a new .oxen directory under root and returns the opened
// Repo. It fails with oxenerr.InvalidInput if root is already a
// repository. env should come from a single config.LoadEnv() call made
// once by the caller (cmd/oxen's main); Repo never reads OXEN_* itself.
func Init(root string, env config.Env) (*Repo, error) {
	layout := NewLayout(root)
	if layout.Exists() {
		return nil, oxenerr.New(oxenerr.InvalidInput, "repo.init", root)
	}
	for _, dir := range []string{layout.OxenDir, layout.VersionsDir(), layout.NodesDir(), layout.StagedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, oxenerr.Wrap(oxenerr.TransportError, "repo.init", dir, err)
		}
	}
	cfg := &config.Config{Remotes: map[string]config.Remote{}}
	if err := cfg.Save(layout.OxenDir); err != nil {
		return nil, err
	}
	r, err := open(layout, env)
	if err != nil {
		return nil, err
	}
	if err := r.refs.SetHeadToRef("main"); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Open opens an existing repository rooted at root (or an ancestor of
// root containing .oxen), acquiring the exclusive lock. See Init for
// the env parameter's provenance.
func Open(root string, env config.Env) (*Repo, error) {
	found, err := discover(root)
	if err != nil {
		return nil, err
	}
	return open(NewLayout(found), env)
}

// discover walks upward from start looking for a .oxen directory, the
// same ancestor-search behavior most working-copy-based tools use.
func discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", oxenerr.Wrap(oxenerr.InvalidInput, "repo.open", start, err)
	}
	for {
		if NewLayout(dir).Exists() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", oxenerr.New(oxenerr.NotFound, "repo.open", start)
		}
		dir = parent
	}
}

func open(layout Layout, env config.Env) (*Repo, error) {
	lock := flock.New(layout.LockPath())
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.Locked, "repo.open", layout.LockPath(), err)
	}
	if !locked {
		return nil, oxenerr.New(oxenerr.Locked, "repo.open", layout.LockPath())
	}

	r, err := assemble(layout, env)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	r.lock = lock
	return r, nil
}

func assemble(layout Layout, env config.Env) (*Repo, error) {
	db, err := nodedb.Open(layout.NodesDir())
	if err != nil {
		return nil, err
	}
	refs, err := refstore.Open(layout.RefsDir())
	if err != nil {
		return nil, err
	}
	store, err := versionstore.New(layout.VersionsDir(), versionstore.WithChunkSize(int(env.ChunkSize)))
	if err != nil {
		return nil, err
	}
	st, err := stager.Open(layout.StagedDir(), store)
	if err != nil {
		return nil, err
	}
	reader, err := treereader.New(db, 0)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(layout.OxenDir)
	if err != nil {
		return nil, err
	}

	return &Repo{
		layout:  layout,
		db:      db,
		refs:    refs,
		store:   store,
		stager:  st,
		reader:  reader,
		builder: treebuilder.New(store, treebuilder.WithMaxWorkers(env.NumThreads)),
		commit:  committer.New(db, refs, reader, st),
		out:     checkout.New(reader, refs, store),
		status:  status.New(reader, st),
		cfg:     cfg,
	}, nil
}

// Close releases the exclusive lock and the underlying storage handles.
// A Repo must not be used again after Close.
func (r *Repo) Close() error {
	if err := r.stager.Close(); err != nil {
		return err
	}
	if err := r.db.Close(); err != nil {
		return err
	}
	return r.lock.Unlock()
}

// Root returns the working directory this Repo is rooted at.
func (r *Repo) Root() string { return r.layout.Root }

// Config returns the loaded .oxen/config.
func (r *Repo) Config() *config.Config { return r.cfg }

// loadMatcher loads the repository root's .oxenignore chain.
func (r *Repo) loadMatcher() (*ignore.Matcher, error) {
	return ignore.Load(r.layout.Root)
}

// Add stages relPath (a file or directory subtree under Root), skipping
// anything loadMatcher's rules ignore (spec §4.8).
func (r *Repo) Add(relPath string) error {
	matcher, err := r.loadMatcher()
	if err != nil {
		return err
	}
	head, err := r.refs.GetHead()
	if err != nil {
		return err
	}
	var headTree stager.HeadTree = stager.NoHead{}
	if !head.Commit.IsZero() {
		headTree = r.reader.BoundToCommit(head.Commit)
	}
	return r.stager.Add(r.layout.Root, relPath, headTree, matcher.IsIgnored)
}

// AddContext is Add's context-aware sibling (spec §5): Add, Commit,
// Checkout, and Restore do no I/O a context could usefully cancel
// mid-flight once staged, so these variants only bound the operation's
// start, while Push, Pull, and AddAll thread ctx all the way through
// their network and worker-pool calls.
func (r *Repo) AddContext(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Add(relPath)
}

// AddAll stages every file under relPath (the whole repository when
// empty) using treebuilder.Builder's bounded-concurrency directory scan
// rather than Add's serial per-file walk, reusing unchanged FileNodes
// from HEAD the same way Commit would. It is the bulk counterpart to
// Add, worthwhile once a subtree holds enough files that parallel
// hashing beats a serial os.Stat-per-file walk.
func (r *Repo) AddAll(ctx context.Context, relPath string) error {
	matcher, err := r.loadMatcher()
	if err != nil {
		return err
	}
	head, err := r.refs.GetHead()
	if err != nil {
		return err
	}
	var headTree stager.HeadTree = stager.NoHead{}
	var prevLookup treebuilder.PreviousLookup = treebuilder.NoPrevious
	var oldDir *objects.DirNode
	if !head.Commit.IsZero() {
		headTree = r.reader.BoundToCommit(head.Commit)
		prevLookup = treereader.NewPreviousTree(r.reader, head.Commit)
		d, err := r.reader.GetDir(head.Commit, relPath)
		if err != nil && !oxenerr.Is(err, oxenerr.NotFound) {
			return err
		}
		oldDir = d
	}
	if oldDir == nil {
		oldDir = diff.EmptyDir
	}

	result, err := r.builder.Build(ctx, filepath.Join(r.layout.Root, relPath), matcher, prevLookup)
	if err != nil {
		return err
	}
	fresh := diff.NewMapSource(result.Nodes)

	var oldSrc diff.NodeSource = diff.MapSource{}
	if !head.Commit.IsZero() {
		oldSrc = r.reader.Source(head.Commit)
	}
	changes, err := diff.Trees(oldSrc, oldDir, fresh, result.Root, relPath)
	if err != nil {
		return err
	}

	for _, c := range changes {
		if c.Kind != objects.EntryFile {
			continue
		}
		switch c.Type {
		case diff.Removed:
			if err := r.stager.MarkRemoved(c.Path); err != nil {
				return err
			}
		case diff.Added, diff.Modified:
			n, err := fresh.GetNode(c.NewHash)
			if err != nil {
				return err
			}
			file, ok := n.(*objects.FileNode)
			if !ok {
				return oxenerr.New(oxenerr.IntegrityError, "repo.add_all", c.Path)
			}
			if err := r.stager.PutFile(c.Path, file, headTree); err != nil {
				return err
			}
		}
	}
	return nil
}

// Rm removes relPath from the staging table, recording it as a pending
// removal against HEAD.
func (r *Repo) Rm(relPath string) error {
	head, err := r.refs.GetHead()
	if err != nil {
		return err
	}
	var headTree stager.HeadTree = stager.NoHead{}
	if !head.Commit.IsZero() {
		headTree = r.reader.BoundToCommit(head.Commit)
	}
	return r.stager.Rm(relPath, headTree)
}

// Status reports staged and unstaged changes against HEAD (spec §4.8).
func (r *Repo) Status() (*status.Report, error) {
	head, err := r.refs.GetHead()
	if err != nil {
		return nil, err
	}
	matcher, err := r.loadMatcher()
	if err != nil {
		return nil, err
	}
	return r.status.Report(r.layout.Root, head.Commit, matcher)
}

// Commit folds the staging table onto HEAD and advances the current
// branch (or detached HEAD) to the new commit (spec §4.9).
func (r *Repo) Commit(message, author, email string) (*objects.CommitNode, error) {
	return r.commit.Commit(message, author, email)
}

// CommitContext is Commit's context-aware sibling (spec §5).
func (r *Repo) CommitContext(ctx context.Context, message, author, email string) (*objects.CommitNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Commit(message, author, email)
}

// LogEntry is one commit in Log's ancestry walk.
type LogEntry struct {
	Hash   objects.Hash
	Commit *objects.CommitNode
}

// Log walks first-parent history backward from start (HEAD if the zero
// hash), stopping after limit commits (0 means unbounded).
func (r *Repo) Log(start objects.Hash, limit int) ([]LogEntry, error) {
	cur := start
	if cur.IsZero() {
		head, err := r.refs.GetHead()
		if err != nil {
			return nil, err
		}
		cur = head.Commit
	}
	var entries []LogEntry
	for !cur.IsZero() {
		if limit > 0 && len(entries) >= limit {
			break
		}
		c, err := r.reader.GetCommit(cur)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LogEntry{Hash: cur, Commit: c})
		if len(c.ParentHashes) == 0 {
			break
		}
		cur = c.ParentHashes[0]
	}
	return entries, nil
}

// Branches lists every ref name.
func (r *Repo) Branches() ([]string, error) {
	return r.refs.ListRefs()
}

// Branch creates or updates name to point at HEAD's current commit.
func (r *Repo) Branch(name string) error {
	head, err := r.refs.GetHead()
	if err != nil {
		return err
	}
	if head.Commit.IsZero() {
		return oxenerr.New(oxenerr.InvalidInput, "repo.branch", name)
	}
	return r.refs.SetRef(name, head.Commit)
}

// Checkout moves HEAD to refOrCommit and materializes it onto Root
// (spec §4.10). force lets the caller discard uncommitted changes.
func (r *Repo) Checkout(refOrCommit string, force bool) error {
	return r.out.ToRef(r.layout.Root, refOrCommit, r.status, checkout.Options{Force: force})
}

// CheckoutContext is Checkout's context-aware sibling (spec §5).
func (r *Repo) CheckoutContext(ctx context.Context, refOrCommit string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Checkout(refOrCommit, force)
}

// Restore re-materializes relPath as it existed at fromCommit without
// moving HEAD. An empty fromCommit restores from the current HEAD.
func (r *Repo) Restore(relPath string, fromCommit objects.Hash) error {
	if fromCommit.IsZero() {
		head, err := r.refs.GetHead()
		if err != nil {
			return err
		}
		fromCommit = head.Commit
	}
	return r.out.Restore(r.layout.Root, relPath, fromCommit)
}

// RestoreContext is Restore's context-aware sibling (spec §5).
func (r *Repo) RestoreContext(ctx context.Context, relPath string, fromCommit objects.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Restore(relPath, fromCommit)
}

// Diff returns the changes between two commits (spec §4.11). An empty
// fromCommit diffs against the empty tree (useful for "everything
// toCommit introduced").
func (r *Repo) Diff(fromCommit, toCommit objects.Hash) ([]diff.Change, error) {
	var dirA *objects.DirNode
	srcA := diff.NodeSource(diff.MapSource{})
	if !fromCommit.IsZero() {
		a, err := r.reader.GetRoot(fromCommit)
		if err != nil {
			return nil, err
		}
		dirA = a
		srcA = r.reader.Source(fromCommit)
	} else {
		dirA = diff.EmptyDir
	}
	dirB, err := r.reader.GetRoot(toCommit)
	if err != nil {
		return nil, err
	}
	return diff.Trees(srcA, dirA, r.reader.Source(toCommit), dirB, "")
}

// syncClient builds a syncengine.Client targeting remoteURL with
// ClientConfig's built-in defaults; no rate limit is set.
func (r *Repo) syncClient(remoteURL string) *syncengine.Client {
	return syncengine.NewClient(syncengine.ClientConfig{BaseURL: remoteURL}, r.db, r.reader, r.store)
}

// remoteURL resolves a configured remote name (or a literal URL passed
// straight through) to a base URL.
func (r *Repo) remoteURL(remote string) (string, error) {
	if rm, ok := r.cfg.Remotes[remote]; ok {
		return rm.URL, nil
	}
	return remote, nil
}

// Push uploads branch's local commit to remote, rejecting the push if
// the remote branch has moved since expectedPrevious was recorded (spec
// §4.12). An empty expectedPrevious skips that check.
func (r *Repo) Push(ctx context.Context, remote, branch string, expectedPrevious objects.Hash) error {
	url, err := r.remoteURL(remote)
	if err != nil {
		return err
	}
	local, err := r.refs.GetRef(branch)
	if err != nil {
		return err
	}
	return r.syncClient(url).Push(ctx, branch, local, expectedPrevious)
}

// Pull fetches every node and blob branch's remote commit needs but
// this repository lacks, then advances the local ref to match (spec
// §4.12).
func (r *Repo) Pull(ctx context.Context, remote, branch string) (objects.Hash, error) {
	url, err := r.remoteURL(remote)
	if err != nil {
		return objects.Hash{}, err
	}
	commit, err := r.syncClient(url).Pull(ctx, branch)
	if err != nil {
		return objects.Hash{}, err
	}
	if err := r.refs.SetRef(branch, commit); err != nil {
		return objects.Hash{}, err
	}
	return commit, nil
}

// Serve returns an http.Handler exposing this repository over the sync
// protocol (spec §4.12), for a remote-side process to mount under
// /api/repos/{ns}/{name}.
func (r *Repo) Serve() http.Handler {
	return syncengine.NewServer(r.db, r.store, r.refs).Handler()
}
