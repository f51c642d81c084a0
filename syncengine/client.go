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

package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/treereader"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

// ClientConfig configures a Client's concurrency and retry behavior
// (spec §4.12: bounded concurrent requests, an optional bytes-per-second
// limit on blob transfers, bounded retries with backoff). There is no
// separate cap on bytes in flight.
type ClientConfig struct {
	BaseURL          string        // e.g. "https://oxen.example.com/api/repos/alice/data"
	HTTPClient       *http.Client  // defaults to http.DefaultClient
	MaxConcurrency   int64         // default 16
	RateLimitBytesPS float64       // bytes/sec budget for blob transfers, default unlimited
	MaxRetries       int           // default 5
	BaseBackoff      time.Duration // default 200ms
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	const (
		defaultConcurrency = 16
		defaultRetries     = 5
		defaultBackoff     = 200 * time.Millisecond
	)
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultConcurrency
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetries
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = defaultBackoff
	}
	return cfg
}

// Client drives the push/pull algorithms of spec §4.12 against a remote
// Server, bounding request concurrency with a semaphore and blob
// transfer rate with a token bucket, the same pairing the teacher uses
// for its DNS discovery client (one limiter guarding one resource class).
type Client struct {
	cfg     ClientConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	db      *nodedb.DB
	reader  *treereader.Reader
	store   *versionstore.Store
}

// NewClient builds a Client bound to a local repository's storage.
func NewClient(cfg ClientConfig, db *nodedb.DB, reader *treereader.Reader, store *versionstore.Store) *Client {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.RateLimitBytesPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitBytesPS), int(cfg.RateLimitBytesPS))
	}
	return &Client{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrency),
		limiter: limiter,
		db:      db,
		reader:  reader,
		store:   store,
	}
}

// GetBranch fetches a remote branch's current commit hash.
func (c *Client) GetBranch(ctx context.Context, name string) (objects.Hash, error) {
	var resp branchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/branches/"+name, nil, &resp); err != nil {
		return objects.Hash{}, err
	}
	return oxenhash.ParseHash(resp.CommitHash)
}

// Pull fetches every node and blob reachable from branch's remote commit
// that this repository does not already have, and returns that commit's
// hash (spec §4.12 step "pull"); it does not move any local ref, which
// Repo.Pull does afterwards. The walk is breadth-first over node hashes:
// each round checks a batch of hashes against the local NodeDB, fetches
// exactly the missing ones, and repeats with the fetched nodes' own child
// hashes, so partial/shallow histories never force a full transfer
// (treereader.MissingNodeError is what a caller sees locally if a pull is
// interrupted before it reaches every referenced node).
func (c *Client) Pull(ctx context.Context, branch string) (objects.Hash, error) {
	target, err := c.GetBranch(ctx, branch)
	if err != nil {
		return objects.Hash{}, err
	}
	if err := c.pullNodeTree(ctx, target); err != nil {
		return objects.Hash{}, err
	}
	if err := c.pullMissingBlobs(ctx, target); err != nil {
		return objects.Hash{}, err
	}
	return target, nil
}

func (c *Client) pullNodeTree(ctx context.Context, root objects.Hash) error {
	frontier := []objects.Hash{root}
	seen := map[objects.Hash]bool{}
	for len(frontier) > 0 {
		var missing []objects.Hash
		for _, h := range frontier {
			has, err := c.db.Has(h)
			if err != nil {
				return err
			}
			if !has {
				missing = append(missing, h)
			}
		}
		var next []objects.Hash
		for _, h := range missing {
			if seen[h] {
				continue
			}
			seen[h] = true
			node, err := c.fetchNode(ctx, root, h)
			if err != nil {
				return err
			}
			next = append(next, childHashes(node)...)
		}
		frontier = next
	}
	return nil
}

func (c *Client) filterMissing(ctx context.Context, hashes []objects.Hash, path string) ([]objects.Hash, error) {
	req := hashesRequest{Hashes: make([]string, len(hashes))}
	for i, h := range hashes {
		req.Hashes[i] = h.String()
	}
	var resp missingResponse
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	out := make([]objects.Hash, 0, len(resp.Missing))
	for _, hs := range resp.Missing {
		h, err := oxenhash.ParseHash(hs)
		if err != nil {
			return nil, oxenerr.Wrap(oxenerr.TransportError, "syncengine.filter_missing", hs, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *Client) fetchNode(ctx context.Context, commit, h objects.Hash) (objects.Node, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	var body []byte
	err := c.withRetry(ctx, func() error {
		b, err := c.getRaw(ctx, "/tree/nodes/"+h.String())
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	node, err := objects.Decode(body)
	if err != nil {
		return nil, oxenerr.Wrap(oxenerr.IntegrityError, "syncengine.fetch_node", h.String(), err)
	}
	if f, ok := node.(*objects.FileNode); ok {
		// A FileNode's hash is its file's content hash, which the encoding
		// does not carry: stamp the hash it was requested by.
		f.SetHash(h)
	}
	if err := c.db.PutNodes(commit, []objects.Node{node}); err != nil {
		return nil, err
	}
	return node, nil
}

// childHashes returns the hashes a node references, so the pull
// frontier can walk the tree one level at a time without ever loading a
// full commit's node set at once. For a CommitNode this includes both
// its root directory and its parent commits, so a full pull/push walks
// the entire ancestor chain rather than stopping at the target commit.
func childHashes(n objects.Node) []objects.Hash {
	switch v := n.(type) {
	case *objects.CommitNode:
		out := make([]objects.Hash, 0, 1+len(v.ParentHashes))
		out = append(out, v.RootDirHash)
		out = append(out, v.ParentHashes...)
		return out
	case *objects.DirNode:
		if v.ChildrenHash.IsZero() {
			return nil
		}
		return []objects.Hash{v.ChildrenHash}
	case *objects.VNode:
		out := make([]objects.Hash, 0, len(v.Entries))
		for _, e := range v.Entries {
			out = append(out, e.Hash)
		}
		return out
	default:
		return nil
	}
}

// pullMissingBlobs walks every FileNode reachable from root (via the
// already-fetched node tree) and fetches whatever blob content the
// local versionstore is missing.
func (c *Client) pullMissingBlobs(ctx context.Context, root objects.Hash) error {
	view := c.reader.BoundToCommit(root)
	var fileHashes []objects.Hash
	err := view.WalkFiles("", func(relPath string, f *objects.FileNode) error {
		fileHashes = append(fileHashes, f.ChunkHashes...)
		return nil
	})
	if err != nil {
		return err
	}
	var missing []objects.Hash
	for _, h := range fileHashes {
		ok, err := c.store.Exists(h)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, h)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range missing {
		h := h
		g.Go(func() error { return c.fetchBlob(gctx, h) })
	}
	return g.Wait()
}

func (c *Client) fetchBlob(ctx context.Context, h objects.Hash) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	var body []byte
	err := c.withRetry(ctx, func() error {
		b, err := c.getRaw(ctx, "/blobs/"+h.String())
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.WaitN(ctx, len(body)); err != nil {
			return err
		}
	}
	got, err := c.store.Put(body)
	if err != nil {
		return err
	}
	if got != h {
		return oxenerr.New(oxenerr.IntegrityError, "syncengine.fetch_blob", h.String())
	}
	return nil
}

// Push uploads every node and blob reachable from localCommit that the
// server reports missing, then advances the remote branch, failing with
// a Conflict if the branch moved since expectedPrevious was read (spec
// §4.12's optimistic-concurrency ref update).
func (c *Client) Push(ctx context.Context, branch string, localCommit, expectedPrevious objects.Hash) error {
	if err := c.pushNodeTree(ctx, localCommit); err != nil {
		return err
	}
	if err := c.pushMissingBlobs(ctx, localCommit); err != nil {
		return err
	}
	req := refUpdateRequest{CommitHash: localCommit.String()}
	if !expectedPrevious.IsZero() {
		req.ExpectedPrevious = expectedPrevious.String()
	}
	var resp okResponse
	if err := c.doJSON(ctx, http.MethodPut, "/refs/"+branch, req, &resp); err != nil {
		return err
	}
	log.Info("syncengine: push complete", "branch", branch, "commit", localCommit)
	return nil
}

func (c *Client) pushNodeTree(ctx context.Context, root objects.Hash) error {
	frontier := []objects.Hash{root}
	seen := map[objects.Hash]bool{}
	for len(frontier) > 0 {
		need, err := c.serverNeeds(ctx, frontier)
		if err != nil {
			return err
		}
		var nodes []objects.Node
		var next []objects.Hash
		for _, h := range need {
			if seen[h] {
				continue
			}
			seen[h] = true
			n, err := c.db.GetNodeByHash(h)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
			next = append(next, childHashes(n)...)
		}
		if len(nodes) > 0 {
			if err := c.uploadNodes(ctx, root, nodes); err != nil {
				return err
			}
		}
		frontier = next
	}
	return nil
}

// serverNeeds asks the server which of the given hashes it is missing;
// the server's answer is authoritative about what it already has, so
// the client never uploads a node twice across repeated pushes.
func (c *Client) serverNeeds(ctx context.Context, hashes []objects.Hash) ([]objects.Hash, error) {
	return c.filterMissing(ctx, hashes, "/tree/nodes/missing")
}

func (c *Client) uploadNodes(ctx context.Context, commit objects.Hash, nodes []objects.Node) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	body := encodeNodeStream(nodes)
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/tree/nodes", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("X-Oxen-Commit", commit.String())
		return c.do(req, nil)
	})
}

func (c *Client) pushMissingBlobs(ctx context.Context, root objects.Hash) error {
	view := c.reader.BoundToCommit(root)
	var fileHashes []objects.Hash
	err := view.WalkFiles("", func(relPath string, f *objects.FileNode) error {
		fileHashes = append(fileHashes, f.ChunkHashes...)
		return nil
	})
	if err != nil {
		return err
	}
	missing, err := c.filterMissing(ctx, fileHashes, "/blobs/missing")
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range missing {
		h := h
		g.Go(func() error { return c.uploadBlob(gctx, h) })
	}
	return g.Wait()
}

func (c *Client) uploadBlob(ctx context.Context, h objects.Hash) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)
	body, err := c.store.Get(h)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.WaitN(ctx, len(body)); err != nil {
			return err
		}
	}
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL+"/blobs/"+h.String(), bytes.NewReader(body))
		if err != nil {
			return err
		}
		return c.do(req, nil)
	})
}

// withRetry retries fn up to cfg.MaxRetries times with exponential
// backoff and jitter, matching the bounded-retry requirement of spec
// §4.12. A context cancellation is never retried.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BaseBackoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(c.cfg.BaseBackoff)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = c.do(req, func(r *http.Response) error {
		b, err := io.ReadAll(r.Body)
		body = b
		return err
	})
	return body, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var r io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, r)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, func(resp *http.Response) error {
		if respBody == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(respBody)
	})
}

// do executes req and, on a non-2xx status, decodes the body as an
// errorResponse and surfaces it tagged by HTTP status.
func (c *Client) do(req *http.Request, onSuccess func(*http.Response) error) error {
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return oxenerr.Wrap(oxenerr.TransportError, "syncengine.request", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return oxenerr.New(categoryForStatus(resp.StatusCode), "syncengine.request", req.URL.Path+": "+e.Error+" ("+strconv.Itoa(resp.StatusCode)+")")
	}
	if onSuccess != nil {
		return onSuccess(resp)
	}
	return nil
}

func categoryForStatus(status int) oxenerr.Category {
	switch status {
	case http.StatusNotFound:
		return oxenerr.NotFound
	case http.StatusConflict:
		return oxenerr.Conflict
	case http.StatusUnprocessableEntity:
		return oxenerr.IntegrityError
	case http.StatusBadRequest:
		return oxenerr.InvalidInput
	default:
		return oxenerr.TransportError
	}
}
