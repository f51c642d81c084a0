// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package syncengine

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Oxen-AI/oxen-release-sub010/nodedb"
	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
	"github.com/Oxen-AI/oxen-release-sub010/oxenhash"
	"github.com/Oxen-AI/oxen-release-sub010/refstore"
	"github.com/Oxen-AI/oxen-release-sub010/versionstore"
)

// ProtocolVersion is returned by GET /api/version.
const ProtocolVersion = "1"

// DefaultBlobPageSize is the blob page size of spec §4.12 step 4. Neither
// the "missing" handlers nor Client read it: a "missing" request carries
// and answers all of its hashes in one body, and blobs are transferred
// one per request.
const DefaultBlobPageSize = 256

// Server answers the wire protocol in spec §6.2 against a single
// repository's NodeDB/VersionStore/RefStore. A real deployment would
// route {ns}/{name} to distinct repositories; this Server is scoped to
// one already-resolved repository and the caller's router supplies the
// namespace indirection.
type Server struct {
	db    *nodedb.DB
	store *versionstore.Store
	refs  *refstore.Store
}

// NewServer returns a Server over the given repository components.
func NewServer(db *nodedb.DB, store *versionstore.Store, refs *refstore.Store) *Server {
	return &Server{db: db, store: store, refs: refs}
}

// Handler builds the httprouter-backed http.Handler implementing every
// endpoint in spec §6.2, rooted at /api/repos/:ns/:name.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.GET("/api/version", s.handleVersion)
	r.GET("/api/repos/:ns/:name/branches", s.handleListBranches)
	r.GET("/api/repos/:ns/:name/branches/:b", s.handleGetBranch)
	r.POST("/api/repos/:ns/:name/tree/nodes/missing", s.handleNodesMissing)
	r.POST("/api/repos/:ns/:name/tree/nodes", s.handlePutNodes)
	r.GET("/api/repos/:ns/:name/tree/nodes/:hash", s.handleGetNode)
	r.POST("/api/repos/:ns/:name/blobs/missing", s.handleBlobsMissing)
	r.GET("/api/repos/:ns/:name/blobs/:hash", s.handleGetBlob)
	r.PUT("/api/repos/:ns/:name/blobs/:hash", s.handlePutBlob)
	r.PUT("/api/repos/:ns/:name/blobs/:hash/chunks/:i", s.handlePutChunk)
	r.POST("/api/repos/:ns/:name/blobs/:hash/complete", s.handleBlobComplete)
	r.PUT("/api/repos/:ns/:name/refs/:ref", s.handleSetRef)
	return r
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, versionResponse{Version: ProtocolVersion})
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	names, err := s.refs.ListRefs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]branchResponse, 0, len(names))
	for _, name := range names {
		h, err := s.refs.GetRef(name)
		if err != nil {
			continue
		}
		out = append(out, branchResponse{Name: name, CommitHash: h.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	h, err := s.refs.GetRef(p.ByName("b"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, branchResponse{Name: p.ByName("b"), CommitHash: h.String()})
}

func (s *Server) handleNodesMissing(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req hashesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var missing []string
	for _, hs := range req.Hashes {
		h, err := oxenhash.ParseHash(hs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		has, err := s.db.Has(h)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !has {
			missing = append(missing, hs)
		}
	}
	writeJSON(w, http.StatusOK, missingResponse{Missing: missing})
}

// handlePutNodes accepts a stream of length-prefixed node records (the
// same framing nodedb uses internally for its per-kind files is not
// required here; the wire body is a concatenation of raw
// objects.Node.Encode() byte strings, each prefixed with its uvarint
// length) and writes them all under the commit hash the client names in
// the X-Oxen-Commit header.
func (s *Server) handlePutNodes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	commitHex := r.Header.Get("X-Oxen-Commit")
	commit, err := oxenhash.ParseHash(commitHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	nodes, err := decodeNodeStream(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.db.PutNodes(commit, nodes); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Debug("syncengine: received nodes", "commit", commit, "count", len(nodes))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	h, err := oxenhash.ParseHash(p.ByName("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.db.GetNodeByHash(h)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(n.Encode())
}

func (s *Server) handleBlobsMissing(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req hashesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var missing []string
	for _, hs := range req.Hashes {
		h, err := oxenhash.ParseHash(hs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ok, err := s.store.Exists(h)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			missing = append(missing, hs)
		}
	}
	writeJSON(w, http.StatusOK, missingResponse{Missing: missing})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	h, err := oxenhash.ParseHash(p.ByName("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reader, closeErr := s.openForRead(h)
	if closeErr != nil {
		writeError(w, statusFor(closeErr), closeErr)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// openForRead resolves h to a FileNode's chunk list when one is on file
// (the only way to reconstruct a chunked blob); otherwise reads it as a
// single content-addressed blob.
func (s *Server) openForRead(h objects.Hash) (io.ReadCloser, error) {
	if n, err := s.db.GetNodeByHash(h); err == nil {
		if f, ok := n.(*objects.FileNode); ok && len(f.ChunkHashes) > 0 {
			return s.store.OpenChunked(f.ChunkHashes)
		}
	}
	return s.store.Open(h)
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	expect, err := oxenhash.ParseHash(p.ByName("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	got, err := s.store.Put(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if got != expect {
		writeError(w, http.StatusBadRequest, oxenerr.New(oxenerr.IntegrityError, "syncengine.put_blob", expect.String()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Hash: got.String()})
}

// handlePutChunk stores one chunk of a larger blob. The chunk's expected
// hash comes from the already-transferred FileNode (found via the
// blob's content hash, which doubles as that FileNode's lookup key: see
// objects.FileNode.SetHash), not from the URL, so out-of-order or
// retried chunk uploads can always be verified before being written.
func (s *Server) handlePutChunk(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	fileHash, err := oxenhash.ParseHash(p.ByName("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	idx, err := parseIndex(p.ByName("i"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.db.GetNodeByHash(fileHash)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	f, ok := n.(*objects.FileNode)
	if !ok || idx >= len(f.ChunkHashes) {
		writeError(w, http.StatusBadRequest, oxenerr.New(oxenerr.InvalidInput, "syncengine.put_chunk", p.ByName("i")))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	got, err := s.store.Put(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if got != f.ChunkHashes[idx] {
		writeError(w, http.StatusBadRequest, oxenerr.New(oxenerr.IntegrityError, "syncengine.put_chunk", f.ChunkHashes[idx].String()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, Received: idx})
}

func (s *Server) handleBlobComplete(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	fileHash, err := oxenhash.ParseHash(p.ByName("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.db.GetNodeByHash(fileHash)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	f, ok := n.(*objects.FileNode)
	if !ok || len(f.ChunkHashes) != req.TotalChunks {
		writeError(w, http.StatusBadRequest, oxenerr.New(oxenerr.InvalidInput, "syncengine.blob_complete", fileHash.String()))
		return
	}
	for _, ch := range f.ChunkHashes {
		ok, err := s.store.Exists(ch)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, oxenerr.New(oxenerr.NotFound, "syncengine.blob_complete", ch.String()))
			return
		}
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleSetRef(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req refUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := p.ByName("ref")
	if req.ExpectedPrevious != "" {
		cur, err := s.refs.GetRef(name)
		curHex := ""
		if err == nil {
			curHex = cur.String()
		}
		if curHex != req.ExpectedPrevious {
			writeError(w, http.StatusConflict, oxenerr.New(oxenerr.InvalidInput, "syncengine.set_ref", name))
			return
		}
	}
	commit, err := oxenhash.ParseHash(req.CommitHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.refs.SetRef(name, commit); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Info("syncengine: ref advanced", "ref", name, "commit", commit)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func statusFor(err error) int {
	switch {
	case oxenerr.Is(err, oxenerr.NotFound):
		return http.StatusNotFound
	case oxenerr.Is(err, oxenerr.InvalidInput):
		return http.StatusBadRequest
	case oxenerr.Is(err, oxenerr.IntegrityError):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, oxenerr.New(oxenerr.InvalidInput, "syncengine.parse_index", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, oxenerr.New(oxenerr.InvalidInput, "syncengine.parse_index", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
