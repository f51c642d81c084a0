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

// Package syncengine implements the push/pull wire protocol described in
// spec §4.12 and §6.2: a JSON control plane over HTTPS for metadata, a
// binary body plane for node records and blob bytes, bounded request
// concurrency, and an optional bytes-per-second limit on blob transfers.
package syncengine

// versionResponse answers GET /api/version.
type versionResponse struct {
	Version string `json:"version"`
}

// branchResponse answers GET .../branches/{b} (and is one element of the
// list answering GET .../branches).
type branchResponse struct {
	Name       string `json:"name"`
	CommitHash string `json:"commit_hash"`
}

// hashesRequest is the body of POST .../tree/nodes/missing and
// .../blobs/missing.
type hashesRequest struct {
	Hashes []string `json:"hashes"`
}

// missingResponse answers both "missing" endpoints.
type missingResponse struct {
	Missing []string `json:"missing"`
}

// okResponse is the generic acknowledgement body.
type okResponse struct {
	OK       bool   `json:"ok"`
	Hash     string `json:"hash,omitempty"`
	Received int    `json:"received,omitempty"`
}

// completeRequest is the body of POST .../blobs/{hash}/complete.
type completeRequest struct {
	TotalChunks int `json:"total_chunks"`
}

// refUpdateRequest is the body of PUT .../refs/{name}.
type refUpdateRequest struct {
	CommitHash       string `json:"commit_hash"`
	ExpectedPrevious string `json:"expected_previous"`
}

// errorResponse is the JSON body returned alongside non-2xx statuses.
type errorResponse struct {
	Error string `json:"error"`
}
