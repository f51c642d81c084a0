// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package versionstore

// DefaultChunkSize is the default fixed chunk size (spec §4.2): 16 MiB.
// Overridable per Store via OXEN_CHUNK_SIZE.
const DefaultChunkSize = 16 << 20
