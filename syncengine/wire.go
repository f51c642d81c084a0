// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package syncengine

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Oxen-AI/oxen-release-sub010/objects"
	"github.com/Oxen-AI/oxen-release-sub010/oxenerr"
)

// encodeNodeStream concatenates each node's Encode() output behind a
// uvarint length prefix, the framing used for the body of POST
// .../tree/nodes and its request counterpart in client.go.
func encodeNodeStream(nodes []objects.Node) []byte {
	var buf bytes.Buffer
	for _, n := range nodes {
		enc := n.Encode()
		var lenBuf [binary.MaxVarintLen64]byte
		m := binary.PutUvarint(lenBuf[:], uint64(len(enc)))
		buf.Write(lenBuf[:m])
		buf.Write(enc)
	}
	return buf.Bytes()
}

// decodeNodeStream reverses encodeNodeStream.
func decodeNodeStream(b []byte) ([]objects.Node, error) {
	var nodes []objects.Node
	r := bytes.NewReader(b)
	for r.Len() > 0 {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, oxenerr.Wrap(oxenerr.IntegrityError, "syncengine.decode_node_stream", "", err)
		}
		rec := make([]byte, n)
		if _, err := io.ReadFull(r, rec); err != nil {
			return nil, oxenerr.Wrap(oxenerr.IntegrityError, "syncengine.decode_node_stream", "", err)
		}
		node, err := objects.Decode(rec)
		if err != nil {
			return nil, oxenerr.Wrap(oxenerr.IntegrityError, "syncengine.decode_node_stream", "", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
