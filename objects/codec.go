// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package objects

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// The wire format is a compact, self-describing, length-prefixed binary
// encoding (spec §6.1: "a compact self-describing binary format rather
// than JSON"). Every record starts with a kind tag followed by a sequence
// of (field_id, length, bytes) triples, all integers little-endian
// uvarints. Fields are always emitted in ascending field_id order so two
// in-memory representations of the same logical content always produce
// byte-identical encodings, which is what makes node hashes stable.

type fieldWriter struct {
	buf bytes.Buffer
}

func newFieldWriter(kind Kind) *fieldWriter {
	w := &fieldWriter{}
	w.buf.WriteByte(byte(kind))
	return w
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func (w *fieldWriter) field(id uint64, payload []byte) {
	putUvarint(&w.buf, id)
	putUvarint(&w.buf, uint64(len(payload)))
	w.buf.Write(payload)
}

func (w *fieldWriter) stringField(id uint64, s string) {
	if s == "" {
		return
	}
	w.field(id, []byte(s))
}

func (w *fieldWriter) bytesField(id uint64, b []byte) {
	if len(b) == 0 {
		return
	}
	w.field(id, b)
}

func (w *fieldWriter) uvarintField(id uint64, v uint64) {
	if v == 0 {
		return
	}
	var tmp bytes.Buffer
	putUvarint(&tmp, v)
	w.field(id, tmp.Bytes())
}

func (w *fieldWriter) hashField(id uint64, h Hash) {
	if h.IsZero() {
		return
	}
	w.field(id, h.Bytes())
}

func (w *fieldWriter) hashSliceField(id uint64, hs []Hash) {
	if len(hs) == 0 {
		return
	}
	var payload bytes.Buffer
	putUvarint(&payload, uint64(len(hs)))
	for _, h := range hs {
		payload.Write(h.Bytes())
	}
	w.field(id, payload.Bytes())
}

// stringU64MapField encodes a map[string]uint64 with keys sorted for
// canonicalization, e.g. DirNode.DataTypeCounts.
func (w *fieldWriter) stringU64MapField(id uint64, m map[string]uint64) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var payload bytes.Buffer
	putUvarint(&payload, uint64(len(keys)))
	for _, k := range keys {
		putUvarint(&payload, uint64(len(k)))
		payload.WriteString(k)
		putUvarint(&payload, m[k])
	}
	w.field(id, payload.Bytes())
}

func (w *fieldWriter) bytes() []byte {
	return w.buf.Bytes()
}

// fieldReader parses the TLV stream produced by fieldWriter back into a
// field_id -> payload map, and exposes the kind tag.
type fieldReader struct {
	kind   Kind
	fields map[uint64][]byte
	order  []uint64 // ascending, for re-serialization round trip checks
}

func parseFields(b []byte) (*fieldReader, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("objects: empty record")
	}
	r := &fieldReader{kind: Kind(b[0]), fields: make(map[uint64][]byte)}
	buf := bytes.NewReader(b[1:])
	var lastID uint64
	first := true
	for buf.Len() > 0 {
		id, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("objects: reading field id: %w", err)
		}
		length, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("objects: reading field length: %w", err)
		}
		payload := make([]byte, length)
		if n, err := buf.Read(payload); err != nil || uint64(n) != length {
			return nil, fmt.Errorf("objects: truncated field %d", id)
		}
		if !first && id <= lastID {
			return nil, fmt.Errorf("objects: field %d out of canonical order", id)
		}
		first = false
		lastID = id
		r.fields[id] = payload
		r.order = append(r.order, id)
	}
	return r, nil
}

func (r *fieldReader) str(id uint64) string {
	return string(r.fields[id])
}

func (r *fieldReader) u64(id uint64) uint64 {
	b, ok := r.fields[id]
	if !ok {
		return 0
	}
	v, _ := binary.Uvarint(b)
	return v
}

func (r *fieldReader) hash(id uint64) Hash {
	var h Hash
	b, ok := r.fields[id]
	if !ok || len(b) != Size {
		return h
	}
	copy(h[:], b)
	return h
}

func (r *fieldReader) hashSlice(id uint64) []Hash {
	b, ok := r.fields[id]
	if !ok {
		return nil
	}
	buf := bytes.NewReader(b)
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil
	}
	out := make([]Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		var h Hash
		if _, err := buf.Read(h[:]); err != nil {
			return out
		}
		out = append(out, h)
	}
	return out
}

func (r *fieldReader) stringU64Map(id uint64) map[string]uint64 {
	b, ok := r.fields[id]
	if !ok {
		return nil
	}
	buf := bytes.NewReader(b)
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil
	}
	m := make(map[string]uint64, n)
	for i := uint64(0); i < n; i++ {
		klen, err := binary.ReadUvarint(buf)
		if err != nil {
			return m
		}
		key := make([]byte, klen)
		if _, err := buf.Read(key); err != nil {
			return m
		}
		val, err := binary.ReadUvarint(buf)
		if err != nil {
			return m
		}
		m[string(key)] = val
	}
	return m
}
