// Copyright 2026 The Oxen Authors
// This file is part of the Oxen core library.

package treebuilder

import (
	"mime"
	"path/filepath"
	"strings"
)

// classify returns a coarse data_type bucket and a best-effort MIME type
// for name, used to populate FileNode and to roll DirNode.data_type_counts
// up the tree. It is intentionally shallow: anything requiring content
// inspection (e.g. sniffing a tabular file's delimiter) belongs to the
// DataFrame engine this core does not depend on.
func classify(name string) (dataType, mimeType string) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".tsv", ".parquet", ".arrow", ".jsonl", ".ndjson":
		dataType = "tabular"
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tiff":
		dataType = "image"
	case ".wav", ".mp3", ".flac", ".ogg", ".m4a":
		dataType = "audio"
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		dataType = "video"
	case ".txt", ".md", ".json", ".yaml", ".yml", ".xml", ".html", ".py", ".go":
		dataType = "text"
	default:
		dataType = "binary"
	}
	if m := mime.TypeByExtension(ext); m != "" {
		mimeType = m
	} else {
		mimeType = "application/octet-stream"
	}
	return dataType, mimeType
}
