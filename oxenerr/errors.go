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

// Package oxenerr defines the error taxonomy shared by every Oxen core
// component: a small set of categories (not types) that callers branch on,
// each wrapping a cause and naming the ref/path/hash it concerns.
package oxenerr

import (
	"errors"
	"fmt"
)

// Category is one of the error categories from the design's error taxonomy.
type Category string

const (
	NotFound         Category = "NotFound"
	IntegrityError   Category = "IntegrityError"
	Conflict         Category = "Conflict"
	Locked           Category = "Locked"
	PermissionDenied Category = "PermissionDenied"
	TransportError   Category = "TransportError"
	InvalidInput     Category = "InvalidInput"
	Unsupported      Category = "Unsupported"
)

// Error is the concrete error type every Oxen component returns. Target
// names the ref, path, or hash the operation concerned, for the one-line
// user-visible summary described in spec §7.
type Error struct {
	Category Category
	Op       string // operation that failed, e.g. "checkout", "nodedb.get_node"
	Target   string // ref/path/hash involved, may be empty
	Err      error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Target == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Category, e.Op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %q: %v", e.Category, e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("%s: %s %q", e.Category, e.Op, e.Target)
}

func (e *Error) Unwrap() error { return e.Err }

// Summary renders the single-line, non-verbose form from spec §7: the
// category, the operation and the quoted target, e.g.
// `NotFound: refstore.get_ref "foo"`.
func (e *Error) Summary() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s %q", e.Category, e.Op, e.Target)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Op)
}

// New constructs an *Error with no wrapped cause.
func New(cat Category, op, target string) *Error {
	return &Error{Category: cat, Op: op, Target: target}
}

// Wrap constructs an *Error wrapping cause. A nil cause returns nil.
func Wrap(cat Category, op, target string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Category: cat, Op: op, Target: target, Err: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of category c.
func Is(err error, c Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == c
	}
	return false
}

// CategoryOf returns the category of err if it (or anything it wraps) is an
// *Error, and ok=false otherwise.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}
