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

// Package ignore implements the .oxenignore pattern matcher (spec §4.5):
// gitignore-syntax glob patterns, "!" negation, directory-only trailing
// "/", and parent-directory inheritance.
package ignore

import (
	"bufio"
	"os"
	"path"
	"strings"
)

// OxenDirName is the hidden metadata directory name. It is always
// ignored and cannot be un-ignored by any negation pattern.
const OxenDirName = ".oxen"

type rule struct {
	pattern    string
	negate     bool
	dirOnly    bool
	anchored   bool // pattern contained a "/" before the final segment
}

// Matcher evaluates a path against a stack of rule sets, one per
// directory level, deepest last (spec_full: deepest matching rule wins,
// same as git's own documented precedence).
type Matcher struct {
	levels [][]rule // levels[0] is the repo root's .oxenignore
}

// New returns an empty Matcher (nothing ignored but .oxen/ itself).
func New() *Matcher {
	return &Matcher{}
}

// Load reads repo root's .oxenignore, if present, and returns a Matcher
// seeded with it.
func Load(repoRoot string) (*Matcher, error) {
	m := New()
	if err := m.Push(repoRoot); err != nil {
		return nil, err
	}
	return m, nil
}

// Push parses dir's .oxenignore (if any) and adds it as the next,
// deepest level. Call once per directory as TreeBuilder's walk descends.
func (m *Matcher) Push(dir string) error {
	rules, err := parseIgnoreFile(path.Join(dir, ".oxenignore"))
	if err != nil {
		return err
	}
	m.levels = append(m.levels, rules)
	return nil
}

// Pop removes the deepest level, for when the walk ascends back out of a
// directory.
func (m *Matcher) Pop() {
	if len(m.levels) > 0 {
		m.levels = m.levels[:len(m.levels)-1]
	}
}

func parseIgnoreFile(filePath string) ([]rule, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rules []rule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		r := rule{}
		if strings.HasPrefix(trimmed, "!") {
			r.negate = true
			trimmed = trimmed[1:]
		}
		if strings.HasSuffix(trimmed, "/") {
			r.dirOnly = true
			trimmed = strings.TrimSuffix(trimmed, "/")
		}
		if strings.Contains(strings.TrimSuffix(trimmed, "/"), "/") {
			r.anchored = true
			trimmed = strings.TrimPrefix(trimmed, "/")
		} else {
			trimmed = strings.TrimPrefix(trimmed, "/")
		}
		r.pattern = trimmed
		rules = append(rules, r)
	}
	return rules, sc.Err()
}

// IsIgnored reports whether relPath (slash-separated, relative to the
// repo root) should be excluded from tracking. isDir tells the matcher
// whether a dirOnly ("trailing /") rule may apply.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	if relPath == OxenDirName || strings.HasPrefix(relPath, OxenDirName+"/") {
		return true
	}
	name := path.Base(relPath)

	ignored := false
	// Deepest level wins: later levels' rules override earlier ones, and
	// within a level, later lines override earlier ones (both match
	// gitignore's documented precedence).
	for _, level := range m.levels {
		for _, r := range level {
			if r.dirOnly && !isDir {
				continue
			}
			var matched bool
			if r.anchored {
				matched = globMatch(r.pattern, relPath)
			} else {
				matched = globMatch(r.pattern, name) || globMatch(r.pattern, relPath)
			}
			if matched {
				ignored = !r.negate
			}
		}
	}
	return ignored
}

func globMatch(pattern, target string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := path.Match(pattern, target)
		return err == nil && ok
	}
	return doubleStarMatch(strings.Split(pattern, "/"), strings.Split(target, "/"))
}

// doubleStarMatch matches a "**"-aware gitignore pattern against a
// slash-split path, segment by segment. A "**" segment consumes zero or
// more target segments; any other segment is matched with path.Match
// against exactly one target segment.
func doubleStarMatch(patternSegs, targetSegs []string) bool {
	if len(patternSegs) == 0 {
		return len(targetSegs) == 0
	}
	if patternSegs[0] == "**" {
		if doubleStarMatch(patternSegs[1:], targetSegs) {
			return true
		}
		if len(targetSegs) > 0 && doubleStarMatch(patternSegs, targetSegs[1:]) {
			return true
		}
		return false
	}
	if len(targetSegs) == 0 {
		return false
	}
	if ok, err := path.Match(patternSegs[0], targetSegs[0]); err != nil || !ok {
		return false
	}
	return doubleStarMatch(patternSegs[1:], targetSegs[1:])
}
