// Package ignore matches paths against gitignore-style patterns loaded from a
// project's .qguardignore file and a built-in list of generated-code globs.
//
// Supported syntax:
//
//	# comment
//	*.pb.go          match a base name at any depth
//	gen/             match directories only (trailing slash)
//	/scripts/*.py    anchored to the project root (leading or inner slash)
//	**/fixtures/     match at any depth
//	!keep.pb.go      re-include a path matched earlier
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-project ignore file, read from the project root.
const FileName = ".qguardignore"

// Defaults skip generated and vendored code that nobody edits by hand.
// Directory names the walker always prunes (.git, node_modules and the like)
// live in watcher.DefaultSkipDirs.
var Defaults = []string{
	"*.pb.go",
	"*_generated.go",
	"*.gen.go",
	"*.pb.ts",
	"*.pb.js",
	"*.min.js",
	"*_pb2.py",
	"**/testdata/",
	"**/fixtures/",
}

// Matcher tests slash-separated paths relative to the project root. The zero
// value ignores nothing.
type Matcher struct {
	rules []rule
}

type rule struct {
	glob    string
	negate  bool
	dirOnly bool
}

// New builds a Matcher from patterns, later patterns taking precedence.
func New(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		if err := m.add(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load returns the defaults followed by root's .qguardignore, if any.
func Load(root string) (*Matcher, error) {
	m, err := New(Defaults...)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(root, FileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := m.add(line); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
	}
	return m, sc.Err()
}

func (m *Matcher) add(pattern string) error {
	var r rule
	if strings.HasPrefix(pattern, "!") {
		r.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" || pattern == "/" {
		return fmt.Errorf("empty ignore pattern")
	}
	switch {
	case strings.HasPrefix(pattern, "/"):
		pattern = pattern[1:]
	case !strings.Contains(pattern, "/"):
		// Slash-free patterns match the base name at any depth.
		pattern = "**/" + pattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid ignore pattern %q", pattern)
	}
	r.glob = pattern
	m.rules = append(m.rules, r)
	return nil
}

// Match reports whether rel is ignored. A file is also ignored when one of
// its parent directories is, unless a negated rule names the file itself.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), "/")
	rel = strings.TrimPrefix(rel, "./")
	if rel == "" || rel == "." {
		return false
	}

	ignored, matched := m.eval(rel, isDir)
	if matched {
		return ignored
	}
	for dir := parent(rel); dir != ""; dir = parent(dir) {
		if ignored, matched := m.eval(dir, true); matched && ignored {
			return true
		}
	}
	return false
}

// eval applies the rules in order; the last match wins.
func (m *Matcher) eval(rel string, isDir bool) (ignored, matched bool) {
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(r.glob, rel); ok {
			ignored, matched = !r.negate, true
		}
	}
	return ignored, matched
}

func parent(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}
