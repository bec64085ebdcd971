package rules

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern search. Rule patterns are
// user-configurable backtracking regexes, so a pathological pattern must not
// stall an analysis.
const DefaultMatchTimeout = 2 * time.Second

// Pattern is a compiled rule regex. It is safe for concurrent use.
type Pattern struct {
	Source string
	re     *regexp2.Regexp
}

// Match is one occurrence of a pattern. Offset counts runes from the start
// of the searched text.
type Match struct {
	Offset int
	Text   string
}

// CompilePattern compiles src with Perl/Python-compatible syntax, so
// look-around and the other constructs used by rule authors are accepted.
func CompilePattern(src string, ignoreCase bool) (*Pattern, error) {
	opts := regexp2.None
	if ignoreCase {
		opts = regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(src, opts)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", src, err)
	}
	re.MatchTimeout = DefaultMatchTimeout
	return &Pattern{Source: src, re: re}, nil
}

// MustCompilePattern is CompilePattern for built-in patterns known to be valid.
func MustCompilePattern(src string, ignoreCase bool) *Pattern {
	p, err := CompilePattern(src, ignoreCase)
	if err != nil {
		panic(err)
	}
	return p
}

// FindAll returns every non-overlapping match in text, in order.
func (p *Pattern) FindAll(text string) ([]Match, error) {
	var matches []Match
	m, err := p.re.FindStringMatch(text)
	for m != nil && err == nil {
		matches = append(matches, Match{Offset: m.Index, Text: m.String()})
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", p.Source, err)
	}
	return matches, nil
}

// MatchString reports whether text contains a match.
func (p *Pattern) MatchString(text string) (bool, error) {
	ok, err := p.re.MatchString(text)
	if err != nil {
		return false, fmt.Errorf("pattern %q: %w", p.Source, err)
	}
	return ok, nil
}

func (p *Pattern) String() string {
	return p.Source
}
