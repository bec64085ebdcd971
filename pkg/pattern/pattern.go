// Package pattern implements the text-level checks that run for every
// language: line and file length, forbidden constructs, hard-coded secrets
// and a few per-language heuristics.
package pattern

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
)

// ErrInvalidEncoding is returned for source that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("source is not valid UTF-8")

// Result holds the issues found and the text metrics.
type Result struct {
	Issues  []quality.Issue
	Metrics quality.Metrics
}

// Analyze runs every pattern check over src. The language tag only selects
// optional heuristics. An error means the source could not be analysed at
// all; no partial result is returned.
func Analyze(src, language string, rs rules.RuleSet) (*Result, error) {
	if !utf8.ValidString(src) {
		return nil, ErrInvalidEncoding
	}

	lines := strings.Split(src, "\n")
	res := &Result{
		Issues: []quality.Issue{},
		Metrics: quality.Metrics{
			TotalLines: len(lines),
			Language:   language,
		},
	}
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			res.Metrics.NonEmptyLines++
		}
	}

	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if n > rs.MaxLineLength {
			res.add(quality.Issue{
				Category:   quality.CatLineTooLong,
				Severity:   quality.SevMinor,
				Message:    fmt.Sprintf("Line %d exceeds maximum length (%d > %d)", i+1, n, rs.MaxLineLength),
				Line:       i + 1,
				Suggestion: fmt.Sprintf("Break line %d into multiple lines", i+1),
			})
		}
	}

	if len(lines) > rs.MaxFileLength {
		res.add(quality.Issue{
			Category:   quality.CatFileTooLong,
			Severity:   quality.SevMajor,
			Message:    fmt.Sprintf("File too long (%d > %d lines)", len(lines), rs.MaxFileLength),
			Suggestion: "Consider splitting into smaller files",
		})
	}

	idx := newLineIndex(src)

	for _, p := range rs.ForbiddenPatterns() {
		matches, err := p.FindAll(src)
		if err != nil {
			return nil, fmt.Errorf("forbidden pattern: %w", err)
		}
		for _, m := range matches {
			res.add(quality.Issue{
				Category:   quality.CatForbiddenPattern,
				Severity:   quality.SevMajor,
				Message:    "Forbidden pattern found: " + m.Text,
				Line:       idx.line(m.Offset),
				Suggestion: "Remove or replace forbidden pattern",
			})
		}
	}

	for _, p := range rs.SecurityPatterns() {
		matches, err := p.FindAll(src)
		if err != nil {
			return nil, fmt.Errorf("security pattern: %w", err)
		}
		for _, m := range matches {
			res.add(quality.Issue{
				Category:   quality.CatSecurityIssue,
				Severity:   quality.SevCritical,
				Message:    "Potential security issue: hardcoded sensitive data",
				Line:       idx.line(m.Offset),
				Suggestion: "Use environment variables or secure configuration",
			})
		}
	}

	lh := heuristicsFor(language)
	for _, h := range lh.checks {
		matches, err := h.pattern.FindAll(src)
		if err != nil {
			return nil, fmt.Errorf("%s heuristic: %w", h.category, err)
		}
		for _, m := range matches {
			res.add(quality.Issue{
				Category:   h.category,
				Severity:   quality.SevMinor,
				Message:    h.message,
				Line:       idx.line(m.Offset),
				Suggestion: h.suggestion,
			})
		}
	}
	if lh.tests != nil {
		ok, err := lh.tests.MatchString(src)
		if err != nil {
			return nil, fmt.Errorf("test detection: %w", err)
		}
		res.Metrics.HasTests = ok
	}

	return res, nil
}

func (r *Result) add(iss quality.Issue) {
	r.Issues = append(r.Issues, iss)
}

// lineIndex maps rune offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	var idx lineIndex
	off := 0
	for _, r := range src {
		if r == '\n' {
			idx = append(idx, off)
		}
		off++
	}
	return idx
}

// line counts the newlines strictly before offset.
func (idx lineIndex) line(offset int) int {
	return sort.SearchInts(idx, offset) + 1
}
