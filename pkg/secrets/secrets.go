// Package secrets runs a rule-based secret scan over files and reports the
// hits as quality issues. It complements the security patterns of the
// pattern analyser with the much larger titus rule set.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/titus"

	"github.com/jmylchreest/qguard/pkg/quality"
)

// DefaultMaxFileSize bounds the files handed to the scanner.
const DefaultMaxFileSize int64 = 1 << 20

// skipExtensions are binary or generated formats never worth scanning.
var skipExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".o": true, ".a": true,
	".pyc": true, ".pyo": true, ".class": true, ".jar": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".pdf": true,
	".woff": true, ".woff2": true, ".ttf": true,
	".db": true, ".sqlite": true, ".bleve": true, ".lock": true,
}

// Option configures a Scanner.
type Option func(*config)

type config struct {
	validate bool
	maxSize  int64
}

// WithValidation checks matched credentials against their providers. This
// makes network calls; validated secrets are flagged in the issue message.
func WithValidation() Option {
	return func(c *config) { c.validate = true }
}

// WithMaxFileSize sets the size above which files are skipped.
func WithMaxFileSize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// Scanner wraps a titus scanner. It must be closed.
type Scanner struct {
	ts      *titus.Scanner
	maxSize int64
}

// New loads the titus rule set.
func New(opts ...Option) (*Scanner, error) {
	cfg := config{maxSize: DefaultMaxFileSize}
	for _, o := range opts {
		o(&cfg)
	}

	var topts []titus.Option
	if cfg.validate {
		topts = append(topts, titus.WithValidation())
	}
	ts, err := titus.NewScanner(topts...)
	if err != nil {
		return nil, fmt.Errorf("create secrets scanner: %w", err)
	}
	return &Scanner{ts: ts, maxSize: cfg.maxSize}, nil
}

// Close releases the scanner.
func (s *Scanner) Close() {
	s.ts.Close()
}

// RuleCount returns the number of loaded rules.
func (s *Scanner) RuleCount() int {
	return s.ts.RuleCount()
}

// Skip reports whether path should not be scanned, by extension or size.
func (s *Scanner) Skip(path string, size int64) bool {
	return skipExtensions[strings.ToLower(filepath.Ext(path))] || size > s.maxSize
}

// ScanFile returns one critical security issue per secret found in path.
// Files that Skip rejects yield no issues.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]quality.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() || s.Skip(path, info.Size()) {
		return nil, nil
	}

	matches, err := s.ts.ScanFile(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	issues := make([]quality.Issue, 0, len(matches))
	for _, m := range matches {
		msg := fmt.Sprintf("Potential secret: %s (%s)", m.RuleName, m.RuleID)
		if m.ValidationResult != nil && m.ValidationResult.Status == titus.StatusValid {
			msg += " [validated: active credential]"
		}
		line := 0
		if m.Location.Source.Start.Line > 0 {
			line = int(m.Location.Source.Start.Line)
		}
		issues = append(issues, quality.Issue{
			Category:   quality.CatSecurityIssue,
			Severity:   quality.SevCritical,
			Message:    msg,
			Line:       line,
			Suggestion: "Move the credential to the environment or a secrets manager and rotate it",
		})
	}
	return issues, nil
}

// Merge adds deep-scan issues to a report, skipping any line the pattern
// analyser already flagged as a security issue so one secret is penalised
// once. The report is rescored; failure reports are returned unchanged.
func Merge(r *quality.Report, found []quality.Issue) *quality.Report {
	flagged := make(map[int]bool)
	for _, iss := range r.Issues {
		if iss.Category == quality.CatSecurityIssue && iss.Line > 0 {
			flagged[iss.Line] = true
		}
	}
	var extra []quality.Issue
	for _, iss := range found {
		if iss.Line > 0 && flagged[iss.Line] {
			continue
		}
		if iss.Line > 0 {
			flagged[iss.Line] = true
		}
		extra = append(extra, iss)
	}
	return r.WithIssues(extra...)
}
