// Package analyzer is the single-pass entry point: it picks the rule tier for
// a language, runs the structural and pattern analysers and folds their
// output into a quality report.
package analyzer

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/grammar"
	"github.com/jmylchreest/qguard/pkg/lang"
	"github.com/jmylchreest/qguard/pkg/pattern"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
	"github.com/jmylchreest/qguard/pkg/structural"
)

// Analyzer scores source text. It holds no per-call state and is safe for
// concurrent use.
type Analyzer struct {
	catalog    *rules.Catalog
	structural *structural.Analyzer
	log        *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCatalog sets the rule catalog. The default is rules.Default().
func WithCatalog(c *rules.Catalog) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.catalog = c
		}
	}
}

// WithLoader sets the grammar loader used for structural analysis.
func WithLoader(l grammar.Loader) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.structural = structural.New(l)
		}
	}
}

// WithLogger sets the logger used to report analysis faults.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// New returns an Analyzer with the built-in rules and grammars unless
// overridden.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		catalog:    rules.Default(),
		structural: structural.New(grammar.NewBuiltinRegistry()),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Catalog returns the rule catalog in use.
func (a *Analyzer) Catalog() *rules.Catalog {
	return a.catalog
}

// StructuralLanguages returns the languages analysed through a syntax tree.
func (a *Analyzer) StructuralLanguages() []string {
	return a.structural.Languages()
}

// TierFor returns the rule tier for a language tag: structural when a syntax
// tree analyser is available, generic otherwise.
func (a *Analyzer) TierFor(language string) rules.Tier {
	if a.structural.Supports(lang.Normalize(language)) {
		return rules.TierStructural
	}
	return rules.TierGeneric
}

// Analyze scores code written in language. It never fails: parse errors and
// internal faults come back as terminal reports with a zero score.
func (a *Analyzer) Analyze(code, language string) (report *quality.Report) {
	language = lang.Normalize(language)

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("analysis panicked", zap.String("language", language), zap.Any("panic", r))
			report = quality.ErrorReport(fmt.Sprintf("internal analysis fault: %v", r))
		}
	}()

	if !utf8.ValidString(code) {
		return a.fail(language, pattern.ErrInvalidEncoding)
	}

	tier := a.TierFor(language)
	rs := a.catalog.RulesFor(tier)

	var issues []quality.Issue
	var m quality.Metrics

	if tier == rules.TierStructural {
		res, err := a.structural.Analyze([]byte(code), language, rs)
		var se *structural.SyntaxError
		switch {
		case errors.As(err, &se):
			a.log.Debug("syntax error", zap.String("language", language), zap.Int("line", se.Line))
			return quality.SyntaxErrorReport(se.Error(), se.Line)
		case err != nil:
			return a.fail(language, err)
		}
		issues = append(issues, res.Issues...)
		m = res.Metrics
	}

	pres, err := pattern.Analyze(code, language, rs)
	if err != nil {
		return a.fail(language, err)
	}
	issues = append(issues, pres.Issues...)

	m.TotalLines = pres.Metrics.TotalLines
	m.NonEmptyLines = pres.Metrics.NonEmptyLines
	m.Language = language
	m.HasTests = m.HasTests || pres.Metrics.HasTests

	return quality.NewReport(issues, m)
}

func (a *Analyzer) fail(language string, err error) *quality.Report {
	a.log.Error("analysis failed", zap.String("language", language), zap.Error(err))
	return quality.ErrorReport(err.Error())
}
