// Package structural analyses source code through its tree-sitter syntax
// tree: function and class size, parameter counts, cyclomatic complexity,
// and docstring and type annotation coverage.
package structural

import (
	"errors"
	"fmt"
	"slices"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/jmylchreest/qguard/pkg/grammar"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
)

// ErrUnsupportedLanguage is returned for languages without a node table.
var ErrUnsupportedLanguage = errors.New("language has no structural analyser")

// SyntaxError reports the first parse error in the source. Line and Column
// are 1-based.
type SyntaxError struct {
	Line    int
	Column  int
	Missing string
	// Reason names a construct the grammar parsed but the language rejects.
	Reason  string
}

func (e *SyntaxError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid syntax at line %d, column %d: %s", e.Line, e.Column, e.Reason)
	}
	if e.Missing != "" {
		return fmt.Sprintf("invalid syntax at line %d, column %d: missing %q", e.Line, e.Column, e.Missing)
	}
	return fmt.Sprintf("invalid syntax at line %d, column %d", e.Line, e.Column)
}

// Result holds the issues found and the structural metrics. Only the
// structural fields of Metrics are populated.
type Result struct {
	Issues  []quality.Issue
	Metrics quality.Metrics
}

// Analyzer parses source with a compiled-in grammar. Parsers are created per
// call, so an Analyzer is safe for concurrent use.
type Analyzer struct {
	loader grammar.Loader
}

// New returns an Analyzer that loads grammars from loader.
func New(loader grammar.Loader) *Analyzer {
	return &Analyzer{loader: loader}
}

// Supports reports whether lang can be analysed structurally.
func (a *Analyzer) Supports(lang string) bool {
	return Supported(lang) && a.loader.Has(lang)
}

// Languages returns the sorted languages that have both a node table and a
// grammar.
func (a *Analyzer) Languages() []string {
	var out []string
	for name := range languages {
		if a.loader.Has(name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Analyze parses src once and walks the tree. A parse error returns a
// *SyntaxError and no partial result.
func (a *Analyzer) Analyze(src []byte, lang string, rs rules.RuleSet) (*Result, error) {
	spec, ok := languages[lang]
	if !ok {
		return nil, fmt.Errorf("%s: %w", lang, ErrUnsupportedLanguage)
	}
	tsLang, err := a.loader.Load(lang)
	if err != nil {
		return nil, fmt.Errorf("load grammar: %w", err)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree produced", lang)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, firstSyntaxError(root, src)
	}
	if se := spec.firstRejected(root); se != nil {
		return nil, se
	}

	w := &walker{lang: spec, rules: rs, src: src}
	w.walk(root)
	return w.result(), nil
}

func firstSyntaxError(root *tree_sitter.Node, src []byte) *SyntaxError {
	var found *tree_sitter.Node
	var find func(n *tree_sitter.Node)
	find = func(n *tree_sitter.Node) {
		if found != nil || !n.HasError() && !n.IsMissing() {
			return
		}
		if n.IsError() || n.IsMissing() {
			found = n
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			find(n.Child(i))
		}
	}
	find(root)

	if found == nil {
		return &SyntaxError{Line: 1, Column: 1}
	}
	pos := found.StartPosition()
	se := &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1}
	if found.IsMissing() {
		se.Missing = found.Kind()
	}
	return se
}

// firstRejected returns the first node, in source order, whose kind the
// language rejects.
func (l *language) firstRejected(root *tree_sitter.Node) *SyntaxError {
	if len(l.rejected) == 0 {
		return nil
	}
	var se *SyntaxError
	var find func(n *tree_sitter.Node)
	find = func(n *tree_sitter.Node) {
		if se != nil {
			return
		}
		if reason, ok := l.rejected[n.Kind()]; ok {
			pos := n.StartPosition()
			se = &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Reason: reason}
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			find(n.Child(i))
		}
	}
	find(root)
	return se
}

type walker struct {
	lang  *language
	rules rules.RuleSet
	src   []byte

	issues []quality.Issue
	m      quality.Metrics
}

func (w *walker) walk(n *tree_sitter.Node) {
	switch w.lang.classify(n, w.src) {
	case KindFunction:
		w.function(n)
	case KindClass:
		w.class(n)
	case KindImport:
		w.m.Imports++
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		w.walk(n.Child(i))
	}
}

func (w *walker) result() *Result {
	w.m.Structural = true
	if w.lang.staticTypes && w.m.Functions > 0 {
		w.m.HasTypeHints = true
	}
	if w.m.Functions > 0 {
		w.m.AvgComplexity = float64(w.m.ComplexityTotal) / float64(w.m.Functions)
	}
	issues := w.issues
	if issues == nil {
		issues = []quality.Issue{}
	}
	return &Result{Issues: issues, Metrics: w.m}
}

func (w *walker) add(iss quality.Issue) {
	w.issues = append(w.issues, iss)
}

func (w *walker) function(n *tree_sitter.Node) {
	w.m.Functions++
	name := nodeName(n, w.src)
	line := int(n.StartPosition().Row) + 1

	if w.lang.isTest != nil && w.lang.isTest(name) {
		w.m.HasTests = true
	}

	length := int(n.EndPosition().Row - n.StartPosition().Row)
	if length > w.rules.MaxFunctionLength {
		w.add(quality.Issue{
			Category:   quality.CatFunctionTooLong,
			Severity:   quality.SevMajor,
			Message:    fmt.Sprintf("Function %s is too long (%d lines)", name, length),
			Line:       line,
			Suggestion: fmt.Sprintf("Break down %s into smaller functions", name),
		})
	}

	params := w.lang.params(n, w.src)
	if len(params) > w.rules.MaxParameters {
		w.add(quality.Issue{
			Category:   quality.CatTooManyParameters,
			Severity:   quality.SevMinor,
			Message:    fmt.Sprintf("Function %s has too many parameters (%d)", name, len(params)),
			Line:       line,
			Suggestion: fmt.Sprintf("Reduce parameters in %s or use a configuration object", name),
		})
	}

	w.docstring(n, "Function", name, line)

	if !w.lang.staticTypes {
		w.annotations(n, params, name, line)
	}

	complexity := w.complexity(n)
	w.m.ComplexityTotal += complexity
	if complexity > w.rules.MaxComplexity {
		w.add(quality.Issue{
			Category:   quality.CatHighComplexity,
			Severity:   quality.SevMajor,
			Message:    fmt.Sprintf("Function %s has high complexity (%d)", name, complexity),
			Line:       line,
			Suggestion: fmt.Sprintf("Simplify %s by reducing conditional statements", name),
		})
	}
}

func (w *walker) annotations(n *tree_sitter.Node, params []param, name string, line int) {
	hasReturn := w.lang.returnType != nil && w.lang.returnType(n)

	if w.rules.RequireTypeHints {
		if !hasReturn && name != "__init__" {
			w.add(quality.Issue{
				Category:   quality.CatMissingReturnType,
				Severity:   quality.SevMinor,
				Message:    fmt.Sprintf("Function %s missing return type annotation", name),
				Line:       line,
				Suggestion: fmt.Sprintf("Add return type annotation to %s", name),
			})
		}
		for _, p := range params {
			if p.annotated || w.lang.selfNames[p.name] {
				continue
			}
			w.add(quality.Issue{
				Category:   quality.CatMissingTypeHint,
				Severity:   quality.SevMinor,
				Message:    fmt.Sprintf("Parameter %s in %s missing type annotation", p.name, name),
				Line:       line,
				Suggestion: fmt.Sprintf("Add type annotation to parameter %s", p.name),
			})
		}
	}

	if hasReturn {
		w.m.HasTypeHints = true
		return
	}
	for _, p := range params {
		if p.annotated {
			w.m.HasTypeHints = true
			return
		}
	}
}

func (w *walker) class(n *tree_sitter.Node) {
	w.m.Classes++
	name := nodeName(n, w.src)
	line := int(n.StartPosition().Row) + 1

	length := int(n.EndPosition().Row - n.StartPosition().Row)
	if length > w.rules.MaxClassLength {
		w.add(quality.Issue{
			Category:   quality.CatClassTooLong,
			Severity:   quality.SevMajor,
			Message:    fmt.Sprintf("Class %s is too long (%d lines)", name, length),
			Line:       line,
			Suggestion: fmt.Sprintf("Break down %s into smaller classes", name),
		})
	}

	w.docstring(n, "Class", name, line)
}

// docstring checks documentation only when the rules require it, and only
// then records coverage.
func (w *walker) docstring(n *tree_sitter.Node, what, name string, line int) {
	if !w.rules.RequireDocstrings {
		return
	}
	if w.lang.docstring(n, w.src) {
		w.m.HasDocstrings = true
		return
	}
	w.add(quality.Issue{
		Category:   quality.CatMissingDocstring,
		Severity:   quality.SevMinor,
		Message:    fmt.Sprintf("%s %s missing docstring", what, name),
		Line:       line,
		Suggestion: fmt.Sprintf("Add docstring to %s", name),
	})
}

// complexity is 1 plus one per branch, exception handler and logical
// operator anywhere in the function's subtree, nested definitions included.
func (w *walker) complexity(fn *tree_sitter.Node) int {
	complexity := 1
	var count func(n *tree_sitter.Node)
	count = func(n *tree_sitter.Node) {
		switch w.lang.classify(n, w.src) {
		case KindConditionalBranch, KindExceptionHandler, KindBooleanOp:
			complexity++
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			count(n.Child(i))
		}
	}
	for i := uint(0); i < fn.ChildCount(); i++ {
		count(fn.Child(i))
	}
	return complexity
}
