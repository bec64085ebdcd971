// Package quality defines the report model shared by the qguard analysers:
// issues, metrics, scores and quality levels.
package quality

// Severity of an issue. Determines the score deduction.
type Severity string

const (
	SevCritical Severity = "critical"
	SevMajor    Severity = "major"
	SevMinor    Severity = "minor"
)

// SeverityRank returns a numeric rank for the given severity level:
// minor=0, major=1, critical=2. Unknown values return -1.
func SeverityRank(sev Severity) int {
	switch sev {
	case SevMinor:
		return 0
	case SevMajor:
		return 1
	case SevCritical:
		return 2
	default:
		return -1
	}
}

// Issue categories. A category is a tag, never free text.
const (
	CatSyntaxError       = "syntax_error"
	CatAnalysisError     = "analysis_error"
	CatFunctionTooLong   = "function_too_long"
	CatClassTooLong      = "class_too_long"
	CatTooManyParameters = "too_many_parameters"
	CatHighComplexity    = "high_complexity"
	CatMissingDocstring  = "missing_docstring"
	CatMissingReturnType = "missing_return_type"
	CatMissingTypeHint   = "missing_type_hint"
	CatLineTooLong       = "line_too_long"
	CatFileTooLong       = "file_too_long"
	CatForbiddenPattern  = "forbidden_pattern"
	CatSecurityIssue     = "security_issue"
	CatOutdatedSyntax    = "outdated_syntax"
	CatLooseEquality     = "loose_equality"
	CatWeakTyping        = "weak_typing"
)

// Issue is a single problem found by an analyser. Issues are values and are
// never modified once emitted.
type Issue struct {
	Category   string   `json:"type" yaml:"type"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Message    string   `json:"message" yaml:"message"`
	Line       int      `json:"line,omitempty" yaml:"line,omitempty"` // 1-indexed, 0 = file level
	Suggestion string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Metrics is the snapshot of measurements taken during one analysis.
type Metrics struct {
	TotalLines      int     `json:"total_lines,omitempty" yaml:"total_lines,omitempty"`
	NonEmptyLines   int     `json:"non_empty_lines,omitempty" yaml:"non_empty_lines,omitempty"`
	Functions       int     `json:"functions,omitempty" yaml:"functions,omitempty"`
	Classes         int     `json:"classes,omitempty" yaml:"classes,omitempty"`
	Imports         int     `json:"imports,omitempty" yaml:"imports,omitempty"`
	ComplexityTotal int     `json:"complexity_total,omitempty" yaml:"complexity_total,omitempty"`
	AvgComplexity   float64 `json:"avg_complexity,omitempty" yaml:"avg_complexity,omitempty"`
	HasDocstrings   bool    `json:"has_docstrings,omitempty" yaml:"has_docstrings,omitempty"`
	HasTypeHints    bool    `json:"has_type_hints,omitempty" yaml:"has_type_hints,omitempty"`
	HasTests        bool    `json:"has_tests,omitempty" yaml:"has_tests,omitempty"`
	Language        string  `json:"language,omitempty" yaml:"language,omitempty"`

	// Structural is set when a syntax tree was walked, i.e. the structural
	// counters above are meaningful rather than absent.
	Structural bool `json:"structural,omitempty" yaml:"structural,omitempty"`

	SyntaxError bool `json:"syntax_error,omitempty" yaml:"syntax_error,omitempty"`
	Error       bool `json:"error,omitempty" yaml:"error,omitempty"`
}

// Level is the quality tier derived from a score.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
)

// Report is the result of analysing one piece of code.
type Report struct {
	Score       float64  `json:"score" yaml:"score"`
	Level       Level    `json:"level" yaml:"level"`
	Issues      []Issue  `json:"issues" yaml:"issues"`
	Suggestions []string `json:"suggestions" yaml:"suggestions"`
	Metrics     Metrics  `json:"metrics" yaml:"metrics"`
}

// Failed reports whether the report is the terminal result of a syntax or
// analysis failure.
func (r *Report) Failed() bool {
	return r.Metrics.SyntaxError || r.Metrics.Error
}

// CountBySeverity returns the number of issues per severity.
func (r *Report) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, iss := range r.Issues {
		counts[iss.Severity]++
	}
	return counts
}
