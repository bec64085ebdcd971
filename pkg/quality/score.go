package quality

// Penalty returns the score deduction for a single issue of the given
// severity. Unknown severities deduct nothing.
func Penalty(sev Severity) float64 {
	switch sev {
	case SevCritical:
		return PenaltyCritical
	case SevMajor:
		return PenaltyMajor
	case SevMinor:
		return PenaltyMinor
	default:
		return 0
	}
}

// Score computes the quality score for a set of issues and metrics. Bonuses
// and penalties are summed first and the total is clamped to [0, 100]
// afterwards, so a bonus can absorb a penalty but never lift the score past
// the maximum. The result does not depend on issue order. Metrics flagged
// with a syntax or analysis failure always score zero.
func Score(issues []Issue, m Metrics) float64 {
	if m.SyntaxError || m.Error {
		return MinScore
	}

	score := BaseScore
	for _, iss := range issues {
		score -= Penalty(iss.Severity)
	}

	if m.HasDocstrings {
		score += BonusDocstrings
	}
	if m.HasTypeHints {
		score += BonusTypeHints
	}
	if m.HasTests {
		score += BonusTests
	}

	return clamp(score)
}

func clamp(score float64) float64 {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Classify maps a score to its quality level.
func Classify(score float64) Level {
	switch {
	case score >= ThresholdExcellent:
		return LevelExcellent
	case score >= ThresholdGood:
		return LevelGood
	case score >= ThresholdFair:
		return LevelFair
	default:
		return LevelPoor
	}
}

// NewReport assembles a report from analyser output: score, level and
// suggestions are all derived from issues and metrics.
func NewReport(issues []Issue, m Metrics) *Report {
	if issues == nil {
		issues = []Issue{}
	}
	score := Score(issues, m)
	return &Report{
		Score:       score,
		Level:       Classify(score),
		Issues:      issues,
		Suggestions: Suggest(issues, m),
		Metrics:     m,
	}
}

// WithIssues returns a new report with extra issues appended and the score,
// level and suggestions recomputed. The receiver is left untouched.
// Failure reports are terminal and returned unchanged.
func (r *Report) WithIssues(extra ...Issue) *Report {
	if len(extra) == 0 || r.Failed() {
		return r
	}
	issues := make([]Issue, 0, len(r.Issues)+len(extra))
	issues = append(issues, r.Issues...)
	issues = append(issues, extra...)
	return NewReport(issues, r.Metrics)
}

// SyntaxErrorReport is the terminal report for code that could not be parsed.
func SyntaxErrorReport(message string, line int) *Report {
	return NewReport([]Issue{{
		Category: CatSyntaxError,
		Severity: SevCritical,
		Message:  message,
		Line:     line,
	}}, Metrics{SyntaxError: true})
}

// ErrorReport is the terminal report for an internal analysis fault.
func ErrorReport(message string) *Report {
	return NewReport([]Issue{{
		Category: CatAnalysisError,
		Severity: SevCritical,
		Message:  message,
	}}, Metrics{Error: true})
}
