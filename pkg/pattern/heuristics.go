package pattern

import (
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
)

type heuristic struct {
	pattern    *rules.Pattern
	category   string
	message    string
	suggestion string
}

type languageHeuristics struct {
	checks []heuristic
	// tests, when set, marks the file as containing tests on any match.
	tests *rules.Pattern
}

// Heuristic patterns are case-sensitive.
var (
	jsChecks = []heuristic{
		{
			pattern:    rules.MustCompilePattern(`\bvar\s+`, false),
			category:   quality.CatOutdatedSyntax,
			message:    "Use let/const instead of var",
			suggestion: "Replace var with let or const",
		},
		{
			pattern:    rules.MustCompilePattern(`[^=!]==(?!=)`, false),
			category:   quality.CatLooseEquality,
			message:    "Use strict equality (===) instead of loose equality (==)",
			suggestion: "Replace == with ===",
		},
	}

	tsChecks = []heuristic{
		{
			pattern:    rules.MustCompilePattern(`:\s*any\b`, false),
			category:   quality.CatWeakTyping,
			message:    `Avoid using "any" type`,
			suggestion: "Use specific types instead of any",
		},
	}

	jsTests = rules.MustCompilePattern("\\b(?:describe|it|test)\\s*\\(\\s*[\"'`]", false)
)

var heuristics = map[string]languageHeuristics{
	"javascript": {checks: jsChecks, tests: jsTests},
	// TypeScript is a superset of JavaScript, so it gets the JavaScript
	// checks too.
	"typescript": {checks: append(append([]heuristic{}, jsChecks...), tsChecks...), tests: jsTests},
}

func heuristicsFor(language string) languageHeuristics {
	return heuristics[language]
}
