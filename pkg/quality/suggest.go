package quality

// categorySuggestion pairs an issue category with its remediation text.
type categorySuggestion struct {
	category string
	text     string
}

// categorySuggestions is ordered: suggestions are emitted in table order,
// never in issue order, so the output is stable for a given category set.
var categorySuggestions = []categorySuggestion{
	{CatSyntaxError, "Fix syntax errors before proceeding"},
	{CatAnalysisError, "Fix analysis errors and try again"},
	{CatFunctionTooLong, "Break down large functions into smaller, focused functions"},
	{CatClassTooLong, "Split large classes into smaller classes with a single responsibility"},
	{CatHighComplexity, "Reduce conditional nesting and extract branches into helper functions"},
	{CatTooManyParameters, "Group related parameters into a configuration object"},
	{CatMissingDocstring, "Add docstrings to all functions and classes"},
	{CatMissingReturnType, "Annotate function return types"},
	{CatMissingTypeHint, "Annotate function parameters with types"},
	{CatSecurityIssue, "Move sensitive data to environment variables"},
	{CatForbiddenPattern, "Replace forbidden patterns with safer alternatives"},
	{CatLineTooLong, "Wrap long lines to stay within the line length limit"},
	{CatFileTooLong, "Split the file into smaller files"},
	{CatOutdatedSyntax, "Use let/const instead of var"},
	{CatLooseEquality, "Use strict equality (===) instead of loose equality (==)"},
	{CatWeakTyping, "Replace any with specific types"},
}

// Metric-driven suggestions.
const (
	suggestSplitModules = "Consider splitting large files into smaller modules"
	suggestTypeHints    = "Add type hints to improve code clarity and maintainability"
)

// Suggest derives remediation text from the set of issue categories present
// and a few metric thresholds. Repeated categories produce one suggestion;
// categories without a table entry are ignored.
func Suggest(issues []Issue, m Metrics) []string {
	present := make(map[string]bool, len(issues))
	for _, iss := range issues {
		present[iss.Category] = true
	}

	suggestions := []string{}
	for _, cs := range categorySuggestions {
		if present[cs.category] {
			suggestions = append(suggestions, cs.text)
		}
	}

	if m.TotalLines > LargeFileLines {
		suggestions = append(suggestions, suggestSplitModules)
	}
	// Type hint coverage is only known when a syntax tree was walked.
	if m.Structural && !m.HasTypeHints {
		suggestions = append(suggestions, suggestTypeHints)
	}

	return suggestions
}
