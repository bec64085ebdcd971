package analyzer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
)

func sixtyLineFunction() string {
	lines := []string{
		"def process(items):",
		"    total = 0",
		"    if items:",
		"        total = 1",
		"    for item in items:",
		"        total += item",
	}
	for i := 0; len(lines) < 60; i++ {
		lines = append(lines, fmt.Sprintf("    total += %d", i))
	}
	return strings.Join(lines, "\n") + "\n"
}

func categories(r *quality.Report) []string {
	out := make([]string, len(r.Issues))
	for i, iss := range r.Issues {
		out[i] = iss.Category
	}
	return out
}

func TestAnalyze_LongUndocumentedFunction(t *testing.T) {
	r := New().Analyze(sixtyLineFunction(), "python")

	assert.Equal(t, []string{quality.CatFunctionTooLong, quality.CatMissingDocstring}, categories(r))
	assert.InDelta(t, 87, r.Score, 1e-9)
	assert.Equal(t, quality.LevelGood, r.Level)
	assert.Equal(t, 3, r.Metrics.ComplexityTotal)
	assert.Equal(t, 61, r.Metrics.TotalLines)
	assert.Equal(t, "python", r.Metrics.Language)
	assert.Contains(t, r.Suggestions, "Break down large functions into smaller, focused functions")
	assert.Contains(t, r.Suggestions, "Add docstrings to all functions and classes")
}

func TestAnalyze_HardcodedPassword(t *testing.T) {
	for _, language := range []string{"python", "javascript", "ruby"} {
		t.Run(language, func(t *testing.T) {
			r := New().Analyze("password = \"abc123\"\n", language)
			require.Equal(t, []string{quality.CatSecurityIssue}, categories(r))
			assert.Equal(t, quality.SevCritical, r.Issues[0].Severity)
			assert.InDelta(t, 80, r.Score, 1e-9)
			assert.Equal(t, quality.LevelGood, r.Level)
			assert.Contains(t, r.Suggestions, "Move sensitive data to environment variables")
		})
	}
}

func TestAnalyze_SyntaxError(t *testing.T) {
	r := New().Analyze("def broken(:\n    pass\n", "python")

	assert.Zero(t, r.Score)
	assert.Equal(t, quality.LevelPoor, r.Level)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, quality.CatSyntaxError, r.Issues[0].Category)
	assert.Equal(t, quality.SevCritical, r.Issues[0].Severity)
	assert.Equal(t, 1, r.Issues[0].Line)
	assert.True(t, r.Metrics.SyntaxError)
	assert.Equal(t, []string{"Fix syntax errors before proceeding"}, r.Suggestions)
}

func TestAnalyze_Python2Rejected(t *testing.T) {
	r := New().Analyze("print \"hi\"\n", "python")

	assert.Zero(t, r.Score)
	assert.Equal(t, quality.LevelPoor, r.Level)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, quality.CatSyntaxError, r.Issues[0].Category)
	assert.Equal(t, quality.SevCritical, r.Issues[0].Severity)
	assert.Contains(t, r.Issues[0].Message, "print statement")
	assert.True(t, r.Metrics.SyntaxError)
}

func TestAnalyze_GenericLanguageSkipsStructural(t *testing.T) {
	// Invalid Python is fine as JavaScript text.
	r := New().Analyze("def broken(:\n", "javascript")
	assert.False(t, r.Metrics.SyntaxError)
	assert.False(t, r.Metrics.Structural)
	assert.InDelta(t, 100, r.Score, 1e-9)
}

func TestAnalyze_StructuralRunsPatternChecks(t *testing.T) {
	src := "def run(cmd):\n    \"\"\"Run it.\"\"\"\n    return eval(cmd)\n"
	r := New().Analyze(src, "py")

	assert.Equal(t, []string{quality.CatForbiddenPattern}, categories(r))
	assert.Equal(t, 3, r.Issues[0].Line)
	assert.True(t, r.Metrics.Structural)
	assert.True(t, r.Metrics.HasDocstrings)
	// 100 - 10 + 5
	assert.InDelta(t, 95, r.Score, 1e-9)
	assert.Equal(t, quality.LevelExcellent, r.Level)
}

func TestAnalyze_BuiltinCallsCaseSensitive(t *testing.T) {
	goSrc := "package store\n\n// Reset empties the table.\nfunc Reset(db *sql.DB) error {\n\t_, err := db.Exec(\"DELETE FROM t\")\n\treturn err\n}\n"
	r := New().Analyze(goSrc, "go")
	assert.NotContains(t, categories(r), quality.CatForbiddenPattern)

	pySrc := "def run(cmd):\n    \"\"\"Run it.\"\"\"\n    exec(cmd)\n"
	r = New().Analyze(pySrc, "python")
	require.Equal(t, []string{quality.CatForbiddenPattern}, categories(r))
	assert.Equal(t, "Forbidden pattern found: exec(", r.Issues[0].Message)
}

func TestAnalyze_Go(t *testing.T) {
	src := "package calc\n\n// Add adds.\nfunc Add(a, b int) int { return a + b }\n\n// TestAdd checks Add.\nfunc TestAdd(t *testing.T) {}\n"
	r := New().Analyze(src, "golang")

	assert.Empty(t, r.Issues)
	assert.True(t, r.Metrics.HasTypeHints)
	assert.True(t, r.Metrics.HasTests)
	assert.True(t, r.Metrics.HasDocstrings)
	assert.InDelta(t, 100, r.Score, 1e-9)
}

func TestAnalyze_InvalidEncoding(t *testing.T) {
	r := New().Analyze("x = 1\n\xff", "python")
	assert.Zero(t, r.Score)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, quality.CatAnalysisError, r.Issues[0].Category)
	assert.True(t, r.Metrics.Error)
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := New()
	inputs := []struct{ code, lang string }{
		{sixtyLineFunction(), "python"},
		{"var x = 1;\nif (x == 2) { console.log(x) }\n", "javascript"},
		{"let y: any = 1;\n", "typescript"},
		{"def broken(:\n", "python"},
	}
	for _, in := range inputs {
		first := a.Analyze(in.code, in.lang)
		second := a.Analyze(in.code, in.lang)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Analyze(%q) not idempotent (-first +second):\n%s", in.lang, diff)
		}
	}
}

func TestAnalyze_ScoreInRange(t *testing.T) {
	a := New()
	noisy := strings.Repeat("password = 'x'\neval(y)\n"+strings.Repeat("z", 200)+"\n", 30)
	for _, language := range []string{"python", "go", "javascript", "typescript", ""} {
		r := a.Analyze(noisy, language)
		assert.GreaterOrEqual(t, r.Score, quality.MinScore, language)
		assert.LessOrEqual(t, r.Score, quality.MaxScore, language)
		assert.Equal(t, quality.Score(r.Issues, r.Metrics), r.Score, language)
	}
}

func TestAnalyze_CustomCatalog(t *testing.T) {
	spec := rules.DefaultSpec(rules.TierGeneric)
	spec.ForbiddenPatterns = []string{`\bgoto\b`}
	c, err := rules.NewCatalog(map[rules.Tier]rules.Spec{rules.TierGeneric: spec})
	require.NoError(t, err)

	r := New(WithCatalog(c)).Analyze("goto fail;\nconsole.log(1)\n", "c")
	assert.Equal(t, []string{quality.CatForbiddenPattern}, categories(r))
}

type panicLoader struct{}

func (panicLoader) Load(string) (*tree_sitter.Language, error) { panic("grammar exploded") }
func (panicLoader) Has(string) bool                            { return true }

type failingLoader struct{}

func (failingLoader) Load(name string) (*tree_sitter.Language, error) {
	return nil, errors.New("no grammar for " + name)
}
func (failingLoader) Has(string) bool { return true }

func TestAnalyze_RecoversFaults(t *testing.T) {
	r := New(WithLoader(panicLoader{})).Analyze("x = 1\n", "python")
	assert.Zero(t, r.Score)
	assert.Equal(t, quality.LevelPoor, r.Level)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, quality.CatAnalysisError, r.Issues[0].Category)
	assert.Contains(t, r.Issues[0].Message, "grammar exploded")
	assert.True(t, r.Metrics.Error)

	r = New(WithLoader(failingLoader{})).Analyze("x = 1\n", "python")
	require.Len(t, r.Issues, 1)
	assert.Equal(t, quality.CatAnalysisError, r.Issues[0].Category)
	assert.Contains(t, r.Issues[0].Message, "no grammar for python")
}

func TestTierFor(t *testing.T) {
	a := New()
	assert.Equal(t, rules.TierStructural, a.TierFor("python"))
	assert.Equal(t, rules.TierStructural, a.TierFor("Go"))
	assert.Equal(t, rules.TierGeneric, a.TierFor("typescript"))
	assert.Equal(t, rules.TierGeneric, a.TierFor(""))

	for _, l := range a.StructuralLanguages() {
		assert.Equal(t, rules.TierStructural, a.TierFor(l))
	}
}
