package structural

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/qguard/pkg/grammar"
	"github.com/jmylchreest/qguard/pkg/quality"
	"github.com/jmylchreest/qguard/pkg/rules"
)

func analyze(t *testing.T, lang, src string, rs rules.RuleSet) *Result {
	t.Helper()
	res, err := New(grammar.NewBuiltinRegistry()).Analyze([]byte(src), lang, rs)
	require.NoError(t, err)
	return res
}

func structuralRules() rules.RuleSet {
	return rules.Default().RulesFor(rules.TierStructural)
}

func categories(issues []quality.Issue) []string {
	out := make([]string, len(issues))
	for i, iss := range issues {
		out[i] = iss.Category
	}
	return out
}

func longFunction(lines int) string {
	src := []string{
		"def process(items):",
		"    total = 0",
		"    if items:",
		"        total = 1",
		"    for item in items:",
		"        total += item",
	}
	for i := 0; len(src) < lines; i++ {
		src = append(src, fmt.Sprintf("    x%d = %d", i, i))
	}
	return strings.Join(src, "\n") + "\n"
}

func TestAnalyze_PythonLongFunction(t *testing.T) {
	res := analyze(t, "python", longFunction(60), structuralRules())

	assert.Equal(t, []string{quality.CatFunctionTooLong, quality.CatMissingDocstring}, categories(res.Issues))
	assert.Equal(t, quality.SevMajor, res.Issues[0].Severity)
	assert.Equal(t, 1, res.Issues[0].Line)
	assert.Equal(t, quality.SevMinor, res.Issues[1].Severity)

	assert.Equal(t, 1, res.Metrics.Functions)
	assert.Equal(t, 3, res.Metrics.ComplexityTotal)
	assert.InDelta(t, 3.0, res.Metrics.AvgComplexity, 1e-9)
	assert.False(t, res.Metrics.HasDocstrings)
	assert.False(t, res.Metrics.HasTypeHints)
	assert.True(t, res.Metrics.Structural)
}

func TestAnalyze_PythonFunctionAtLimit(t *testing.T) {
	// 51 lines span 50 rows, which is not over the limit.
	res := analyze(t, "python", longFunction(51), structuralRules())
	assert.NotContains(t, categories(res.Issues), quality.CatFunctionTooLong)
}

func TestAnalyze_PythonComplexity(t *testing.T) {
	src := `def check(a, b, c):
    """Check things."""
    if a and b and c:
        return 1
    elif a or b:
        return 2
    while a:
        a -= 1
    try:
        pass
    except ValueError:
        pass
    return [x for x in a if x]
`
	res := analyze(t, "python", src, structuralRules())
	assert.Empty(t, res.Issues)
	assert.Equal(t, 8, res.Metrics.ComplexityTotal)
	assert.True(t, res.Metrics.HasDocstrings)
}

func TestAnalyze_PythonHighComplexity(t *testing.T) {
	var b strings.Builder
	b.WriteString("def branchy(x):\n    \"\"\"Branches.\"\"\"\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "    if x == %d:\n        return %d\n", i, i)
	}
	res := analyze(t, "python", b.String(), structuralRules())

	require.Equal(t, []string{quality.CatHighComplexity}, categories(res.Issues))
	assert.Contains(t, res.Issues[0].Message, "(11)")
}

func TestAnalyze_PythonNestedFunctions(t *testing.T) {
	src := `def outer():
    """Outer."""
    def inner():
        """Inner."""
        if x:
            pass
    return inner
`
	res := analyze(t, "python", src, structuralRules())
	assert.Equal(t, 2, res.Metrics.Functions)
	// The outer function's subtree includes the inner branch.
	assert.Equal(t, 4, res.Metrics.ComplexityTotal)
	assert.InDelta(t, 2.0, res.Metrics.AvgComplexity, 1e-9)
}

func TestAnalyze_PythonParameters(t *testing.T) {
	rs := structuralRules()

	src := "def f(self, a, b: int, c=1, d: str = \"x\", *args, e, **kw):\n    \"\"\"Doc.\"\"\"\n"
	res := analyze(t, "python", src, rs)
	assert.NotContains(t, categories(res.Issues), quality.CatTooManyParameters)

	src = "def f(a, b, c, d, e, g):\n    \"\"\"Doc.\"\"\"\n"
	res = analyze(t, "python", src, rs)
	assert.Equal(t, []string{quality.CatTooManyParameters}, categories(res.Issues))

	src = "def f(a, b, c, d, e, g, /, h):\n    \"\"\"Doc.\"\"\"\n"
	res = analyze(t, "python", src, rs)
	assert.Empty(t, res.Issues, "positional-only parameters are not counted")
}

func TestAnalyze_PythonTypeHints(t *testing.T) {
	spec := rules.DefaultSpec(rules.TierStructural)
	spec.RequireTypeHints = true
	rs, err := rules.Compile(rules.TierStructural, spec)
	require.NoError(t, err)

	src := `class Box:
    """A box."""

    def __init__(self, size):
        """Init."""
        self.size = size

    def grow(self, by: int, note):
        """Grow."""
        return by
`
	res := analyze(t, "python", src, rs)
	assert.Equal(t, []string{
		quality.CatMissingTypeHint,   // __init__ size
		quality.CatMissingReturnType, // grow
		quality.CatMissingTypeHint,   // grow note
	}, categories(res.Issues))
	assert.Contains(t, res.Issues[0].Message, "size")
	assert.Contains(t, res.Issues[2].Message, "note")
	assert.True(t, res.Metrics.HasTypeHints)
	assert.Equal(t, 1, res.Metrics.Classes)
	assert.Equal(t, 2, res.Metrics.Functions)
}

func TestAnalyze_PythonClassDocstring(t *testing.T) {
	src := "import os\nfrom sys import path\n\nclass Empty:\n    x = 1\n\nclass Doc:\n    '''Has docs.'''\n"
	res := analyze(t, "python", src, structuralRules())

	require.Equal(t, []string{quality.CatMissingDocstring}, categories(res.Issues))
	assert.Equal(t, 4, res.Issues[0].Line)
	assert.Contains(t, res.Issues[0].Message, "Class Empty")
	assert.Equal(t, 2, res.Metrics.Classes)
	assert.Equal(t, 2, res.Metrics.Imports)
	assert.True(t, res.Metrics.HasDocstrings)
	assert.Zero(t, res.Metrics.AvgComplexity)
}

func TestAnalyze_PythonEmptyDocstring(t *testing.T) {
	res := analyze(t, "python", "def f():\n    \"\"\"   \"\"\"\n", structuralRules())
	assert.Equal(t, []string{quality.CatMissingDocstring}, categories(res.Issues))
}

func TestAnalyze_DocstringsNotRequired(t *testing.T) {
	spec := rules.DefaultSpec(rules.TierStructural)
	spec.RequireDocstrings = false
	rs, err := rules.Compile(rules.TierStructural, spec)
	require.NoError(t, err)

	res := analyze(t, "python", "def f():\n    \"\"\"Doc.\"\"\"\n", rs)
	assert.Empty(t, res.Issues)
	assert.False(t, res.Metrics.HasDocstrings)
}

func TestAnalyze_PythonTests(t *testing.T) {
	res := analyze(t, "python", "def test_add():\n    \"\"\"Adds.\"\"\"\n    assert 1 + 1 == 2\n", structuralRules())
	assert.True(t, res.Metrics.HasTests)

	res = analyze(t, "python", "def add():\n    \"\"\"Adds.\"\"\"\n", structuralRules())
	assert.False(t, res.Metrics.HasTests)
}

func TestAnalyze_PythonAsync(t *testing.T) {
	src := "async def fetch(url):\n    \"\"\"Fetch.\"\"\"\n    async for chunk in url:\n        pass\n"
	res := analyze(t, "python", src, structuralRules())
	assert.Equal(t, 1, res.Metrics.Functions)
	assert.Equal(t, 2, res.Metrics.ComplexityTotal)
}

func TestAnalyze_SyntaxError(t *testing.T) {
	_, err := New(grammar.NewBuiltinRegistry()).Analyze([]byte("def broken(:\n    pass\n"), "python", structuralRules())
	require.Error(t, err)

	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Line)
	assert.Contains(t, se.Error(), "line 1")
}

func TestAnalyze_PythonLegacyStatements(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		line   int
		reason string
	}{
		{"print", "print \"hi\"\n", 1, "Python 2 print statement"},
		{"exec", "x = 1\nexec \"x = 2\"\n", 2, "Python 2 exec statement"},
		{"nested print", "def f():\n    \"\"\"F.\"\"\"\n    print \"hi\"\n", 3, "Python 2 print statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(grammar.NewBuiltinRegistry()).Analyze([]byte(tt.src), "python", structuralRules())
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.line, se.Line)
			assert.Equal(t, tt.reason, se.Reason)
			assert.Contains(t, se.Error(), tt.reason)
		})
	}

	// Calls to print and exec are ordinary Python 3.
	res := analyze(t, "python", "print(\"hi\")\nexec(\"x = 2\")\n", structuralRules())
	assert.Empty(t, res.Issues)
}

func TestAnalyze_Unsupported(t *testing.T) {
	a := New(grammar.NewBuiltinRegistry())
	assert.False(t, a.Supports("javascript"))
	assert.True(t, a.Supports("python"))
	assert.True(t, a.Supports("go"))

	_, err := a.Analyze([]byte("var x = 1"), "javascript", structuralRules())
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestLanguages_MatchBuiltinGrammars(t *testing.T) {
	reg := grammar.NewBuiltinRegistry()
	assert.Equal(t, reg.Names(), New(reg).Languages())
	for _, name := range reg.Names() {
		assert.True(t, Supported(name), "grammar %s has no node table", name)
	}

	assert.Equal(t, []string{"python"}, New(pythonOnly{reg}).Languages())
}

type pythonOnly struct{ *grammar.BuiltinRegistry }

func (p pythonOnly) Has(name string) bool { return name == "python" }

const goSource = `package demo

import (
	"fmt"
	"os"
)

// Config holds settings.
type Config struct {
	Name string
}

type Runner interface{ Run() }

type Count int

// Run does things.
func Run(a, b int, c string) error {
	if a > 0 && b > 0 || c == "" {
		fmt.Println(a, os.Args)
	}
	for i := 0; i < b; i++ {
		switch i {
		case 1:
		case 2:
		default:
		}
	}
	return nil
}

func TestRun(t *testing.T) {}
`

func TestAnalyze_Go(t *testing.T) {
	res := analyze(t, "go", goSource, structuralRules())

	assert.Equal(t, []string{quality.CatMissingDocstring, quality.CatMissingDocstring}, categories(res.Issues))
	assert.Contains(t, res.Issues[0].Message, "Class Runner")
	assert.Contains(t, res.Issues[1].Message, "Function TestRun")

	m := res.Metrics
	assert.Equal(t, 2, m.Functions)
	assert.Equal(t, 2, m.Classes)
	assert.Equal(t, 2, m.Imports)
	// Run: 1 + if + && + || + for + two cases; TestRun: 1.
	assert.Equal(t, 8, m.ComplexityTotal)
	assert.True(t, m.HasDocstrings)
	assert.True(t, m.HasTypeHints)
	assert.True(t, m.HasTests)
}

func TestAnalyze_GoParameters(t *testing.T) {
	src := "package p\n\n// F is f.\nfunc F(a, b, c int, d string, f float64, e ...int) {}\n"
	res := analyze(t, "go", src, structuralRules())
	require.Equal(t, []string{quality.CatTooManyParameters}, categories(res.Issues))
	assert.Contains(t, res.Issues[0].Message, "(6)")
}

func TestGoIsTest(t *testing.T) {
	assert.True(t, goIsTest("TestFoo"))
	assert.True(t, goIsTest("Test"))
	assert.True(t, goIsTest("BenchmarkX"))
	assert.True(t, goIsTest("FuzzParse"))
	assert.True(t, goIsTest("Test_under"))
	assert.False(t, goIsTest("Testify"))
	assert.False(t, goIsTest("Run"))
}

func TestNodeKindString(t *testing.T) {
	assert.Equal(t, "function", KindFunction.String())
	assert.Equal(t, "other", KindOther.String())
	assert.Equal(t, "unknown", NodeKind(99).String())
}
