package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	m, err := New(Defaults...)
	require.NoError(t, err)

	for _, f := range []string{"api.pb.go", "pkg/api/api.pb.go", "types_generated.go", "static/app.min.js", "proto/user_pb2.py"} {
		assert.True(t, m.Match(f, false), f)
	}
	for _, f := range []string{"main.go", "pkg/api/api.go", "app.py", "static/app.js"} {
		assert.False(t, m.Match(f, false), f)
	}
	assert.True(t, m.Match("pkg/lexer/testdata", true))
	assert.True(t, m.Match("pkg/lexer/testdata/bad.py", false))
	assert.True(t, m.Match("fixtures/seed.js", false))
}

func TestDirOnly(t *testing.T) {
	m, err := New("gen/")
	require.NoError(t, err)

	assert.True(t, m.Match("gen", true))
	assert.True(t, m.Match("internal/gen", true))
	assert.False(t, m.Match("gen", false), "a file named gen is not a directory")
	assert.True(t, m.Match("internal/gen/models.go", false))
}

func TestAnchored(t *testing.T) {
	m, err := New("/scripts/*.py", "docs/*.js")
	require.NoError(t, err)

	assert.True(t, m.Match("scripts/setup.py", false))
	assert.False(t, m.Match("tools/scripts/setup.py", false))
	assert.True(t, m.Match("docs/theme.js", false))
	assert.False(t, m.Match("site/docs/theme.js", false))
}

func TestNegation(t *testing.T) {
	m, err := New("*.pb.go", "!keep.pb.go", "vendor/", "!vendor/ours/patched.go")
	require.NoError(t, err)

	assert.True(t, m.Match("a.pb.go", false))
	assert.False(t, m.Match("keep.pb.go", false))
	assert.False(t, m.Match("pkg/keep.pb.go", false))

	assert.True(t, m.Match("vendor/lib/x.go", false))
	assert.False(t, m.Match("vendor/ours/patched.go", false))
}

func TestLastRuleWins(t *testing.T) {
	m, err := New("!*.gen.go", "*.gen.go")
	require.NoError(t, err)
	assert.True(t, m.Match("x.gen.go", false))
}

func TestNormalisesPaths(t *testing.T) {
	m, err := New("*.pb.go")
	require.NoError(t, err)

	assert.True(t, m.Match("./a.pb.go", false))
	assert.True(t, m.Match(filepath.Join("pkg", "a.pb.go"), false))
	assert.False(t, m.Match("", false))
	assert.False(t, m.Match(".", true))
}

func TestNilAndEmpty(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything.go", false))
	assert.False(t, (&Matcher{}).Match("anything.go", false))
}

func TestInvalidPattern(t *testing.T) {
	_, err := New("[unclosed")
	assert.Error(t, err)

	_, err = New("/")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	content := "# local rules\n\nlegacy/\n!api.pb.go\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	m, err := Load(root)
	require.NoError(t, err)

	assert.True(t, m.Match("legacy/old.py", false))
	assert.True(t, m.Match("other.pb.go", false), "defaults still apply")
	assert.False(t, m.Match("api.pb.go", false), "file rules override defaults")
}

func TestLoad_Missing(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.True(t, m.Match("x.pb.go", false))
}

func TestLoad_BadLine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("ok/\n[bad\n"), 0o644))

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}
