package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/qguard/pkg/quality"
)

func TestMerge_SkipsLinesAlreadyFlagged(t *testing.T) {
	base := quality.NewReport([]quality.Issue{
		{Category: quality.CatSecurityIssue, Severity: quality.SevCritical, Line: 3, Message: "Potential security issue: hardcoded sensitive data"},
	}, quality.Metrics{TotalLines: 10, NonEmptyLines: 10})
	require.InDelta(t, 80, base.Score, 1e-9)

	merged := Merge(base, []quality.Issue{
		{Category: quality.CatSecurityIssue, Severity: quality.SevCritical, Line: 3, Message: "Potential secret: AWS API Key"},
		{Category: quality.CatSecurityIssue, Severity: quality.SevCritical, Line: 7, Message: "Potential secret: GitHub Token"},
		{Category: quality.CatSecurityIssue, Severity: quality.SevCritical, Line: 7, Message: "Potential secret: Generic"},
	})

	require.Len(t, merged.Issues, 2)
	assert.Equal(t, 7, merged.Issues[1].Line)
	assert.InDelta(t, 60, merged.Score, 1e-9)
	assert.Len(t, base.Issues, 1, "input report must not change")
}

func TestMerge_FailureReportUnchanged(t *testing.T) {
	failed := quality.SyntaxErrorReport("invalid syntax at line 1, column 1", 1)
	got := Merge(failed, []quality.Issue{{Category: quality.CatSecurityIssue, Severity: quality.SevCritical, Line: 2}})
	assert.Same(t, failed, got)
}

func TestMerge_Nothing(t *testing.T) {
	base := quality.NewReport(nil, quality.Metrics{TotalLines: 1})
	assert.Same(t, base, Merge(base, nil))
}

func TestScanner(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the full rule set")
	}
	s, err := New(WithMaxFileSize(64))
	require.NoError(t, err)
	defer s.Close()

	assert.Positive(t, s.RuleCount())
	assert.True(t, s.Skip("logo.PNG", 1))
	assert.True(t, s.Skip("main.go", 65))
	assert.False(t, s.Skip("main.go", 64))

	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.py")
	require.NoError(t, os.WriteFile(clean, []byte("x = 1\n"), 0o600))

	issues, err := s.ScanFile(context.Background(), clean)
	require.NoError(t, err)
	assert.Empty(t, issues)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ScanFile(ctx, clean)
	assert.ErrorIs(t, err, context.Canceled)
}
