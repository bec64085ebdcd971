package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/jmylchreest/qguard/pkg/quality"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func record(path, lang string, score float64, issues ...quality.Issue) *Record {
	return &Record{
		Kind:     KindAnalyze,
		FilePath: path,
		Language: lang,
		Score:    score,
		Level:    quality.Classify(score),
		Issues:   issues,
	}
}

var evalIssue = quality.Issue{
	Category: quality.CatForbiddenPattern,
	Severity: quality.SevMajor,
	Message:  "Forbidden pattern found: eval(",
	Line:     2,
}

var longLine = quality.Issue{
	Category: quality.CatLineTooLong,
	Severity: quality.SevMinor,
	Message:  "Line too long (130 > 88)",
	Line:     7,
}

func TestAddGet(t *testing.T) {
	s, _ := openTestStore(t)

	r := record("src/app.py", "python", 87, evalIssue)
	require.NoError(t, s.Add(r))
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.FilePath, got.FilePath)
	assert.Equal(t, quality.LevelGood, got.Level)
	assert.Equal(t, []quality.Issue{evalIssue}, got.Issues)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFromReport(t *testing.T) {
	rep := quality.NewReport([]quality.Issue{longLine}, quality.Metrics{TotalLines: 9, Language: "python"})
	r := FromReport("a.py", "python", rep)
	assert.Equal(t, KindAnalyze, r.Kind)
	assert.InDelta(t, 97, r.Score, 1e-9)
	assert.Equal(t, rep.Suggestions, r.Suggestions)
	assert.Equal(t, 9, r.Metrics.TotalLines)
}

func TestListNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	for _, path := range []string{"a.py", "b.py", "c.go"} {
		require.NoError(t, s.Add(record(path, "python", 80)))
	}

	all, err := s.List(SearchOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c.go", all[0].FilePath)
	assert.Equal(t, "a.py", all[2].FilePath)

	limited, err := s.List(SearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	py, err := s.List(SearchOptions{FilePath: ".py", Limit: -1})
	require.NoError(t, err)
	assert.Len(t, py, 2)
}

func TestListFilters(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add(record("a.py", "python", 95)))
	require.NoError(t, s.Add(record("b.js", "javascript", 60, evalIssue)))
	refined := record("a.py", "python", 92)
	refined.Kind = KindRefine
	refined.Iterations = 2
	require.NoError(t, s.Add(refined))

	byKind, err := s.List(SearchOptions{Kind: KindRefine})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, 2, byKind[0].Iterations)

	byLang, err := s.List(SearchOptions{Language: "javascript"})
	require.NoError(t, err)
	assert.Len(t, byLang, 1)

	byCat, err := s.List(SearchOptions{Category: quality.CatForbiddenPattern})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, "b.js", byCat[0].FilePath)

	byLevel, err := s.List(SearchOptions{Level: string(quality.LevelExcellent)})
	require.NoError(t, err)
	assert.Len(t, byLevel, 2)
}

func TestLatest(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add(record("a.py", "python", 50)))
	require.NoError(t, s.Add(record("a.py", "python", 70)))
	require.NoError(t, s.Add(record("b.py", "python", 90)))

	r, err := s.Latest("a.py")
	require.NoError(t, err)
	assert.InDelta(t, 70, r.Score, 1e-9)

	_, err = s.Latest("nope.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add(record("src/app.py", "python", 87, evalIssue)))
	require.NoError(t, s.Add(record("src/util.py", "python", 97, longLine)))
	require.NoError(t, s.Add(record("web/app.js", "javascript", 90, evalIssue)))

	res, err := s.Search("eval", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search("eval", SearchOptions{Language: "python"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "src/app.py", res[0].Record.FilePath)
	assert.Positive(t, res[0].Score)

	res, err = s.Search("", SearchOptions{Category: quality.CatLineTooLong})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "src/util.py", res[0].Record.FilePath)

	res, err = s.Search("", SearchOptions{FilePath: "web/app.js"})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = s.Search("", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestDelete(t *testing.T) {
	s, _ := openTestStore(t)
	r := record("a.py", "python", 80, evalIssue)
	require.NoError(t, s.Add(r))
	require.NoError(t, s.Delete(r.ID))

	_, err := s.Get(r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	res, err := s.Search("eval", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.ErrorIs(t, s.Delete(r.ID), ErrNotFound)
}

func TestStats(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add(record("a.py", "python", 100)))
	require.NoError(t, s.Add(record("a.py", "python", 60)))
	require.NoError(t, s.Add(record("b.go", "go", 80)))

	st, err := s.Stats(SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Files)
	assert.InDelta(t, 80, st.AvgScore, 1e-9)
	assert.Equal(t, 3, st.ByKind[string(KindAnalyze)])
	assert.Equal(t, 1, st.ByLevel[string(quality.LevelFair)])

	empty, err := s.Stats(SearchOptions{Language: "rust"})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AvgScore)
}

func TestClear(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Add(record("a.py", "python", 80, evalIssue)))
	require.NoError(t, s.Add(record("b.py", "python", 80, evalIssue)))

	n, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.List(SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, all)
	res, err := s.Search("eval", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)

	// Still writable after a clear.
	require.NoError(t, s.Add(record("c.py", "python", 90)))
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	r := record("a.py", "python", 87, evalIssue)
	require.NoError(t, s.Add(r))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	res, err := s.Search("eval", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestMappingChangeRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Add(record("a.py", "python", 87, evalIssue)))

	// Simulate an index built by an older mapping.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketMeta).Put(keyMappingHash, []byte("stale"))
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Search("eval", SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSchemaVersionStamped(t *testing.T) {
	s, _ := openTestStore(t)
	v, err := schemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Add(record("a.py", "python", 1))
	assert.True(t, errors.Is(err, errSearchClosed))
	_, err = s.Search("x", SearchOptions{})
	assert.True(t, errors.Is(err, errSearchClosed))
}
