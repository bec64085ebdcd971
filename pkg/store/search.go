package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var keyMappingHash = []byte("search_mapping_hash")

// SearchOptions filters Search and List. Empty fields match everything.
type SearchOptions struct {
	Kind     Kind
	FilePath string // exact in Search, substring in List
	Language string
	Level    string
	Category string
	Limit    int // 0 uses the default, negative means unlimited
}

// SearchResult is a record with its relevance.
type SearchResult struct {
	Record *Record
	Score  float64
}

func buildIndexMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create standard analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()

	messages := bleve.NewTextFieldMapping()
	messages.Analyzer = "standard_lower"
	messages.Store = false
	doc.AddFieldMappingsAt("issues", messages)

	suggestions := bleve.NewTextFieldMapping()
	suggestions.Analyzer = "standard_lower"
	suggestions.Store = false
	doc.AddFieldMappingsAt("suggestions", suggestions)

	path := bleve.NewTextFieldMapping()
	path.Analyzer = "standard_lower"
	doc.AddFieldMappingsAt("path", path)

	for _, name := range []string{"kind", "file", "language", "level", "category"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		doc.AddFieldMappingsAt(name, f)
	}

	score := bleve.NewNumericFieldMapping()
	doc.AddFieldMappingsAt("score", score)

	indexMapping.AddDocumentMapping("record", doc)
	indexMapping.DefaultMapping = doc
	return indexMapping, nil
}

func toSearchDoc(r *Record) map[string]interface{} {
	messages := make([]string, 0, len(r.Issues))
	seen := make(map[string]bool)
	var categories []string
	for _, iss := range r.Issues {
		messages = append(messages, iss.Message)
		if !seen[iss.Category] {
			seen[iss.Category] = true
			categories = append(categories, iss.Category)
		}
	}
	return map[string]interface{}{
		"kind":        string(r.Kind),
		"file":        r.FilePath,
		"path":        r.FilePath,
		"language":    r.Language,
		"level":       string(r.Level),
		"category":    categories,
		"score":       r.Score,
		"issues":      strings.Join(messages, "\n"),
		"suggestions": strings.Join(r.Suggestions, "\n"),
	}
}

func (s *Store) openOrCreateIndex() (bleve.Index, error) {
	if _, statErr := os.Stat(s.searchPath); os.IsNotExist(statErr) {
		return s.createIndex()
	}

	index, err := bleve.Open(s.searchPath)
	if err == nil {
		return index, nil
	}

	s.log.Warn("search index corrupted, rebuilding", zap.String("path", s.searchPath), zap.Error(err))
	if removeErr := os.RemoveAll(s.searchPath); removeErr != nil {
		return nil, fmt.Errorf("failed to remove corrupted search index: %w (original error: %v)", removeErr, err)
	}
	return s.createIndex()
}

func (s *Store) createIndex() (bleve.Index, error) {
	m, err := buildIndexMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(s.searchPath, m)
}

// ensureSearchMapping rebuilds the index from bbolt when the mapping stored
// alongside the data differs from the one this binary builds. A fresh store
// has no stored hash and is stamped on the way through.
func (s *Store) ensureSearchMapping() error {
	m, err := buildIndexMapping()
	if err != nil {
		return err
	}
	hash := MappingHash(m)

	var stored string
	if err := s.db.View(func(tx *bolt.Tx) error {
		stored = string(tx.Bucket(BucketMeta).Get(keyMappingHash))
		return nil
	}); err != nil {
		return err
	}
	if hash == stored {
		return nil
	}
	if stored != "" {
		s.log.Info("search mapping changed, rebuilding index")
	}

	if err := s.resetIndex(); err != nil {
		return err
	}
	if err := s.reindex(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketMeta).Put(keyMappingHash, []byte(hash))
	})
}

// resetIndex replaces the index with an empty one. On failure the store is
// left without an index and search calls return errSearchClosed.
func (s *Store) resetIndex() error {
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			return fmt.Errorf("failed to close search index: %w", err)
		}
		s.search = nil
	}
	if err := os.RemoveAll(s.searchPath); err != nil {
		return fmt.Errorf("failed to remove search index: %w", err)
	}
	index, err := s.createIndex()
	if err != nil {
		return fmt.Errorf("failed to recreate search index: %w", err)
	}
	s.search = index
	return nil
}

func (s *Store) reindex() error {
	return s.db.View(func(tx *bolt.Tx) error {
		batch := s.search.NewBatch()
		c := tx.Bucket(BucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if err := batch.Index(r.ID, toSearchDoc(&r)); err != nil {
				return err
			}
		}
		return s.search.Batch(batch)
	})
}

// Search runs a full-text query over issue messages, suggestions and paths,
// narrowed by the keyword filters in opts. An empty query matches all.
func (s *Store) Search(queryStr string, opts SearchOptions) ([]SearchResult, error) {
	if s.search == nil {
		return nil, errSearchClosed
	}
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	} else if limit < 0 {
		limit = 100_000
	}

	var queries []query.Query
	if queryStr != "" {
		queries = append(queries, bleve.NewQueryStringQuery(queryStr))
	}
	for field, value := range map[string]string{
		"kind":     string(opts.Kind),
		"file":     opts.FilePath,
		"language": opts.Language,
		"level":    opts.Level,
		"category": opts.Category,
	} {
		if value == "" {
			continue
		}
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		queries = append(queries, q)
	}

	var searchQuery query.Query
	switch len(queries) {
	case 0:
		searchQuery = bleve.NewMatchAllQuery()
	case 1:
		searchQuery = queries[0]
	default:
		searchQuery = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	res, err := s.search.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r, err := s.Get(hit.ID)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{Record: r, Score: hit.Score})
	}
	return results, nil
}
