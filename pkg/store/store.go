// Package store persists analysis and refinement history in bbolt, with a
// bleve index over it for full-text search.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jmylchreest/qguard/pkg/quality"
)

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	errSearchClosed = errors.New("history search index is closed")
)

// Bucket names.
var (
	BucketRecords = []byte("records")
	BucketMeta    = []byte("meta")
)

// Default result limits.
const (
	DefaultListLimit   = 50
	DefaultSearchLimit = 20
)

// Kind is the operation that produced a record.
type Kind string

const (
	KindAnalyze Kind = "analyze"
	KindRefine  Kind = "refine"
)

// Record is one persisted analysis or refinement outcome.
type Record struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	FilePath    string          `json:"file,omitempty"`
	Language    string          `json:"language"`
	Score       float64         `json:"score"`
	Level       quality.Level   `json:"level"`
	Issues      []quality.Issue `json:"issues"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Metrics     quality.Metrics `json:"metrics"`

	// Refinement runs only.
	RunID      string `json:"run_id,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// FromReport builds an analyze record for a file.
func FromReport(path, language string, r *quality.Report) *Record {
	return &Record{
		Kind:        KindAnalyze,
		FilePath:    path,
		Language:    language,
		Score:       r.Score,
		Level:       r.Level,
		Issues:      r.Issues,
		Suggestions: r.Suggestions,
		Metrics:     r.Metrics,
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for index maintenance messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store is the history store. It is safe for concurrent use; bbolt
// serialises writers and bleve indexes are goroutine safe.
type Store struct {
	db         *bolt.DB
	search     bleve.Index
	dir        string
	searchPath string
	log        *zap.Logger
}

// Open opens or creates a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, "history.db"), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketRecords, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	s.db = db

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	s.searchPath = filepath.Join(dir, "search.bleve")
	index, err := s.openOrCreateIndex()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create/open search index: %w", err)
	}
	s.search = index

	if err := s.ensureSearchMapping(); err != nil {
		s.Close()
		return nil, fmt.Errorf("search mapping check failed: %w", err)
	}
	return s, nil
}

// Dir returns the directory the store lives in.
func (s *Store) Dir() string {
	return s.dir
}

// Close closes the index and the database.
func (s *Store) Close() error {
	var errs []error
	if s.search != nil {
		if err := s.search.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close search index: %w", err))
		}
		s.search = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history db: %w", err))
		}
	}
	return errors.Join(errs...)
}
