package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

// Stats aggregates the stored history.
type Stats struct {
	Total    int            `json:"total"`
	Files    int            `json:"files"`
	AvgScore float64        `json:"avg_score"`
	ByKind   map[string]int `json:"by_kind"`
	ByLevel  map[string]int `json:"by_level"`
}

// Add stores a record and indexes it. A missing ID or timestamp is filled in.
func (s *Store) Add(r *Record) error {
	if s.search == nil {
		return errSearchClosed
	}
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketRecords).Put([]byte(r.ID), data)
	})
	if err != nil {
		return err
	}
	return s.search.Index(r.ID, toSearchDoc(r))
}

// Get retrieves a record by ID.
func (s *Store) Get(id string) (*Record, error) {
	var r Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketRecords).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	if s.search == nil {
		return errSearchClosed
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketRecords)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	return s.search.Delete(id)
}

func (o SearchOptions) matches(r *Record) bool {
	switch {
	case o.Kind != "" && r.Kind != o.Kind:
		return false
	case o.FilePath != "" && !strings.Contains(r.FilePath, o.FilePath):
		return false
	case o.Language != "" && r.Language != o.Language:
		return false
	case o.Level != "" && string(r.Level) != o.Level:
		return false
	case o.Category != "" && !hasCategory(r, o.Category):
		return false
	}
	return true
}

func hasCategory(r *Record, category string) bool {
	for _, iss := range r.Issues {
		if iss.Category == category {
			return true
		}
	}
	return false
}

// each visits matching records newest first until fn returns false. ULID
// keys sort by creation time, so walking the cursor backwards is newest first.
func (s *Store) each(opts SearchOptions, fn func(*Record) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketRecords).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if !opts.matches(&r) {
				continue
			}
			if !fn(&r) {
				return nil
			}
		}
		return nil
	})
}

// List returns records matching opts, newest first.
func (s *Store) List(opts SearchOptions) ([]*Record, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	var out []*Record
	err := s.each(opts, func(r *Record) bool {
		out = append(out, r)
		return limit < 0 || len(out) < limit
	})
	return out, err
}

// Latest returns the newest record for a file.
func (s *Store) Latest(filePath string) (*Record, error) {
	var found *Record
	err := s.each(SearchOptions{}, func(r *Record) bool {
		if r.FilePath == filePath {
			found = r
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Stats aggregates records matching opts. Limit is ignored.
func (s *Store) Stats(opts SearchOptions) (*Stats, error) {
	st := &Stats{
		ByKind:  make(map[string]int),
		ByLevel: make(map[string]int),
	}
	files := make(map[string]bool)
	var sum float64
	err := s.each(opts, func(r *Record) bool {
		st.Total++
		st.ByKind[string(r.Kind)]++
		st.ByLevel[string(r.Level)]++
		if r.FilePath != "" {
			files[r.FilePath] = true
		}
		sum += r.Score
		return true
	})
	if err != nil {
		return nil, err
	}
	st.Files = len(files)
	if st.Total > 0 {
		st.AvgScore = sum / float64(st.Total)
	}
	return st, nil
}

// Clear removes every record and resets the search index. It returns the
// number of records removed.
func (s *Store) Clear() (int, error) {
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		n = tx.Bucket(BucketRecords).Stats().KeyN
		if err := tx.DeleteBucket(BucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucket(BucketRecords)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := s.resetIndex(); err != nil {
		return n, err
	}
	return n, nil
}
