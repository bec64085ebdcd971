package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2/mapping"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// SchemaVersion is the current schema version. Increment this when adding new migrations.
const SchemaVersion uint64 = 1

var keySchemaVersion = []byte("schema_version")

type migration struct {
	version     uint64
	description string
	migrate     func(tx *bolt.Tx) error
}

// migrations are applied once each, in order, inside a single transaction.
var migrations = []migration{
	{version: 1, description: "baseline schema stamp", migrate: func(*bolt.Tx) error { return nil }},
}

func (s *Store) runMigrations() error {
	current, err := schemaVersion(s.db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is ahead of binary version %d (downgrade not supported)", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			s.log.Info("applying migration", zap.Uint64("version", m.version), zap.String("description", m.description))
			if err := m.migrate(tx); err != nil {
				return fmt.Errorf("migration v%d (%s) failed: %w", m.version, m.description, err)
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, SchemaVersion)
		return tx.Bucket(BucketMeta).Put(keySchemaVersion, buf)
	})
}

// schemaVersion returns 0 for a fresh database.
func schemaVersion(db *bolt.DB) (uint64, error) {
	var version uint64
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("corrupt schema_version: expected 8 bytes, got %d", len(data))
		}
		version = binary.BigEndian.Uint64(data)
		return nil
	})
	return version, err
}

// MappingHash computes a deterministic SHA-256 hex digest of a Bleve index mapping.
// Used to detect when a mapping has changed and the search index needs rebuilding.
func MappingHash(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
