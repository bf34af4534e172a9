// Package snapshot persists an image of the normalized store to
// SQLite, and loads it back with per-row integrity verification. The
// cache itself is purely in-memory; snapshots are an offline concern
// (warm starts, inspection tooling), so this package deliberately works
// on exported record maps rather than a live cache.
package snapshot

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/normgraph/normgraph/value"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (records + meta)
const currentSchemaVersion = 1

// Store is an open snapshot database.
type Store struct {
	db *sql.DB
}

// Open creates or opens a snapshot database at the given path.
// Idempotent: pragmas and schema apply on every open.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent snapshot saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the snapshot contents with the given record image
// (as produced by cache.Export). The replacement is transactional: a
// failed save leaves the previous snapshot intact.
func (s *Store) Save(records map[value.EntityID]value.Object) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (entity_id, storage_key, value_json, content_hash)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, rec := range records {
		for key, v := range rec {
			data, err := value.MarshalCanonical(v)
			if err != nil {
				return fmt.Errorf("serialize %s/%s: %w", id, key, err)
			}
			if _, err := stmt.Exec(string(id), key, string(data), recordHash(data)); err != nil {
				return fmt.Errorf("insert %s/%s: %w", id, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	return nil
}

// Load reads the full record image back, verifying each row's content
// hash. A hash mismatch means the snapshot was corrupted or edited out
// of band and fails the whole load.
func (s *Store) Load() (map[value.EntityID]value.Object, error) {
	rows, err := s.db.Query(`
		SELECT entity_id, storage_key, value_json, content_hash
		FROM records
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(map[value.EntityID]value.Object)
	for rows.Next() {
		var id, key, valueJSON, contentHash string
		if err := rows.Scan(&id, &key, &valueJSON, &contentHash); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}

		if got := recordHash([]byte(valueJSON)); got != contentHash {
			return nil, fmt.Errorf("content hash mismatch for %s/%s", id, key)
		}

		v, err := value.Unmarshal([]byte(valueJSON))
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", id, key, err)
		}

		eid := value.EntityID(id)
		rec, ok := out[eid]
		if !ok {
			rec = make(value.Object)
			out[eid] = rec
		}
		rec[key] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

// EntityIDs lists the distinct entities in the snapshot, sorted.
func (s *Store) EntityIDs() ([]value.EntityID, error) {
	rows, err := s.db.Query("SELECT DISTINCT entity_id FROM records")
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []value.EntityID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		out = append(out, value.EntityID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity ids: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the
// schema version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("snapshot schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	// No migrations yet; later versions slot in here sequentially.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
