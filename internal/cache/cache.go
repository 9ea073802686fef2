// Package cache is an on-disk cache of fetched publication records, so
// repeated runs over the same authors don't re-hit the bibliographic API.
//
// Records are keyed by EID plus the affiliation filter they were fetched
// under: the fetch applies the subtype and affiliation checks before a
// record ever reaches the cache, so a record admitted under one filter
// must not be served to a run using a different one.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bau-research/appscore/internal/publication"
)

// Cache wraps a SQLite database keyed by EID.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS publications (
			eid TEXT NOT NULL,
			affiliation_id TEXT NOT NULL,
			record_json TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (eid, affiliation_id)
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the publication cached for an EID under the given affiliation
// filter, or false on a miss. A record that no longer unmarshals is treated
// as a miss.
func (c *Cache) Get(eid, affiliationID string) (*publication.Publication, bool, error) {
	var raw string
	err := c.db.QueryRow(
		"SELECT record_json FROM publications WHERE eid = ? AND affiliation_id = ?",
		eid, affiliationID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}

	var pub publication.Publication
	if err := json.Unmarshal([]byte(raw), &pub); err != nil {
		return nil, false, nil
	}
	return &pub, true, nil
}

// Put stores a publication record under the given affiliation filter,
// replacing any previous entry for the same key.
func (c *Cache) Put(pub *publication.Publication, affiliationID string) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO publications (eid, affiliation_id, record_json, fetched_at) VALUES (?, ?, ?, ?)",
		pub.EID, affiliationID, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// Len returns the number of cached records.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM publications").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache: %w", err)
	}
	return n, nil
}
