// Package store persists module state in SQLite, one JSON document per
// module key.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

type DocumentStore struct {
	DB *sql.DB
}

func NewDocumentStore(dbPath string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized and lets ":memory:" work.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS module_state (
			key TEXT PRIMARY KEY,
			document TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &DocumentStore{DB: db}, nil
}

// Load decodes the document stored under key into v. It reports false,
// leaving v untouched, when nothing was saved yet.
func (s *DocumentStore) Load(ctx context.Context, key string, v any) (bool, error) {
	var doc string
	err := s.DB.QueryRowContext(ctx, `SELECT document FROM module_state WHERE key = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Save replaces the document stored under key.
func (s *DocumentStore) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	query := `INSERT INTO module_state (key, document, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`
	if _, err := s.DB.ExecContext(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored module keys.
func (s *DocumentStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key FROM module_state ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *DocumentStore) Close() error {
	return s.DB.Close()
}
