// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Render represents one recorded render invocation
type Render struct {
	ID         int64     `json:"id"`
	Template   string    `json:"template"`
	SourceHash string    `json:"source_hash"`
	Status     string    `json:"status"`
	ErrorMsg   string    `json:"error_msg"`
	DurationMS int64     `json:"duration_ms"`
	BytesOut   int64     `json:"bytes_out"`
	Cached     bool      `json:"cached"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite history store at path, creating the parent
// directory and schema on first use.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS renders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		status TEXT,
		error_msg TEXT,
		duration_ms INTEGER,
		bytes_out INTEGER,
		cached INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_renders_template ON renders(template);
	CREATE INDEX IF NOT EXISTS idx_renders_status ON renders(status);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Save persists one render record
func (s *Store) Save(r *Render) error {
	query := `
	INSERT INTO renders (template, source_hash, status, error_msg, duration_ms, bytes_out, cached, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(query, r.Template, r.SourceHash, r.Status, r.ErrorMsg, r.DurationMS, r.BytesOut, r.Cached, ts)
	if err != nil {
		return fmt.Errorf("failed to insert render: %w", err)
	}
	return nil
}

// SearchParams defines the criteria for searching render history
type SearchParams struct {
	Template string
	Status   string
	Limit    int
}

// Search returns render records matching the params, newest first
func (s *Store) Search(params SearchParams) ([]Render, error) {
	query := "SELECT id, template, source_hash, status, error_msg, duration_ms, bytes_out, cached, timestamp FROM renders WHERE 1=1"
	args := []interface{}{}

	if params.Template != "" {
		query += " AND template = ?"
		args = append(args, params.Template)
	}
	if params.Status != "" {
		query += " AND status = ?"
		args = append(args, params.Status)
	}
	query += " ORDER BY timestamp DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []Render
	for rows.Next() {
		var r Render
		if err := rows.Scan(&r.ID, &r.Template, &r.SourceHash, &r.Status, &r.ErrorMsg, &r.DurationMS, &r.BytesOut, &r.Cached, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	return s.db.Close()
}
