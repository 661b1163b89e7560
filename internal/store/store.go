// Package store caches finished renders in SQLite, keyed by document content
// and stylesheet.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("render not cached")

// Entry is one cached render.
type Entry struct {
	Key       string
	Title     string
	Pages     json.RawMessage
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Key derives a cache key from its parts, typically the source format, the
// content hash and the stylesheet hash.
func Key(parts ...string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, "\x00"))))
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory cache.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and an in-memory
	// database only lives on its own connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS renders (
			key TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			pages TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_renders_created_at ON renders(created_at);",
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		e       Entry
		pages   string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT key, title, pages, created_at FROM renders WHERE key = ?", key,
	).Scan(&e.Key, &e.Title, &pages, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get render: %w", err)
	}
	e.Pages = json.RawMessage(pages)
	e.CreatedAt = time.Unix(0, created)
	return &e, nil
}

// Put stores or replaces the render under key.
func (s *Store) Put(ctx context.Context, key, title string, pages json.RawMessage) error {
	if !json.Valid(pages) {
		return errors.New("put render: pages are not valid JSON")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO renders (key, title, pages, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			pages = excluded.pages,
			created_at = excluded.created_at`,
		key, title, string(pages), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("put render: %w", err)
	}
	return nil
}

// Prune deletes entries created before now minus olderThan and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM renders WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune renders: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
