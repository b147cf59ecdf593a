// Package cache keeps fetched build pages in a local SQLite database so that
// repeated analyses do not hit the API.
package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrCacheMiss is returned when no pages are stored for a key.
var ErrCacheMiss = errors.New("no cached builds")

// FetchMode controls when pages are fetched instead of read from the cache.
type FetchMode string

const (
	// FetchAuto reads the cache while it is younger than the max age.
	FetchAuto FetchMode = "auto"
	// FetchAlways fetches and replaces the cached pages.
	FetchAlways FetchMode = "always"
	// FetchNever only reads the cache.
	FetchNever FetchMode = "never"
)

// ParseFetchMode validates a fetch mode name.
func ParseFetchMode(s string) (FetchMode, error) {
	switch m := FetchMode(strings.ToLower(s)); m {
	case FetchAuto, FetchAlways, FetchNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown fetch mode %q", s)
	}
}

// Key identifies a build query. MaxFetches is part of the key since a page
// limit changes how many builds the query returns.
type Key struct {
	Org        string
	Pipeline   string
	Branch     string
	States     []string
	MaxFetches int
}

// String renders the key in a stable form.
func (k Key) String() string {
	states := append([]string(nil), k.States...)
	sort.Strings(states)
	pipeline := k.Pipeline
	if pipeline == "" {
		pipeline = "*"
	}
	branch := k.Branch
	if branch == "" {
		branch = "*"
	}
	return fmt.Sprintf("%s/%s@%s?state=%s&max_fetches=%d", k.Org, pipeline, branch, strings.Join(states, ","), k.MaxFetches)
}

// FetchFunc retrieves fresh page bodies.
type FetchFunc func(ctx context.Context) ([][]byte, error)

// Store is a SQLite backed page cache.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the cache database at path. Use ":memory:" for a
// throwaway cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache %q: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the cached pages for key in page order and the time they were
// fetched.
func (s *Store) Load(ctx context.Context, key Key) ([][]byte, time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body, fetched_at FROM build_pages WHERE query_key = ? ORDER BY page`, key.String())
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var pages [][]byte
	var fetched int64
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body, &fetched); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan cache: %w", err)
		}
		pages = append(pages, body)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("read cache: %w", err)
	}
	if len(pages) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w for %s", ErrCacheMiss, key)
	}
	return pages, time.Unix(0, fetched), nil
}

// Save replaces the cached pages for key.
func (s *Store) Save(ctx context.Context, key Key, pages [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM build_pages WHERE query_key = ?`, key.String()); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fetched := s.now().UnixNano()
	for i, body := range pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO build_pages (query_key, page, body, fetched_at) VALUES (?, ?, ?, ?)`,
			key.String(), i, body, fetched); err != nil {
			return fmt.Errorf("store page %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache update: %w", err)
	}
	return nil
}

// GetOrFetch returns pages for key according to mode. In FetchAuto mode the
// cache is used while younger than maxAge; a zero maxAge never expires.
func (s *Store) GetOrFetch(ctx context.Context, key Key, mode FetchMode, maxAge time.Duration, fetch FetchFunc) ([][]byte, error) {
	switch mode {
	case FetchNever:
		pages, _, err := s.Load(ctx, key)
		return pages, err
	case FetchAuto:
		pages, fetched, err := s.Load(ctx, key)
		if err == nil && (maxAge <= 0 || s.now().Sub(fetched) < maxAge) {
			return pages, nil
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	case FetchAlways:
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", mode)
	}

	pages, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, key, pages); err != nil {
		return nil, err
	}
	return pages, nil
}
