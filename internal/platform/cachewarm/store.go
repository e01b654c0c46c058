// Package cachewarm keeps a persistent cache of dashboard page responses so
// the agent can serve them while the upstream server is unreachable. A
// warming pass fetches a fixed set of routes shortly after startup; the cache
// survives restarts because it lives in the same SQLite database as the
// document store.
package cachewarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no cached response exists for the URL.
var ErrNotFound = errors.New("cachewarm: route not cached")

const routeCacheDDL = `
CREATE TABLE IF NOT EXISTS route_cache (
	url          TEXT PRIMARY KEY,
	body         BLOB NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	cached_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Entry is one cached route response.
type Entry struct {
	URL         string
	Body        []byte
	ContentType string
	CachedAt    time.Time
}

// Store persists route responses in SQLite. It shares the database handle
// with the document store.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(routeCacheDDL); err != nil {
		return nil, fmt.Errorf("cachewarm: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the cached response for url, or ErrNotFound.
func (s *Store) Get(ctx context.Context, url string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, body, content_type, cached_at FROM route_cache WHERE url = ?`, url)
	var e Entry
	if err := row.Scan(&e.URL, &e.Body, &e.ContentType, &e.CachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cachewarm: get %s: %w", url, err)
	}
	return &e, nil
}

// Set stores or replaces the cached response for url.
func (s *Store) Set(ctx context.Context, url string, body []byte, contentType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_cache (url, body, content_type, cached_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(url) DO UPDATE SET
			body = excluded.body,
			content_type = excluded.content_type,
			cached_at = excluded.cached_at`,
		url, body, contentType)
	if err != nil {
		return fmt.Errorf("cachewarm: set %s: %w", url, err)
	}
	return nil
}

// Delete removes a single cached route. Deleting an absent URL is a no-op.
func (s *Store) Delete(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM route_cache WHERE url = ?`, url); err != nil {
		return fmt.Errorf("cachewarm: delete %s: %w", url, err)
	}
	return nil
}

// PurgePrefix removes every cached route whose URL starts with prefix and
// reports how many were dropped. The warmer purges dashboard routes before
// refetching them so a stale auth redirect never outlives a login.
func (s *Store) PurgePrefix(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM route_cache WHERE url LIKE ? || '%'`, prefix)
	if err != nil {
		return 0, fmt.Errorf("cachewarm: purge %s: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cachewarm: purge %s: %w", prefix, err)
	}
	return int(n), nil
}

// Count reports the number of cached routes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cachewarm: count: %w", err)
	}
	return n, nil
}
