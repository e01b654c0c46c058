// Package localstore is the embedded document store backing the sync agent.
// Documents are kept as JSON bodies in SQLite keyed by (collection, id), with
// a side table of index rows for the fields each collection schema declares
// indexed. All lookups the agent serves offline come from here.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/schema"
)

var (
	// ErrNotFound is returned when a document id has no local copy.
	ErrNotFound = errors.New("localstore: document not found")

	// ErrInvalidDocument is returned when a document fails schema validation.
	// The wrapped error carries the field-level detail.
	ErrInvalidDocument = errors.New("localstore: invalid document")

	// ErrUnknownCollection is returned for collection names with no schema.
	ErrUnknownCollection = errors.New("localstore: unknown collection")

	// ErrStorage wraps failures of the underlying engine. Callers treat it
	// as "store unavailable" and degrade to network-only operation.
	ErrStorage = errors.New("localstore: storage failure")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Document is a locally held record. The shape is whatever the server sent
// plus the sync bookkeeping fields.
type Document map[string]interface{}

// ID returns the document primary key, or "" when absent.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// SyncStatus returns the document sync state, or "" when absent.
func (d Document) SyncStatus() string {
	s, _ := d["syncStatus"].(string)
	return s
}

// Store is a SQLite-backed document store. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	schemas map[string]*schema.Schema
	log     zerolog.Logger

	mu      sync.Mutex
	subs    map[int]subscription
	nextSub int
}

const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT NOT NULL,
	doc_id      TEXT NOT NULL,
	body        TEXT NOT NULL,
	sync_status TEXT NOT NULL DEFAULT 'synced',
	updated_at  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (collection, doc_id)
);

CREATE TABLE IF NOT EXISTS doc_index (
	collection TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	doc_id     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_index_lookup ON doc_index (collection, field, value);
CREATE INDEX IF NOT EXISTS idx_doc_index_docid  ON doc_index (collection, doc_id);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (collection, sync_status);
`

// Open opens (creating if needed) the store at path. Schemas define the
// collections the store accepts and which fields get index rows.
func Open(path string, schemas map[string]*schema.Schema, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors
	// from the queue and the store sharing one file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate localstore: %w", err)
	}

	return &Store{
		db:      db,
		schemas: schemas,
		log:     log.With().Str("component", "localstore").Logger(),
		subs:    make(map[int]subscription),
	}, nil
}

// DB exposes the underlying handle so sibling components (replay queue,
// route cache, identity cache) can share the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// Schema returns the schema for a collection, or ErrUnknownCollection.
func (s *Store) Schema(collection string) (*schema.Schema, error) {
	sc, ok := s.schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return sc, nil
}

// Schemas returns the full collection registry.
func (s *Store) Schemas() map[string]*schema.Schema { return s.schemas }

func (s *Store) Close() error {
	return s.db.Close()
}
