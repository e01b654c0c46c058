package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Upsert validates and writes one document, replacing any existing copy and
// rebuilding its index rows in the same transaction. Subscribers for the
// collection are notified after commit.
func (s *Store) Upsert(ctx context.Context, collection string, doc Document) error {
	sc, err := s.Schema(collection)
	if err != nil {
		return err
	}
	if err := sc.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin upsert", err)
	}
	defer tx.Rollback()

	if err := s.upsertTx(ctx, tx, collection, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit upsert", err)
	}

	s.notify(Change{Collection: collection, DocID: doc.ID(), Doc: doc})
	return nil
}

// BulkUpsert validates and writes a batch of documents atomically. If any
// document fails validation nothing is written.
func (s *Store) BulkUpsert(ctx context.Context, collection string, docs []Document) error {
	sc, err := s.Schema(collection)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := sc.Validate(doc); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin bulk upsert", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if err := s.upsertTx(ctx, tx, collection, doc); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit bulk upsert", err)
	}

	for _, doc := range docs {
		s.notify(Change{Collection: collection, DocID: doc.ID(), Doc: doc})
	}
	return nil
}

func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, collection string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return storageErr("marshal document", err)
	}
	updatedAt, _ := doc["updatedAt"].(string)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, body, sync_status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, doc_id)
		DO UPDATE SET body = excluded.body, sync_status = excluded.sync_status, updated_at = excluded.updated_at`,
		collection, doc.ID(), string(body), doc.SyncStatus(), updatedAt)
	if err != nil {
		return storageErr("write document", err)
	}
	return s.reindexTx(ctx, tx, collection, doc)
}

// reindexTx replaces the index rows for one document.
func (s *Store) reindexTx(ctx context.Context, tx *sql.Tx, collection string, doc Document) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_index WHERE collection = ? AND doc_id = ?`, collection, doc.ID()); err != nil {
		return storageErr("clear index rows", err)
	}

	sc := s.schemas[collection]
	for field, values := range indexValues(sc, doc) {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO doc_index (collection, field, value, doc_id) VALUES (?, ?, ?, ?)`,
				collection, field, v, doc.ID()); err != nil {
				return storageErr("write index row", err)
			}
		}
	}
	return nil
}

// Get returns one document by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if _, err := s.Schema(collection); err != nil {
		return nil, err
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND doc_id = ?`, collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, storageErr("read document", err)
	}
	return decodeBody(body)
}

// All returns every document in a collection, newest first.
func (s *Store) All(ctx context.Context, collection string) ([]Document, error) {
	if _, err := s.Schema(collection); err != nil {
		return nil, err
	}
	return s.queryDocs(ctx, `
		SELECT body FROM documents WHERE collection = ? ORDER BY updated_at DESC, doc_id`, collection)
}

// Find returns the documents whose field equals value. Indexed fields go
// through the index table; everything else is a scan over the collection.
func (s *Store) Find(ctx context.Context, collection, field string, value string) ([]Document, error) {
	sc, err := s.Schema(collection)
	if err != nil {
		return nil, err
	}
	if sc.HasIndex(field) || isRefField(sc, field) {
		return s.queryDocs(ctx, `
			SELECT d.body FROM documents d
			JOIN doc_index i ON i.collection = d.collection AND i.doc_id = d.doc_id
			WHERE i.collection = ? AND i.field = ? AND i.value = ?
			ORDER BY d.updated_at DESC, d.doc_id`, collection, field, value)
	}

	all, err := s.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Document
	for _, doc := range all {
		if fieldMatches(sc, field, doc[field], value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ByStatus returns the documents in a collection carrying the given sync
// status, oldest update first so replay-order reads are stable.
func (s *Store) ByStatus(ctx context.Context, collection, status string) ([]Document, error) {
	if _, err := s.Schema(collection); err != nil {
		return nil, err
	}
	return s.queryDocs(ctx, `
		SELECT body FROM documents WHERE collection = ? AND sync_status = ?
		ORDER BY updated_at, doc_id`, collection, status)
}

// SetStatus updates a document's sync status in place, both the column and
// the stored body, and notifies subscribers.
func (s *Store) SetStatus(ctx context.Context, collection, id, status string) error {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	doc["syncStatus"] = status
	return s.Upsert(ctx, collection, doc)
}

// Remove deletes a document and its index rows. Removing an id that is not
// present is a no-op.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	if _, err := s.Schema(collection); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin remove", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND doc_id = ?`, collection, id)
	if err != nil {
		return storageErr("delete document", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_index WHERE collection = ? AND doc_id = ?`, collection, id); err != nil {
		return storageErr("delete index rows", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit remove", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Change{Collection: collection, DocID: id, Deleted: true})
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.Schema(collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, storageErr("count documents", err)
	}
	return n, nil
}

func (s *Store) queryDocs(ctx context.Context, query string, args ...interface{}) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storageErr("scan document", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func decodeBody(body string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, storageErr("decode document body", err)
	}
	return doc, nil
}
