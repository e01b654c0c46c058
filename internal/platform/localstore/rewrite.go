package localstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sehetyar/sync-agent/internal/platform/schema"
)

// RewriteID replaces a document's id with the one the server assigned and
// cascades the change into every document, in any collection, whose
// reference fields still point at the old id. The whole rewrite is one
// transaction: either every referrer is updated or none are.
func (s *Store) RewriteID(ctx context.Context, collection, oldID, newID string) error {
	if _, err := s.Schema(collection); err != nil {
		return err
	}
	if oldID == newID {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin id rewrite", err)
	}
	defer tx.Rollback()

	doc, err := s.getTx(ctx, tx, collection, oldID)
	if err != nil {
		return err
	}
	doc["_id"] = newID

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND doc_id = ?`, collection, oldID); err != nil {
		return storageErr("drop old id row", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_index WHERE collection = ? AND doc_id = ?`, collection, oldID); err != nil {
		return storageErr("drop old index rows", err)
	}
	if err := s.upsertTx(ctx, tx, collection, doc); err != nil {
		return err
	}

	changed := []Change{{Collection: collection, DocID: newID, Doc: doc}}

	referrers, err := s.rewriteReferrersTx(ctx, tx, collection, oldID, newID)
	if err != nil {
		return err
	}
	changed = append(changed, referrers...)

	if err := tx.Commit(); err != nil {
		return storageErr("commit id rewrite", err)
	}

	s.log.Debug().Str("collection", collection).Str("old_id", oldID).Str("new_id", newID).
		Int("referrers", len(referrers)).Msg("rewrote document id")
	for _, ch := range changed {
		s.notify(ch)
	}
	return nil
}

// rewriteReferrersTx walks every schema with a reference field into target
// and rewrites the matching documents' reference values.
func (s *Store) rewriteReferrersTx(ctx context.Context, tx *sql.Tx, target, oldID, newID string) ([]Change, error) {
	var changed []Change
	for name, sc := range s.schemas {
		for _, field := range sc.RefFields() {
			if sc.Fields[field].RefCollection != target {
				continue
			}
			ids, err := s.referrerIDsTx(ctx, tx, name, field, oldID)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				doc, err := s.getTx(ctx, tx, name, id)
				if err != nil {
					return nil, err
				}
				if !rewriteRef(doc, field, sc.Fields[field].Kind, oldID, newID) {
					continue
				}
				if err := s.upsertTx(ctx, tx, name, doc); err != nil {
					return nil, err
				}
				changed = append(changed, Change{Collection: name, DocID: id, Doc: doc})
			}
		}
	}
	return changed, nil
}

func (s *Store) referrerIDsTx(ctx context.Context, tx *sql.Tx, collection, field, value string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT doc_id FROM doc_index WHERE collection = ? AND field = ? AND value = ?`,
		collection, field, value)
	if err != nil {
		return nil, storageErr("find referrers", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan referrer id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) getTx(ctx context.Context, tx *sql.Tx, collection, id string) (Document, error) {
	var body string
	err := tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND doc_id = ?`, collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, storageErr("read document", err)
	}
	return decodeBody(body)
}

// rewriteRef updates one reference value in place and reports whether the
// document changed. Both bare string ids and expanded {_id, name} objects
// are handled; reference lists are rewritten element-wise.
func rewriteRef(doc Document, field string, kind schema.Kind, oldID, newID string) bool {
	v, ok := doc[field]
	if !ok || v == nil {
		return false
	}
	if kind == schema.ReferenceList {
		items, _ := v.([]interface{})
		changed := false
		for i, item := range items {
			if next, ok := rewriteRefValue(item, oldID, newID); ok {
				items[i] = next
				changed = true
			}
		}
		return changed
	}
	next, changed := rewriteRefValue(v, oldID, newID)
	if changed {
		doc[field] = next
	}
	return changed
}

func rewriteRefValue(v interface{}, oldID, newID string) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		if t == oldID {
			return newID, true
		}
	case map[string]interface{}:
		if id, _ := t["_id"].(string); id == oldID {
			t["_id"] = newID
			return t, true
		}
	}
	return v, false
}
