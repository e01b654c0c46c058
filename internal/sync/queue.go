package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry statuses.
const (
	EntryPending = "pending"
	EntryFailed  = "failed"
)

// Entry is one queued write descriptor, replayed verbatim against the
// remote API once connectivity returns.
type Entry struct {
	Seq        int64
	Collection string
	DocID      string
	Method     string
	Endpoint   string
	Payload    json.RawMessage
	Attempts   int
	Status     string
	QueuedBy   string
	QueuedAt   time.Time
}

// Queue is the durable replay queue. The AUTOINCREMENT seq preserves global
// enqueue order, which also gives FIFO order within each collection.
type Queue struct {
	db  *sql.DB
	log zerolog.Logger
}

const queueDDL = `
CREATE TABLE IF NOT EXISTS replay_queue (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	method     TEXT NOT NULL,
	endpoint   TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	attempts   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'pending',
	queued_by  TEXT NOT NULL DEFAULT '',
	queued_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replay_queue_status ON replay_queue (status, seq);
CREATE INDEX IF NOT EXISTS idx_replay_queue_doc ON replay_queue (collection, doc_id);
`

// NewQueue creates the queue over an existing database handle (shared with
// the local store so replay and document writes land in one file).
func NewQueue(db *sql.DB, log zerolog.Logger) (*Queue, error) {
	if _, err := db.Exec(queueDDL); err != nil {
		return nil, fmt.Errorf("migrate replay queue: %w", err)
	}
	return &Queue{db: db, log: log.With().Str("component", "queue").Logger()}, nil
}

// Enqueue appends a descriptor and fills in its assigned seq.
func (q *Queue) Enqueue(ctx context.Context, e *Entry) error {
	if e.Status == "" {
		e.Status = EntryPending
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now().UTC()
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO replay_queue (collection, doc_id, method, endpoint, payload, attempts, status, queued_by, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Collection, e.DocID, e.Method, e.Endpoint, string(e.Payload),
		e.Attempts, e.Status, e.QueuedBy, e.QueuedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("enqueue descriptor: %w", err)
	}
	e.Seq, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read assigned seq: %w", err)
	}
	q.log.Debug().Int64("seq", e.Seq).Str("collection", e.Collection).
		Str("method", e.Method).Str("doc_id", e.DocID).Msg("queued write")
	return nil
}

const entryCols = `seq, collection, doc_id, method, endpoint, payload, attempts, status, queued_by, queued_at`

// Pending returns the pending descriptors queued by the given user, in
// enqueue order. An empty queuedBy returns every pending descriptor.
func (q *Queue) Pending(ctx context.Context, queuedBy string) ([]*Entry, error) {
	query := `SELECT ` + entryCols + ` FROM replay_queue WHERE status = ? ORDER BY seq`
	args := []interface{}{EntryPending}
	if queuedBy != "" {
		query = `SELECT ` + entryCols + ` FROM replay_queue WHERE status = ? AND queued_by = ? ORDER BY seq`
		args = append(args, queuedBy)
	}
	return q.queryEntries(ctx, query, args...)
}

// HasPendingWrite reports whether a document has an unreplayed descriptor,
// pending or parked failed. The read path uses this to avoid clobbering
// local state that still needs attention with a server copy that predates
// the queued write.
func (q *Queue) HasPendingWrite(ctx context.Context, collection, docID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM replay_queue
		WHERE collection = ? AND doc_id = ? AND status IN (?, ?)`,
		collection, docID, EntryPending, EntryFailed).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending write: %w", err)
	}
	return n > 0, nil
}

// Remove deletes a descriptor after a successful replay.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM replay_queue WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("remove descriptor: %w", err)
	}
	return nil
}

// IncrementAttempts bumps a descriptor's attempt count and returns the new
// value.
func (q *Queue) IncrementAttempts(ctx context.Context, seq int64) (int, error) {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE replay_queue SET attempts = attempts + 1 WHERE seq = ?`, seq); err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	var attempts int
	if err := q.db.QueryRowContext(ctx,
		`SELECT attempts FROM replay_queue WHERE seq = ?`, seq).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

// MarkFailed parks a descriptor until a retry resets it.
func (q *Queue) MarkFailed(ctx context.Context, seq int64) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE replay_queue SET status = ? WHERE seq = ?`, EntryFailed, seq); err != nil {
		return fmt.Errorf("mark descriptor failed: %w", err)
	}
	return nil
}

// ResetFailed moves every failed descriptor back to pending with a clean
// attempt count, and returns how many were reset.
func (q *Queue) ResetFailed(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE replay_queue SET status = ?, attempts = 0 WHERE status = ?`,
		EntryPending, EntryFailed)
	if err != nil {
		return 0, fmt.Errorf("reset failed descriptors: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count reset descriptors: %w", err)
	}
	return int(n), nil
}

// StatusCounts is the per-collection queue summary.
type StatusCounts struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Counts returns per-collection pending/failed counts.
func (q *Queue) Counts(ctx context.Context) (map[string]StatusCounts, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT collection, status, COUNT(*) FROM replay_queue GROUP BY collection, status`)
	if err != nil {
		return nil, fmt.Errorf("count descriptors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StatusCounts)
	for rows.Next() {
		var collection, status string
		var n int
		if err := rows.Scan(&collection, &status, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		c := out[collection]
		switch status {
		case EntryPending:
			c.Pending = n
		case EntryFailed:
			c.Failed = n
		}
		out[collection] = c
	}
	return out, rows.Err()
}

// RewriteDocID updates the remaining descriptors after the server assigns a
// real id to a locally created record: the doc id column, any occurrence of
// the old id in endpoints, and any JSON string value in payloads equal to
// the old id (temporary ids are globally unique, so exact value matches are
// always the reference being rewritten).
func (q *Queue) RewriteDocID(ctx context.Context, oldID, newID string) error {
	rows, err := q.db.QueryContext(ctx, `SELECT `+entryCols+` FROM replay_queue`)
	if err != nil {
		return fmt.Errorf("load descriptors for rewrite: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return err
	}

	for _, e := range entries {
		docID := e.DocID
		if docID == oldID {
			docID = newID
		}
		endpoint := strings.ReplaceAll(e.Endpoint, oldID, newID)
		payload, changed, err := rewritePayloadID(e.Payload, oldID, newID)
		if err != nil {
			return err
		}
		if docID == e.DocID && endpoint == e.Endpoint && !changed {
			continue
		}
		if _, err := q.db.ExecContext(ctx, `
			UPDATE replay_queue SET doc_id = ?, endpoint = ?, payload = ? WHERE seq = ?`,
			docID, endpoint, string(payload), e.Seq); err != nil {
			return fmt.Errorf("rewrite descriptor %d: %w", e.Seq, err)
		}
	}
	return nil
}

func rewritePayloadID(payload json.RawMessage, oldID, newID string) (json.RawMessage, bool, error) {
	if len(payload) == 0 {
		return payload, false, nil
	}
	var value interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, false, fmt.Errorf("decode descriptor payload: %w", err)
	}
	value, changed := rewriteValue(value, oldID, newID)
	if !changed {
		return payload, false, nil
	}
	out, err := json.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("encode rewritten payload: %w", err)
	}
	return out, true, nil
}

func rewriteValue(v interface{}, oldID, newID string) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		if t == oldID {
			return newID, true
		}
	case map[string]interface{}:
		changed := false
		for k, inner := range t {
			next, c := rewriteValue(inner, oldID, newID)
			if c {
				t[k] = next
				changed = true
			}
		}
		return t, changed
	case []interface{}:
		changed := false
		for i, inner := range t {
			next, c := rewriteValue(inner, oldID, newID)
			if c {
				t[i] = next
				changed = true
			}
		}
		return t, changed
	}
	return v, false
}

func (q *Queue) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var payload, queuedAt string
		if err := rows.Scan(&e.Seq, &e.Collection, &e.DocID, &e.Method, &e.Endpoint,
			&payload, &e.Attempts, &e.Status, &e.QueuedBy, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		e.QueuedAt, _ = time.Parse(time.RFC3339Nano, queuedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
