package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

// TempIDPrefix marks client-generated ids for records created offline. The
// reconciler swaps them for server ids on first successful replay.
const TempIDPrefix = "local-"

// NewTempID generates a temporary document id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether an id was generated locally.
func IsTempID(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// SubmitRequest describes one write against the remote API.
type SubmitRequest struct {
	Collection string
	Method     string // POST, PUT or DELETE
	Endpoint   string
	ID         string // required for PUT and DELETE
	Payload    map[string]interface{}
	QueuedBy   string

	// OnSuccess runs when the write lands, including the optimistic local
	// landing of a queued POST or PUT. OnError runs on rejection. Both are
	// optional.
	OnSuccess func(doc localstore.Document)
	OnError   func(message string)
}

// SubmitResult is the outcome handed back to the caller.
type SubmitResult struct {
	Success bool
	// Queued is true when the server was unreachable and the write was
	// stored locally for replay.
	Queued bool
	Error  string
	Doc    localstore.Document
}

// Writer is the network-first write path. Server success lands the server's
// representation locally as synced; connectivity failure stores the payload
// as pending and queues a replay descriptor; server rejection is returned
// to the caller and never queued.
type Writer struct {
	store   *localstore.Store
	client  *api.Client
	queue   *Queue
	monitor *Monitor
	locks   *keyedMutex
	log     zerolog.Logger
}

func NewWriter(store *localstore.Store, client *api.Client, queue *Queue, monitor *Monitor, locks *keyedMutex, log zerolog.Logger) *Writer {
	return &Writer{
		store:   store,
		client:  client,
		queue:   queue,
		monitor: monitor,
		locks:   locks,
		log:     log.With().Str("component", "writer").Logger(),
	}
}

// Submit performs one write.
func (w *Writer) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Method == http.MethodPost && req.ID == "" {
		if id, _ := req.Payload["_id"].(string); id != "" {
			req.ID = id
		} else {
			req.ID = NewTempID()
		}
	}
	unlock := w.locks.Lock(req.Collection + "/" + req.ID)
	defer unlock()

	resp, err := w.send(ctx, req)
	switch {
	case err == nil:
		return w.landSuccess(ctx, req, resp)
	case api.IsUnreachable(err):
		w.monitor.MarkOffline()
		return w.queueOffline(ctx, req)
	default:
		se, ok := api.IsRejection(err)
		if !ok {
			return nil, err
		}
		// The server answered and said no. Queuing would replay a request
		// that is already known to be rejected.
		if req.OnError != nil {
			req.OnError(se.Message)
		}
		return &SubmitResult{Success: false, Error: se.Message}, nil
	}
}

func (w *Writer) send(ctx context.Context, req SubmitRequest) (*api.Response, error) {
	switch req.Method {
	case http.MethodPost:
		return w.client.Post(ctx, req.Endpoint, stripLocalFields(req.Payload))
	case http.MethodPut:
		return w.client.Put(ctx, req.Endpoint, stripLocalFields(req.Payload))
	case http.MethodDelete:
		return w.client.Delete(ctx, req.Endpoint)
	default:
		return nil, fmt.Errorf("unsupported write method %q", req.Method)
	}
}

// stripLocalFields drops local bookkeeping the server does not accept, and
// never leaks a temporary id upstream.
func stripLocalFields(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "syncStatus" {
			continue
		}
		if k == "_id" {
			if id, _ := v.(string); IsTempID(id) {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (w *Writer) landSuccess(ctx context.Context, req SubmitRequest, resp *api.Response) (*SubmitResult, error) {
	if req.Method == http.MethodDelete {
		if err := w.store.Remove(ctx, req.Collection, req.ID); err != nil && !errors.Is(err, localstore.ErrStorage) {
			return nil, err
		}
		if req.OnSuccess != nil {
			req.OnSuccess(nil)
		}
		return &SubmitResult{Success: true}, nil
	}

	raw, err := resp.Document()
	if err != nil {
		return nil, err
	}
	doc := localstore.Document(raw)
	if doc == nil {
		doc = localstore.Document(req.Payload)
	}
	doc["syncStatus"] = collections.StatusSynced
	if doc["updatedAt"] == nil {
		doc["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	}

	if err := w.store.Upsert(ctx, req.Collection, doc); err != nil {
		// The write itself succeeded; a broken store only costs the cache.
		w.log.Warn().Err(err).Str("collection", req.Collection).Msg("could not persist acknowledged write")
	}
	if req.OnSuccess != nil {
		req.OnSuccess(doc)
	}
	return &SubmitResult{Success: true, Doc: doc}, nil
}

// queueOffline lands the write locally as pending and records a replay
// descriptor. POST and PUT report optimistic success; DELETE reports queued
// without invoking the success callback.
func (w *Writer) queueOffline(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Method == http.MethodDelete {
		if err := w.store.Remove(ctx, req.Collection, req.ID); err != nil {
			return nil, err
		}
		if err := w.enqueue(ctx, req, nil); err != nil {
			return nil, err
		}
		return &SubmitResult{Success: true, Queued: true}, nil
	}

	doc := localstore.Document{}
	for k, v := range req.Payload {
		doc[k] = v
	}
	doc["_id"] = req.ID
	doc["syncStatus"] = collections.StatusPending
	now := time.Now().UTC().Format(time.RFC3339)
	if doc["createdAt"] == nil {
		doc["createdAt"] = now
	}
	doc["updatedAt"] = now

	if err := w.store.Upsert(ctx, req.Collection, doc); err != nil {
		// Invalid payloads are surfaced, not queued: replaying them later
		// would only produce a rejection.
		if errors.Is(err, localstore.ErrInvalidDocument) {
			msg := err.Error()
			if req.OnError != nil {
				req.OnError(msg)
			}
			return &SubmitResult{Success: false, Error: msg}, nil
		}
		return nil, err
	}

	// The descriptor carries the outbound form so a replay sends exactly
	// what a live request would have.
	payload, err := json.Marshal(stripLocalFields(doc))
	if err != nil {
		return nil, fmt.Errorf("encode queued payload: %w", err)
	}
	if err := w.enqueue(ctx, req, payload); err != nil {
		return nil, err
	}

	if req.OnSuccess != nil {
		req.OnSuccess(doc)
	}
	return &SubmitResult{Success: true, Queued: true, Doc: doc}, nil
}

func (w *Writer) enqueue(ctx context.Context, req SubmitRequest, payload json.RawMessage) error {
	return w.queue.Enqueue(ctx, &Entry{
		Collection: req.Collection,
		DocID:      req.ID,
		Method:     req.Method,
		Endpoint:   req.Endpoint,
		Payload:    payload,
		QueuedBy:   req.QueuedBy,
	})
}
