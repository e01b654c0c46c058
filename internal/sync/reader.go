package sync

import (
	"context"
	"net/url"
	stdsync "sync"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

// Result is what a read returns: either fresh server data or the local
// cached set, with enough metadata for the UI to tell the difference.
type Result struct {
	Data  []localstore.Document
	Total int
	// FromCache is true when the data came from the local store because
	// the server was unreachable or rejected the request.
	FromCache bool
	// ServerError carries the rejection message when the server answered
	// with an error but cached data is still being served.
	ServerError string
}

// Reader is the network-first read path: try the server, persist what it
// returns, fall back to the local store when it cannot be reached.
type Reader struct {
	store   *localstore.Store
	client  *api.Client
	queue   *Queue
	monitor *Monitor
	log     zerolog.Logger

	mu       stdsync.Mutex
	fetchSeq map[string]uint64
}

func NewReader(store *localstore.Store, client *api.Client, queue *Queue, monitor *Monitor, log zerolog.Logger) *Reader {
	return &Reader{
		store:    store,
		client:   client,
		queue:    queue,
		monitor:  monitor,
		log:      log.With().Str("component", "reader").Logger(),
		fetchSeq: make(map[string]uint64),
	}
}

// Fetch reads a collection. On server success the documents are persisted
// as synced and returned fresh; on connectivity failure or server rejection
// the local store serves the request with FromCache set.
func (r *Reader) Fetch(ctx context.Context, collection, endpoint string, query url.Values) (*Result, error) {
	seq := r.beginFetch(collection)

	resp, err := r.client.Get(ctx, endpoint, query)
	if err != nil {
		if api.IsUnreachable(err) {
			r.monitor.MarkOffline()
			return r.fromCache(ctx, collection, query, "")
		}
		if se, ok := api.IsRejection(err); ok {
			return r.fromCache(ctx, collection, query, se.Message)
		}
		return nil, err
	}

	raw, err := resp.Documents()
	if err != nil {
		return nil, err
	}

	docs := make([]localstore.Document, 0, len(raw))
	for _, d := range raw {
		doc := localstore.Document(d)
		doc["syncStatus"] = collections.StatusSynced
		docs = append(docs, doc)
	}

	total := len(docs)
	if resp.Pagination != nil {
		total = resp.Pagination.Total
	}

	if !r.isCurrent(collection, seq) {
		// A newer fetch finished first; hand the data back but leave the
		// store alone so the newer result is not overwritten.
		return &Result{Data: docs, Total: total}, nil
	}

	if err := r.persist(ctx, collection, docs); err != nil {
		// Store trouble does not invalidate the fresh server data.
		r.log.Warn().Err(err).Str("collection", collection).Msg("could not persist fetched documents")
	}
	return &Result{Data: docs, Total: total}, nil
}

// persist upserts fetched documents, skipping any record that still has a
// queued descriptor: the local mutation is newer than what the server
// returned, and a failed record must keep showing that it needs attention.
func (r *Reader) persist(ctx context.Context, collection string, docs []localstore.Document) error {
	storable := make([]localstore.Document, 0, len(docs))
	for _, doc := range docs {
		pending, err := r.queue.HasPendingWrite(ctx, collection, doc.ID())
		if err != nil {
			return err
		}
		if pending {
			continue
		}
		storable = append(storable, doc)
	}
	if len(storable) == 0 {
		return nil
	}
	return r.store.BulkUpsert(ctx, collection, storable)
}

// fromCache serves the locally stored set, applying the subset of the query
// that maps onto schema fields.
func (r *Reader) fromCache(ctx context.Context, collection string, query url.Values, serverError string) (*Result, error) {
	docs, err := r.store.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	docs = r.applyLocalFilters(collection, docs, query)
	r.log.Debug().Str("collection", collection).Int("count", len(docs)).Msg("serving from cache")
	return &Result{Data: docs, Total: len(docs), FromCache: true, ServerError: serverError}, nil
}

// applyLocalFilters keeps the documents matching every query param that
// names a schema field. Params the store cannot reproduce (free-text search,
// server-side joins) are ignored rather than guessed at.
func (r *Reader) applyLocalFilters(collection string, docs []localstore.Document, query url.Values) []localstore.Document {
	sc, err := r.store.Schema(collection)
	if err != nil {
		return docs
	}
	for field, values := range query {
		if _, known := sc.Fields[field]; !known || len(values) == 0 || values[0] == "" {
			continue
		}
		want := values[0]
		filtered := docs[:0]
		for _, doc := range docs {
			if localstore.MatchField(sc, doc, field, want) {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}
	return docs
}

func (r *Reader) beginFetch(collection string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchSeq[collection]++
	return r.fetchSeq[collection]
}

func (r *Reader) isCurrent(collection string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchSeq[collection] == seq
}
