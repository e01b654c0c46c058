package sync

import (
	"context"
	"errors"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

// Replay tuning. Backoff doubles per consecutive connectivity failure.
const (
	BackoffMin  = 1 * time.Second
	BackoffMax  = 60 * time.Second
	MaxAttempts = 5
)

// RunReport summarizes one reconciliation pass.
type RunReport struct {
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
	// Remaining counts descriptors left pending because connectivity was
	// lost mid-pass.
	Remaining int `json:"remaining"`
}

// Reconciler drains the replay queue when connectivity returns. Descriptors
// are replayed in enqueue order; a server success promotes the record to
// synced (rewriting temporary ids), a server rejection parks it as failed,
// and a connectivity failure ends the pass for a later retry.
type Reconciler struct {
	store   *localstore.Store
	queue   *Queue
	client  *api.Client
	monitor *Monitor
	locks   *keyedMutex
	log     zerolog.Logger

	// UserID, when set, scopes each pass to descriptors queued by the
	// current identity.
	UserID func() string

	// OnRun, when set, is invoked after every pass that moved descriptors.
	OnRun func(RunReport)

	mu      stdsync.Mutex
	running bool
	trigger chan struct{}
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup
}

func NewReconciler(store *localstore.Store, queue *Queue, client *api.Client, monitor *Monitor, locks *keyedMutex, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		queue:   queue,
		client:  client,
		monitor: monitor,
		locks:   locks,
		log:     log.With().Str("component", "reconciler").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the background loop: every offline to online transition
// recovers failed descriptors and triggers a pass; a pass cut short by lost
// connectivity is retried with exponential backoff.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		r.recoverFailed(ctx)
		r.Trigger()
	})

	// A backlog left behind by a previous run must not wait for a
	// connectivity flap. The monitor starts optimistic, so a healthy first
	// probe is not a transition; kick one pass explicitly once a probe
	// confirms the server is reachable.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.monitor.Probe(ctx) {
			r.recoverFailed(ctx)
			r.Trigger()
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		backoff := BackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.trigger:
			}

			report, err := r.Run(ctx)
			if err != nil {
				r.log.Error().Err(err).Msg("reconciliation pass failed")
				continue
			}
			if report.Remaining == 0 {
				backoff = BackoffMin
				continue
			}

			// Connectivity dropped mid-pass; retry after backoff.
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > BackoffMax {
				backoff = BackoffMax
			}
			r.Trigger()
		}
	}()
}

// Stop halts the background loop.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Trigger requests a pass from the background loop. Safe to call from any
// goroutine; a pending trigger is not duplicated.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// recoverFailed moves failed descriptors and their records back to pending
// so the next pass retries them. Errors are logged rather than returned;
// recovery runs from connectivity callbacks with nobody to hand them to.
func (r *Reconciler) recoverFailed(ctx context.Context) {
	if _, err := r.queue.ResetFailed(ctx); err != nil {
		r.log.Error().Err(err).Msg("could not reset failed descriptors")
	}
	if err := r.resetFailedRecords(ctx); err != nil {
		r.log.Error().Err(err).Msg("could not reset failed records")
	}
}

// Retry resets failed descriptors and records to pending, then runs a pass.
func (r *Reconciler) Retry(ctx context.Context) (*RunReport, error) {
	n, err := r.queue.ResetFailed(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.resetFailedRecords(ctx); err != nil {
		return nil, err
	}
	r.log.Info().Int("reset", n).Msg("retrying failed descriptors")
	return r.Run(ctx)
}

func (r *Reconciler) resetFailedRecords(ctx context.Context) error {
	for _, name := range collections.Names() {
		docs, err := r.store.ByStatus(ctx, name, collections.StatusFailed)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := r.store.SetStatus(ctx, name, doc.ID(), collections.StatusPending); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run drains the pending descriptors once, in enqueue order.
func (r *Reconciler) Run(ctx context.Context) (*RunReport, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return &RunReport{}, nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	queuedBy := ""
	if r.UserID != nil {
		queuedBy = r.UserID()
	}
	entries, err := r.queue.Pending(ctx, queuedBy)
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	for i, e := range entries {
		stop, err := r.replay(ctx, e, report)
		if err != nil {
			return report, err
		}
		if stop {
			report.Remaining = len(entries) - i
			break
		}
	}
	r.log.Info().Int("replayed", report.Replayed).Int("failed", report.Failed).
		Int("remaining", report.Remaining).Msg("reconciliation pass complete")
	if r.OnRun != nil && report.Replayed+report.Failed > 0 {
		r.OnRun(*report)
	}
	return report, nil
}

// replay sends one descriptor. It reports stop=true when connectivity was
// lost and the rest of the pass should wait for the next trigger.
func (r *Reconciler) replay(ctx context.Context, e *Entry, report *RunReport) (bool, error) {
	unlock := r.locks.Lock(e.Collection + "/" + e.DocID)
	defer unlock()

	resp, err := r.client.Do(ctx, e.Method, e.Endpoint, e.Payload)
	switch {
	case err == nil:
		if err := r.promote(ctx, e, resp); err != nil {
			return false, err
		}
		report.Replayed++
		return false, nil

	case api.IsUnreachable(err):
		r.monitor.MarkOffline()
		attempts, qerr := r.queue.IncrementAttempts(ctx, e.Seq)
		if qerr != nil {
			return false, qerr
		}
		if attempts >= MaxAttempts {
			if err := r.park(ctx, e); err != nil {
				return false, err
			}
			report.Failed++
		}
		return true, nil

	default:
		se, ok := api.IsRejection(err)
		if !ok {
			return false, err
		}
		// Rejected requests are never retried; park and keep draining.
		r.log.Warn().Int64("seq", e.Seq).Str("collection", e.Collection).
			Str("doc_id", e.DocID).Str("reason", se.Message).Msg("replay rejected by server")
		if err := r.park(ctx, e); err != nil {
			return false, err
		}
		report.Failed++
		return false, nil
	}
}

// promote lands a successful replay: the descriptor is removed, the local
// record becomes synced, and a server-assigned id replaces a temporary one
// everywhere it is referenced.
func (r *Reconciler) promote(ctx context.Context, e *Entry, resp *api.Response) error {
	if err := r.queue.Remove(ctx, e.Seq); err != nil {
		return err
	}
	if e.Method == http.MethodDelete {
		return nil
	}

	raw, err := resp.Document()
	if err != nil {
		return err
	}
	serverDoc := localstore.Document(raw)

	docID := e.DocID
	if serverID := serverDoc.ID(); serverID != "" && serverID != docID {
		if err := r.store.RewriteID(ctx, e.Collection, docID, serverID); err != nil && !errors.Is(err, localstore.ErrNotFound) {
			return err
		}
		if err := r.queue.RewriteDocID(ctx, docID, serverID); err != nil {
			return err
		}
		docID = serverID
	}

	if serverDoc != nil {
		serverDoc["syncStatus"] = collections.StatusSynced
		err := r.store.Upsert(ctx, e.Collection, serverDoc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, localstore.ErrInvalidDocument) {
			return err
		}
		// A server payload we cannot validate still acknowledged the write;
		// keep the local copy and just promote its status.
		r.log.Warn().Err(err).Str("collection", e.Collection).Str("doc_id", docID).
			Msg("server document failed validation, promoting local copy")
	}
	err = r.store.SetStatus(ctx, e.Collection, docID, collections.StatusSynced)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil
	}
	return err
}

// park marks a descriptor and its record failed.
func (r *Reconciler) park(ctx context.Context, e *Entry) error {
	if err := r.queue.MarkFailed(ctx, e.Seq); err != nil {
		return err
	}
	if e.Method == http.MethodDelete {
		// The local copy is already gone; there is no record to flag.
		return nil
	}
	err := r.store.SetStatus(ctx, e.Collection, e.DocID, collections.StatusFailed)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil
	}
	return err
}
