package sync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

// Engine bundles the sync components over one store and one upstream client.
// The Writer and Reconciler share the per-record lock set, so construct them
// through here rather than individually.
type Engine struct {
	Queue      *Queue
	Monitor    *Monitor
	Reader     *Reader
	Writer     *Writer
	Reconciler *Reconciler
}

func NewEngine(store *localstore.Store, client *api.Client, pollInterval time.Duration, log zerolog.Logger) (*Engine, error) {
	queue, err := NewQueue(store.DB(), log)
	if err != nil {
		return nil, err
	}

	monitor := NewMonitor(client, pollInterval, log)
	locks := newKeyedMutex()

	return &Engine{
		Queue:      queue,
		Monitor:    monitor,
		Reader:     NewReader(store, client, queue, monitor, log),
		Writer:     NewWriter(store, client, queue, monitor, locks, log),
		Reconciler: NewReconciler(store, queue, client, monitor, locks, log),
	}, nil
}
