package sync

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

// harness wires a real store, queue, and client against an httptest server.
type harness struct {
	store      *localstore.Store
	queue      *Queue
	client     *api.Client
	monitor    *Monitor
	writer     *Writer
	reader     *Reader
	reconciler *Reconciler
	srv        *httptest.Server
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "agent.db"), collections.All(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	queue, err := NewQueue(store.DB(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := api.New(srv.URL, "", time.Second, zerolog.Nop())
	monitor := NewMonitor(client, time.Minute, zerolog.Nop())
	locks := newKeyedMutex()

	return &harness{
		store:      store,
		queue:      queue,
		client:     client,
		monitor:    monitor,
		writer:     NewWriter(store, client, queue, monitor, locks, zerolog.Nop()),
		reader:     NewReader(store, client, queue, monitor, zerolog.Nop()),
		reconciler: NewReconciler(store, queue, client, monitor, locks, zerolog.Nop()),
		srv:        srv,
	}
}

// goOffline shuts the backing server down so every request fails at dial.
func (h *harness) goOffline() {
	h.srv.Close()
}

func patientPayload(name string) map[string]interface{} {
	return map[string]interface{}{
		"patientName":   name,
		"patientGender": "male",
		"patientCnic":   "35202-1234567-1",
	}
}

func appointmentPayload() map[string]interface{} {
	return map[string]interface{}{
		"patientId":       "pat-1",
		"doctorId":        "doc-1",
		"appointmentDate": "2025-03-05",
		"status":          "Scheduled",
	}
}
