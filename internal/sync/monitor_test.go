package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sehetyar/sync-agent/internal/platform/api"
)

func TestMonitor_ProbeTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	client := api.New(srv.URL, "", time.Second, zerolog.Nop())
	m := NewMonitor(client, time.Minute, zerolog.Nop())

	var transitions []bool
	m.OnChange(func(online bool) { transitions = append(transitions, online) })

	if !m.Probe(context.Background()) {
		t.Fatal("probe against live server reported offline")
	}
	if len(transitions) != 0 {
		t.Errorf("online probe with no prior state change produced transitions: %v", transitions)
	}

	srv.Close()
	if m.Probe(context.Background()) {
		t.Fatal("probe against dead server reported online")
	}
	if len(transitions) != 1 || transitions[0] {
		t.Fatalf("transitions = %v, want single offline", transitions)
	}

	// Repeated failures do not re-fire the listener.
	m.Probe(context.Background())
	if len(transitions) != 1 {
		t.Errorf("duplicate transition fired: %v", transitions)
	}
}

func TestMonitor_MarkOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()
	client := api.New(srv.URL, "", time.Second, zerolog.Nop())
	m := NewMonitor(client, time.Minute, zerolog.Nop())

	fired := false
	m.OnChange(func(online bool) {
		if !online {
			fired = true
		}
	})

	m.MarkOffline()
	if m.Online() {
		t.Error("monitor still online after MarkOffline")
	}
	if !fired {
		t.Error("offline listener not invoked")
	}

	// The next probe against the live server recovers.
	if !m.Probe(context.Background()) {
		t.Error("probe did not recover online state")
	}
}

func TestMonitor_ServerErrorStillOnline(t *testing.T) {
	// A 5xx means the server answered; connectivity is fine.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"degraded"}`))
	}))
	defer srv.Close()
	client := api.New(srv.URL, "", time.Second, zerolog.Nop())
	m := NewMonitor(client, time.Minute, zerolog.Nop())

	if !m.Probe(context.Background()) {
		t.Error("server rejection misread as lost connectivity")
	}
}
