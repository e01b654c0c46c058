package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
)

func TestWriter_OnlineCreate(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, hasStatus := body["syncStatus"]; hasStatus {
			t.Error("syncStatus leaked to the server")
		}
		w.Write([]byte(`{"success":true,"data":{"_id":"srv123","patientName":"Ali Khan","patientGender":"male","patientCnic":"35202-1234567-1","createdAt":"2025-03-01T09:00:00Z","updatedAt":"2025-03-01T09:00:00Z"}}`))
	}))
	ctx := context.Background()

	var landed localstore.Document
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Patients,
		Method:     http.MethodPost,
		Endpoint:   "/api/patients",
		Payload:    patientPayload("Ali Khan"),
		OnSuccess:  func(doc localstore.Document) { landed = doc },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || res.Queued {
		t.Fatalf("result = %+v, want non-queued success", res)
	}
	if landed == nil || landed.ID() != "srv123" {
		t.Errorf("OnSuccess doc = %v", landed)
	}

	stored, err := h.store.Get(ctx, collections.Patients, "srv123")
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.SyncStatus() != collections.StatusSynced {
		t.Errorf("stored syncStatus = %q, want synced", stored.SyncStatus())
	}

	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 0 {
		t.Errorf("online write was queued")
	}
}

func TestWriter_OfflineCreateQueues(t *testing.T) {
	h := newHarness(t, noopHandler())
	h.goOffline()
	ctx := context.Background()

	var landed localstore.Document
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Patients,
		Method:     http.MethodPost,
		Endpoint:   "/api/patients",
		Payload:    patientPayload("Ali Khan"),
		QueuedBy:   "user-1",
		OnSuccess:  func(doc localstore.Document) { landed = doc },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || !res.Queued {
		t.Fatalf("result = %+v, want queued success", res)
	}
	if !IsTempID(res.Doc.ID()) {
		t.Errorf("generated id = %q, want local- prefix", res.Doc.ID())
	}
	if landed == nil {
		t.Error("optimistic OnSuccess not invoked for queued POST")
	}

	stored, err := h.store.Get(ctx, collections.Patients, res.Doc.ID())
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.SyncStatus() != collections.StatusPending {
		t.Errorf("stored syncStatus = %q, want pending", stored.SyncStatus())
	}

	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.DocID != res.Doc.ID() || e.Method != http.MethodPost || e.QueuedBy != "user-1" {
		t.Errorf("entry = %+v", e)
	}
	if strings.Contains(string(e.Payload), "local-") {
		t.Errorf("temporary id leaked into replay payload: %s", e.Payload)
	}
	if strings.Contains(string(e.Payload), "syncStatus") {
		t.Errorf("syncStatus leaked into replay payload: %s", e.Payload)
	}

	if h.monitor.Online() {
		t.Error("writer did not flip the monitor offline")
	}
}

func TestWriter_OfflineUpdateQueues(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	doc := localstore.Document{
		"_id": "apt-1", "createdAt": "2025-03-01T09:00:00Z", "updatedAt": "2025-03-01T09:00:00Z",
		"syncStatus": collections.StatusSynced, "appointmentDate": "2025-03-05", "status": "Scheduled",
	}
	if err := h.store.Upsert(ctx, collections.Appointments, doc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.goOffline()

	payload := appointmentPayload()
	payload["_id"] = "apt-1"
	payload["status"] = "Completed"
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Appointments,
		Method:     http.MethodPut,
		Endpoint:   "/api/appointments/apt-1",
		ID:         "apt-1",
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || !res.Queued {
		t.Fatalf("result = %+v", res)
	}

	stored, _ := h.store.Get(ctx, collections.Appointments, "apt-1")
	if stored.SyncStatus() != collections.StatusPending {
		t.Errorf("syncStatus = %q, want pending", stored.SyncStatus())
	}
	if stored["status"] != "Completed" {
		t.Errorf("status = %v, want Completed", stored["status"])
	}
}

func TestWriter_OfflineDeleteQueuesWithoutOptimisticCallback(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	doc := localstore.Document{
		"_id": "apt-1", "createdAt": "2025-03-01T09:00:00Z", "updatedAt": "2025-03-01T09:00:00Z",
		"syncStatus": collections.StatusSynced, "appointmentDate": "2025-03-05", "status": "Scheduled",
	}
	if err := h.store.Upsert(ctx, collections.Appointments, doc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.goOffline()

	callbacks := 0
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Appointments,
		Method:     http.MethodDelete,
		Endpoint:   "/api/appointments/apt-1",
		ID:         "apt-1",
		OnSuccess:  func(localstore.Document) { callbacks++ },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || !res.Queued {
		t.Fatalf("result = %+v", res)
	}
	if callbacks != 0 {
		t.Error("queued DELETE invoked the optimistic success callback")
	}

	if _, err := h.store.Get(ctx, collections.Appointments, "apt-1"); err == nil {
		t.Error("local copy survived queued delete")
	}
	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 1 || entries[0].Method != http.MethodDelete {
		t.Fatalf("queue = %+v", entries)
	}
}

func TestWriter_ServerRejectionNotQueued(t *testing.T) {
	h := newHarness(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"patientCnic already registered"}`))
	}))
	ctx := context.Background()

	var gotErr string
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Patients,
		Method:     http.MethodPost,
		Endpoint:   "/api/patients",
		Payload:    patientPayload("Ali Khan"),
		OnError:    func(msg string) { gotErr = msg },
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success {
		t.Error("rejection reported as success")
	}
	if res.Error != "patientCnic already registered" {
		t.Errorf("error = %q", res.Error)
	}
	if gotErr == "" {
		t.Error("OnError not invoked")
	}

	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 0 {
		t.Error("server rejection was queued for replay")
	}
	n, _ := h.store.Count(ctx, collections.Patients)
	if n != 0 {
		t.Error("rejected write was stored locally")
	}
}

func TestWriter_OfflineInvalidPayloadNotQueued(t *testing.T) {
	h := newHarness(t, noopHandler())
	h.goOffline()
	ctx := context.Background()

	payload := patientPayload("Ali Khan")
	payload["patientGender"] = "unknown" // not in the enum
	res, err := h.writer.Submit(ctx, SubmitRequest{
		Collection: collections.Patients,
		Method:     http.MethodPost,
		Endpoint:   "/api/patients",
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success {
		t.Error("invalid payload reported as success")
	}
	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 0 {
		t.Error("invalid payload was queued")
	}
}
