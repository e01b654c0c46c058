package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func noopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})
}

func TestQueue_FIFOOrder(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		err := h.queue.Enqueue(ctx, &Entry{
			Collection: "appointments", DocID: id, Method: http.MethodPost, Endpoint: "/api/appointments",
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	entries, err := h.queue.Pending(ctx, "")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("pending = %d entries, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].DocID != want {
			t.Errorf("entry %d doc id = %s, want %s", i, entries[i].DocID, want)
		}
	}
}

func TestQueue_PendingFiltersByUser(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	h.queue.Enqueue(ctx, &Entry{Collection: "bills", DocID: "b-1", Method: http.MethodPost, Endpoint: "/api/bills", QueuedBy: "user-1"})
	h.queue.Enqueue(ctx, &Entry{Collection: "bills", DocID: "b-2", Method: http.MethodPost, Endpoint: "/api/bills", QueuedBy: "user-2"})

	entries, err := h.queue.Pending(ctx, "user-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 1 || entries[0].DocID != "b-1" {
		t.Fatalf("user-1 pending = %v", entries)
	}
}

func TestQueue_FailedLifecycle(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	e := &Entry{Collection: "bills", DocID: "b-1", Method: http.MethodPost, Endpoint: "/api/bills"}
	if err := h.queue.Enqueue(ctx, e); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := h.queue.IncrementAttempts(ctx, e.Seq); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := h.queue.MarkFailed(ctx, e.Seq); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, _ := h.queue.Pending(ctx, "")
	if len(pending) != 0 {
		t.Fatalf("failed entry still pending")
	}
	counts, err := h.queue.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["bills"].Failed != 1 || counts["bills"].Pending != 0 {
		t.Errorf("counts = %+v", counts["bills"])
	}

	n, err := h.queue.ResetFailed(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset %d entries, want 1", n)
	}
	pending, _ = h.queue.Pending(ctx, "")
	if len(pending) != 1 || pending[0].Attempts != 0 {
		t.Fatalf("reset entry = %+v", pending)
	}
}

func TestQueue_HasPendingWrite(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	e := &Entry{Collection: "appointments", DocID: "apt-1", Method: http.MethodPut, Endpoint: "/api/appointments/apt-1"}
	h.queue.Enqueue(ctx, e)

	got, err := h.queue.HasPendingWrite(ctx, "appointments", "apt-1")
	if err != nil {
		t.Fatalf("has pending write: %v", err)
	}
	if !got {
		t.Error("expected pending write for apt-1")
	}

	// A parked descriptor still counts; the record is unreplayed either way.
	h.queue.MarkFailed(ctx, e.Seq)
	got, _ = h.queue.HasPendingWrite(ctx, "appointments", "apt-1")
	if !got {
		t.Error("expected failed descriptor to still count as unreplayed")
	}

	h.queue.Remove(ctx, e.Seq)
	got, _ = h.queue.HasPendingWrite(ctx, "appointments", "apt-1")
	if got {
		t.Error("pending write survived removal")
	}
}

func TestQueue_RewriteDocID(t *testing.T) {
	h := newHarness(t, noopHandler())
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]interface{}{
		"patientId": "local-abc",
		"reason":    "follow-up",
		"nested":    map[string]interface{}{"ref": map[string]interface{}{"_id": "local-abc"}},
	})
	h.queue.Enqueue(ctx, &Entry{
		Collection: "appointments", DocID: "local-xyz", Method: http.MethodPost,
		Endpoint: "/api/appointments", Payload: payload,
	})
	h.queue.Enqueue(ctx, &Entry{
		Collection: "patients", DocID: "local-abc", Method: http.MethodPut,
		Endpoint: "/api/patients/local-abc", Payload: json.RawMessage(`{"patientName":"Ali"}`),
	})

	if err := h.queue.RewriteDocID(ctx, "local-abc", "srv123"); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	entries, _ := h.queue.Pending(ctx, "")
	if len(entries) != 2 {
		t.Fatalf("pending = %d entries", len(entries))
	}

	var apt map[string]interface{}
	if err := json.Unmarshal(entries[0].Payload, &apt); err != nil {
		t.Fatalf("decode rewritten payload: %v", err)
	}
	if apt["patientId"] != "srv123" {
		t.Errorf("payload patientId = %v", apt["patientId"])
	}
	nested := apt["nested"].(map[string]interface{})["ref"].(map[string]interface{})
	if nested["_id"] != "srv123" {
		t.Errorf("nested ref = %v", nested)
	}
	if apt["reason"] != "follow-up" {
		t.Errorf("unrelated field changed: %v", apt["reason"])
	}

	if entries[1].DocID != "srv123" {
		t.Errorf("doc id = %s, want srv123", entries[1].DocID)
	}
	if entries[1].Endpoint != "/api/patients/srv123" {
		t.Errorf("endpoint = %s", entries[1].Endpoint)
	}
}
