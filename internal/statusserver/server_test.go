package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgefleet/rollout-agent/internal/rollout/orchestrator"
)

func TestServerHealthzAndStatus(t *testing.T) {
	s := NewServer("127.0.0.1:0")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status before any report = %d, want 204", rec.Code)
	}

	s.SetReport(orchestrator.CycleReport{
		Outcome:      orchestrator.UpdateInstalled,
		ActionID:     42,
		BytesWritten: 1024,
		Duration:     2 * time.Second,
		PollInterval: 5 * time.Minute,
	})

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status status = %d, want 200", rec.Code)
	}

	var view statusView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if view.Outcome != "UpdateInstalled" || view.ActionID != 42 || view.BytesWritten != 1024 {
		t.Fatalf("unexpected status view: %+v", view)
	}
}

func TestServerShutsDownOnContextCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
