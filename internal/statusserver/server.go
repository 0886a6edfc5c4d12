// Package statusserver exposes the agent's operator-facing debug surface:
// a liveness probe, the Prometheus scrape endpoint, and the last cycle's
// report as JSON. None of this is part of the rollout protocol itself.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgefleet/rollout-agent/internal/rollout/orchestrator"
	"github.com/edgefleet/rollout-agent/pkg/log"
)

// Server serves /healthz, /metrics, and /status over a gorilla/mux router.
type Server struct {
	server *http.Server
	last   atomic.Pointer[orchestrator.CycleReport]
	alive  atomic.Bool
}

// NewServer builds a Server bound to addr. It doesn't start listening
// until Start is called.
func NewServer(addr string) *Server {
	s := &Server{}
	s.alive.Store(true)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.server = &http.Server{Addr: addr, Handler: r}
	return s
}

// SetReport publishes the most recent cycle's report for /status to serve.
func (s *Server) SetReport(report orchestrator.CycleReport) {
	s.last.Store(&report)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.alive.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.last.Load()
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusView{
		Outcome:      report.Outcome.String(),
		ActionID:     report.ActionID,
		BytesWritten: report.BytesWritten,
		DurationMS:   report.Duration.Milliseconds(),
		PollInterval: report.PollInterval.String(),
		Error:        errString(report.Err),
	}); err != nil {
		log.Error(err, "failed to encode status response")
	}
}

type statusView struct {
	Outcome      string `json:"outcome"`
	ActionID     int32  `json:"actionId"`
	BytesWritten int64  `json:"bytesWritten"`
	DurationMS   int64  `json:"durationMs"`
	PollInterval string `json:"pollInterval"`
	Error        string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully, matching the shape an errgroup.Group expects from each of
// its managed sub-servers.
func (s *Server) Start(ctx context.Context) error {
	log.Info("starting status server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.alive.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
