package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/edgefleet/rollout-agent/internal/rollout/store"
	"github.com/edgefleet/rollout-agent/internal/rollout/transport"
)

// fakeBootloader is a minimal Bootloader for orchestrator tests; it
// records whether RequestUpgrade was called so scenarios can assert on it.
type fakeBootloader struct {
	confirmed       bool
	altSlotSize     int64
	upgradeCalled   int
	upgradeRejected bool
}

func (f *fakeBootloader) IsImageConfirmed() (bool, error) { return f.confirmed, nil }
func (f *fakeBootloader) AltSlotSize() int64              { return f.altSlotSize }
func (f *fakeBootloader) RequestUpgrade() error {
	f.upgradeCalled++
	if f.upgradeRejected {
		return fmt.Errorf("upgrade rejected")
	}
	return nil
}

type fakeIdentity struct {
	id    string
	fwErr error
}

func (f fakeIdentity) DeviceID() (string, error) { return f.id, nil }
func (f fakeIdentity) FirmwareVersion() (string, error) {
	if f.fwErr != nil {
		return "", f.fwErr
	}
	return "1.0.0", nil
}

func newTestConfig(t *testing.T, srv *httptest.Server, bl *fakeBootloader, persistedActionID int32) (Config, *store.FileStore) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse srv url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())

	dir := t.TempDir()
	fs, err := store.NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if persistedActionID != store.NoActionID {
		if err := fs.Write(persistedActionID); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	return Config{
		ServerHost: u.Hostname(),
		ServerPort: port,
		TLS:        transport.TLSConfig{},
		Board:      "x",
		Bootloader: bl,
		Identity:   fakeIdentity{id: "dev01"},
		Store:      fs,
		FlashSlot:  filepath.Join(dir, "alt_slot.bin"),
	}, fs
}

func TestProbeNoUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"config":{"polling":{"sleep":"00:05:00"}},"_links":{}}`))
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != NoUpdate {
		t.Fatalf("outcome = %v, want NoUpdate", report.Outcome)
	}
	if o.PollInterval().Seconds() != 300 {
		t.Fatalf("PollInterval = %v, want 5m", o.PollInterval())
	}
}

func TestProbeCancel(t *testing.T) {
	var gotCancelPost bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			gotCancelPost = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(`{"_links":{"cancelAction":{"href":"https://h/DEFAULT/controller/v1/x-dev01/cancelAction/7"}}}`))
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != CancelUpdate {
		t.Fatalf("outcome = %v, want CancelUpdate", report.Outcome)
	}
	if !gotCancelPost {
		t.Fatal("expected a POST to the cancel feedback URL")
	}
}

func TestProbeFreshInstall(t *testing.T) {
	artifact := make([]byte, 1024)
	for i := range artifact {
		artifact[i] = byte(i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links":{"deploymentBase":{"href":"https://h/DEFAULT/controller/v1/x-dev01/deploymentBase/42"}}}`))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/deploymentBase/42", func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"42","deployment":{"chunks":[{"part":"bApp","artifacts":[{"filename":"app.bin","size":1024,"_links":{"download-http":{"href":"https://h/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin"}}}]}]}}`
		w.Write([]byte(body))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 2048}
	cfg, fs := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != UpdateInstalled {
		t.Fatalf("outcome = %v, want UpdateInstalled (err=%v)", report.Outcome, report.Err)
	}
	if report.BytesWritten != 1024 {
		t.Fatalf("bytes written = %d, want 1024", report.BytesWritten)
	}
	if bl.upgradeCalled != 1 {
		t.Fatalf("RequestUpgrade called %d times, want 1", bl.upgradeCalled)
	}
	id, err := fs.Read()
	if err != nil || id != 42 {
		t.Fatalf("persisted id = %d, err = %v, want 42", id, err)
	}

	written, err := os.ReadFile(cfg.FlashSlot)
	if err != nil {
		t.Fatalf("read flash slot: %v", err)
	}
	if len(written) != 1024 {
		t.Fatalf("flash slot has %d bytes, want 1024", len(written))
	}
}

func TestProbeAlreadyInstalled(t *testing.T) {
	var feedbackPosts int

	mux := http.NewServeMux()
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links":{"deploymentBase":{"href":"https://h/DEFAULT/controller/v1/x-dev01/deploymentBase/42"}}}`))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/deploymentBase/42", func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"42","deployment":{"chunks":[{"part":"bApp","artifacts":[{"filename":"app.bin","size":1024,"_links":{"download-http":{"href":"https://h/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin"}}}]}]}}`
		w.Write([]byte(body))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/deploymentBase/42/feedback", func(w http.ResponseWriter, r *http.Request) {
		feedbackPosts++
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 2048}
	cfg, _ := newTestConfig(t, srv, bl, 42)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != Ok {
		t.Fatalf("outcome = %v, want Ok (err=%v)", report.Outcome, report.Err)
	}
	if report.BytesWritten != 0 {
		t.Fatalf("bytes written = %d, want 0", report.BytesWritten)
	}
	if bl.upgradeCalled != 0 {
		t.Fatalf("RequestUpgrade called %d times, want 0", bl.upgradeCalled)
	}
	if feedbackPosts != 1 {
		t.Fatalf("feedback posts = %d, want 1", feedbackPosts)
	}
}

func TestProbeMalformedSleepLeavesIntervalUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"config":{"polling":{"sleep":"5m"}},"_links":{}}`))
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	before := o.PollInterval()
	report := o.Probe(context.Background())
	if report.Outcome != NoUpdate {
		t.Fatalf("outcome = %v, want NoUpdate", report.Outcome)
	}
	if o.PollInterval() != before {
		t.Fatalf("PollInterval changed to %v after malformed sleep, want unchanged %v", o.PollInterval(), before)
	}
}

func TestProbeOversizedArtifact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links":{"deploymentBase":{"href":"https://h/DEFAULT/controller/v1/x-dev01/deploymentBase/42"}}}`))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/deploymentBase/42", func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"42","deployment":{"chunks":[{"part":"bApp","artifacts":[{"filename":"app.bin","size":2049,"_links":{"download-http":{"href":"https://h/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin"}}}]}]}}`
		w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 2048}
	cfg, fs := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != DownloadError {
		t.Fatalf("outcome = %v, want DownloadError", report.Outcome)
	}
	if bl.upgradeCalled != 0 {
		t.Fatalf("RequestUpgrade called %d times, want 0", bl.upgradeCalled)
	}
	if _, err := os.Stat(cfg.FlashSlot); err == nil {
		t.Fatal("flash slot should not have been written")
	}
	id, err := fs.Read()
	if err != nil || id != store.NoActionID {
		t.Fatalf("persisted id = %d, err = %v, want unchanged NoActionID", id, err)
	}
}

func TestProbeUnconfirmedImageSkipsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be contacted when image is unconfirmed")
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: false, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != UnconfirmedImage {
		t.Fatalf("outcome = %v, want UnconfirmedImage", report.Outcome)
	}
}

func TestProbeFirmwareVersionErrorIsMetadataError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be contacted when firmware version can't be read")
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	cfg.Identity = fakeIdentity{id: "dev01", fwErr: fmt.Errorf("version unreadable")}
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != MetadataError {
		t.Fatalf("outcome = %v, want MetadataError", report.Outcome)
	}
}

func TestProbeTruncatedDownloadIsMetadataError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links":{"deploymentBase":{"href":"https://h/DEFAULT/controller/v1/x-dev01/deploymentBase/42"}}}`))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/deploymentBase/42", func(w http.ResponseWriter, r *http.Request) {
		body := `{"id":"42","deployment":{"chunks":[{"part":"bApp","artifacts":[{"filename":"app.bin","size":1024,"_links":{"download-http":{"href":"https://h/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin"}}}]}]}}`
		w.Write([]byte(body))
	})
	mux.HandleFunc("/DEFAULT/controller/v1/x-dev01/softwaremodules/1/artifacts/app.bin", func(w http.ResponseWriter, r *http.Request) {
		// The deployment descriptor above promises 1024 bytes, but the
		// artifact server serves a clean, complete response of only 512.
		w.Write(make([]byte, 512))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 2048}
	cfg, fs := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	report := o.Probe(context.Background())
	if report.Outcome != MetadataError {
		t.Fatalf("outcome = %v, want MetadataError (err=%v)", report.Outcome, report.Err)
	}
	if bl.upgradeCalled != 0 {
		t.Fatalf("RequestUpgrade called %d times, want 0", bl.upgradeCalled)
	}
	id, err := fs.Read()
	if err != nil || id != store.NoActionID {
		t.Fatalf("persisted id = %d, err = %v, want unchanged NoActionID", id, err)
	}
}

func TestUpdateServerRedirectsSubsequentCycles(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"_links":{}}`))
	}))
	defer srv.Close()

	bl := &fakeBootloader{confirmed: true, altSlotSize: 4096}
	cfg, _ := newTestConfig(t, srv, bl, store.NoActionID)
	o := New(cfg)

	// Point it somewhere unreachable, then redirect it back before probing.
	o.UpdateServer("127.0.0.1", 1)
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	o.UpdateServer(u.Hostname(), port)

	report := o.Probe(context.Background())
	if report.Outcome != NoUpdate {
		t.Fatalf("outcome = %v, want NoUpdate (err=%v)", report.Outcome, report.Err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}
