package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/identity"
	"github.com/edgefleet/rollout-agent/internal/rollout/store"
)

type fakeIdentity struct{ id string }

func (f fakeIdentity) DeviceID() (string, error)        { return f.id, nil }
func (f fakeIdentity) FirmwareVersion() (string, error) { return "1.0.0", nil }

func TestInitConfirmsUnconfirmedImage(t *testing.T) {
	dir := t.TempDir()
	bl, err := bootloader.NewMockBootloader(filepath.Join(dir, "bl"), 4096)
	if err != nil {
		t.Fatalf("NewMockBootloader: %v", err)
	}
	if err := bl.RequestUpgrade(); err != nil { // leaves the image unconfirmed
		t.Fatalf("RequestUpgrade: %v", err)
	}

	fs, err := store.NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := Init(fs, bl); err != nil {
		t.Fatalf("Init: %v", err)
	}

	confirmed, err := bl.IsImageConfirmed()
	if err != nil || !confirmed {
		t.Fatalf("image confirmed = %v, err = %v, want true", confirmed, err)
	}
}

func TestInitNoopWhenAlreadyConfirmed(t *testing.T) {
	dir := t.TempDir()
	bl, err := bootloader.NewMockBootloader(filepath.Join(dir, "bl"), 4096)
	if err != nil {
		t.Fatalf("NewMockBootloader: %v", err)
	}
	fs, err := store.NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := Init(fs, bl); err != nil {
		t.Fatalf("Init: %v", err)
	}
	confirmed, err := bl.IsImageConfirmed()
	if err != nil || !confirmed {
		t.Fatalf("image confirmed = %v, err = %v, want true", confirmed, err)
	}
}

func TestAgentRunStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_links":{}}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())

	dir := t.TempDir()
	bl, err := bootloader.NewMockBootloader(filepath.Join(dir, "bl"), 4096)
	if err != nil {
		t.Fatalf("NewMockBootloader: %v", err)
	}
	fs, err := store.NewFileStore(filepath.Join(dir, "actionid"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cfg := &Config{
		ServerHost: u.Hostname(),
		ServerPort: port,
		Board:      "x",
		Bootloader: bl,
		Identity:   fakeIdentity{id: "dev01"},
		Store:      fs,
		FlashSlot:  filepath.Join(dir, "alt_slot.bin"),
	}
	a, err := cfg.NewAgent()
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNewAgentRejectsMissingFields(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.NewAgent(); err == nil {
		t.Fatal("expected error for empty config")
	}
}

var _ identity.Source = fakeIdentity{}
