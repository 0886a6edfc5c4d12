// Package agent wires together the orchestrator, bootloader, and status
// server into the long-running process: the ticker-driven probe loop
// (the autohandler) plus the one-shot startup check (Init).
package agent

import (
	"fmt"

	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/identity"
	"github.com/edgefleet/rollout-agent/internal/rollout/orchestrator"
	"github.com/edgefleet/rollout-agent/internal/rollout/store"
	"github.com/edgefleet/rollout-agent/internal/rollout/transport"
	"github.com/edgefleet/rollout-agent/internal/statusserver"
)

// Config carries everything NewAgent needs to assemble an Agent: the
// orchestrator's own Config plus the full Bootloader (Init and the
// reboot-on-UnconfirmedImage path both need more than the orchestrator's
// narrow subset) and the status server's bind address.
type Config struct {
	ServerHost string
	ServerPort int
	TLS        transport.TLSConfig
	Board      string

	Bootloader bootloader.Bootloader
	Identity   identity.Source
	Store      store.Store
	FlashSlot  string

	StatusServerEnabled bool
	StatusServerAddr    string
}

// NewAgent validates cfg and assembles an Agent ready to Run.
func (cfg *Config) NewAgent() (*Agent, error) {
	if cfg.ServerHost == "" {
		return nil, fmt.Errorf("agent: server host is required")
	}
	if cfg.Bootloader == nil {
		return nil, fmt.Errorf("agent: bootloader is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("agent: identity source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("agent: store is required")
	}

	orch := orchestrator.New(orchestrator.Config{
		ServerHost: cfg.ServerHost,
		ServerPort: cfg.ServerPort,
		TLS:        cfg.TLS,
		Board:      cfg.Board,
		Bootloader: cfg.Bootloader,
		Identity:   cfg.Identity,
		Store:      cfg.Store,
		FlashSlot:  cfg.FlashSlot,
	})

	a := &Agent{
		orchestrator: orch,
		bootloader:   cfg.Bootloader,
	}

	if cfg.StatusServerEnabled {
		a.statusServer = statusserver.NewServer(cfg.StatusServerAddr)
	}

	return a, nil
}
