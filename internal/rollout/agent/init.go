package agent

import (
	"fmt"

	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/store"
	"github.com/edgefleet/rollout-agent/pkg/log"
)

// Init runs the one-shot startup check: it reads the persisted action id
// purely for logging, then confirms the currently running image if the
// bootloader hasn't already, clearing the alternate slot afterward so a
// later download has room to land.
func Init(st store.Store, bl bootloader.Bootloader) error {
	actionID, err := st.Read()
	if err != nil {
		log.Warn("failed to read persisted action id during init", "error", err)
	} else {
		log.Info("init: persisted action id", "actionID", actionID)
	}

	confirmed, err := bl.IsImageConfirmed()
	if err != nil {
		return fmt.Errorf("init: query image confirmation: %w", err)
	}
	if confirmed {
		log.Info("init: running image already confirmed")
		return nil
	}

	log.Info("init: confirming running image")
	if err := bl.WriteImageConfirmed(); err != nil {
		return fmt.Errorf("init: confirm image: %w", err)
	}
	if err := bl.EraseAltSlot(); err != nil {
		return fmt.Errorf("init: erase alternate slot: %w", err)
	}
	return nil
}
