package bootloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgefleet/rollout-agent/pkg/log"
)

// MockBootloader simulates the bootloader contract against plain files
// under a base directory, for development hosts and tests.
type MockBootloader struct {
	baseDir     string
	altSlotSize int64
}

// NewMockBootloader creates a MockBootloader rooted at baseDir with the
// given alternate slot capacity. baseDir is created if it doesn't exist,
// and the running image starts out confirmed.
func NewMockBootloader(baseDir string, altSlotSize int64) (*MockBootloader, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("bootloader: create base dir: %w", err)
	}
	b := &MockBootloader{baseDir: baseDir, altSlotSize: altSlotSize}

	if _, err := os.Stat(b.path(confirmedFile)); os.IsNotExist(err) {
		if err := os.WriteFile(b.path(confirmedFile), []byte("1"), 0o644); err != nil {
			return nil, fmt.Errorf("bootloader: seed confirmed flag: %w", err)
		}
	}
	if _, err := os.Stat(b.path(versionFile)); os.IsNotExist(err) {
		if err := os.WriteFile(b.path(versionFile), []byte("0.0.0"), 0o644); err != nil {
			return nil, fmt.Errorf("bootloader: seed version: %w", err)
		}
	}

	return b, nil
}

func (b *MockBootloader) path(name string) string {
	return filepath.Join(b.baseDir, name)
}

func (b *MockBootloader) IsImageConfirmed() (bool, error) {
	data, err := os.ReadFile(b.path(confirmedFile))
	if err != nil {
		return false, fmt.Errorf("bootloader: read confirmed flag: %w", err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (b *MockBootloader) WriteImageConfirmed() error {
	log.Info("bootloader: marking running image confirmed")
	if err := os.WriteFile(b.path(confirmedFile), []byte("1"), 0o644); err != nil {
		return fmt.Errorf("bootloader: write confirmed flag: %w", err)
	}
	return nil
}

func (b *MockBootloader) EraseAltSlot() error {
	log.Info("bootloader: erasing alternate slot")
	if err := os.Remove(b.path(altSlotFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bootloader: erase alt slot: %w", err)
	}
	return nil
}

func (b *MockBootloader) AltSlotSize() int64 {
	return b.altSlotSize
}

func (b *MockBootloader) RequestUpgrade() error {
	log.Info("bootloader: arming one-shot boot of staged image")
	if err := os.WriteFile(b.path(confirmedFile), []byte("0"), 0o644); err != nil {
		return fmt.Errorf("bootloader: clear confirmed flag: %w", err)
	}
	return nil
}

func (b *MockBootloader) ImageVersion() string {
	data, err := os.ReadFile(b.path(versionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *MockBootloader) Reboot() error {
	log.Warn("bootloader: mock reboot requested; process is not actually restarting")
	return nil
}
