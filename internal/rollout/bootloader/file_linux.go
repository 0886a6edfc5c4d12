//go:build linux

package bootloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/edgefleet/rollout-agent/pkg/log"
)

// FileBootloader performs the same file-backed bookkeeping as
// MockBootloader against real on-device paths, standing in for the
// u-boot-env/ioctl calls a production image would issue: this repository
// has no access to real bootloader firmware to drive.
type FileBootloader struct {
	baseDir     string
	altSlotSize int64
}

// NewFileBootloader creates a FileBootloader rooted at baseDir (typically
// a path under /etc or /var on the device) with the given alternate slot
// capacity.
func NewFileBootloader(baseDir string, altSlotSize int64) (*FileBootloader, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("bootloader: create base dir: %w", err)
	}
	b := &FileBootloader{baseDir: baseDir, altSlotSize: altSlotSize}

	if _, err := os.Stat(b.path(confirmedFile)); os.IsNotExist(err) {
		if err := os.WriteFile(b.path(confirmedFile), []byte("1"), 0o644); err != nil {
			return nil, fmt.Errorf("bootloader: seed confirmed flag: %w", err)
		}
	}

	return b, nil
}

func (b *FileBootloader) path(name string) string {
	return filepath.Join(b.baseDir, name)
}

func (b *FileBootloader) IsImageConfirmed() (bool, error) {
	data, err := os.ReadFile(b.path(confirmedFile))
	if err != nil {
		return false, fmt.Errorf("bootloader: read confirmed flag: %w", err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (b *FileBootloader) WriteImageConfirmed() error {
	log.Info("bootloader: marking running image confirmed")
	if err := os.WriteFile(b.path(confirmedFile), []byte("1"), 0o644); err != nil {
		return fmt.Errorf("bootloader: write confirmed flag: %w", err)
	}
	return nil
}

func (b *FileBootloader) EraseAltSlot() error {
	log.Info("bootloader: erasing alternate slot")
	if err := os.Remove(b.path(altSlotFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bootloader: erase alt slot: %w", err)
	}
	return nil
}

func (b *FileBootloader) AltSlotSize() int64 {
	return b.altSlotSize
}

func (b *FileBootloader) RequestUpgrade() error {
	log.Info("bootloader: arming one-shot boot of staged image")
	if err := os.WriteFile(b.path(confirmedFile), []byte("0"), 0o644); err != nil {
		return fmt.Errorf("bootloader: clear confirmed flag: %w", err)
	}
	return nil
}

func (b *FileBootloader) ImageVersion() string {
	data, err := os.ReadFile(b.path(versionFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *FileBootloader) Reboot() error {
	log.Warn("bootloader: warm reboot requested")
	syscall.Sync()
	return syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART)
}
