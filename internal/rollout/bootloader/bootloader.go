// Package bootloader abstracts the device's slotted-flash bootloader: the
// confirm/revert bookkeeping the orchestrator and init path drive.
package bootloader

// Bookkeeping file names shared by the mock and linux file-backed
// implementations.
const (
	confirmedFile = "confirmed"
	versionFile   = "version"
	altSlotFile   = "alt_slot.bin"
)

// Bootloader exposes the seven operations the update state machine, init
// path and autohandler need from the device's bootloader. Implementations are expected to
// be safe for the orchestrator's single-goroutine, never-reentrant use.
type Bootloader interface {
	// IsImageConfirmed reports whether the currently running image has
	// been marked permanent.
	IsImageConfirmed() (bool, error)

	// WriteImageConfirmed promotes the currently running image to
	// permanent, clearing any pending-confirmation state.
	WriteImageConfirmed() error

	// EraseAltSlot clears the alternate flash slot, freeing it for the
	// next download.
	EraseAltSlot() error

	// AltSlotSize reports the alternate slot's capacity in bytes.
	AltSlotSize() int64

	// RequestUpgrade arms a one-shot boot attempt of the image now staged
	// in the alternate slot.
	RequestUpgrade() error

	// ImageVersion reports the currently running image's version string.
	ImageVersion() string

	// Reboot performs a warm reboot, handing control to the bootloader to
	// pick the image for the next boot.
	Reboot() error
}
