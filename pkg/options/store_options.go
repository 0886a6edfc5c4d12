package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// StoreOptions configures where the agent persists state: the installed
// action id and the alternate flash slot it streams artifacts into.
type StoreOptions struct {
	ActionIDPath string `json:"action-id-path" mapstructure:"action-id-path"`
	FlashSlotPath string `json:"flash-slot-path" mapstructure:"flash-slot-path"`
}

// NewStoreOptions creates a StoreOptions object with default parameters.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		ActionIDPath:  "/var/lib/rollout-agent/action_id",
		FlashSlotPath: "/var/lib/rollout-agent/alt_slot.bin",
	}
}

// Validate checks the parameters entered by the user at the command line.
func (o *StoreOptions) Validate() []error {
	var errs []error
	if o.ActionIDPath == "" {
		errs = append(errs, fmt.Errorf("store.action-id-path must not be empty"))
	}
	if o.FlashSlotPath == "" {
		errs = append(errs, fmt.Errorf("store.flash-slot-path must not be empty"))
	}
	return errs
}

// AddFlags binds command-line flags to the StoreOptions fields.
func (o *StoreOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ActionIDPath, "store.action-id-path", o.ActionIDPath, "Path the installed action id is persisted to.")
	fs.StringVar(&o.FlashSlotPath, "store.flash-slot-path", o.FlashSlotPath, "Path of the alternate flash slot artifacts are streamed into.")
}

// StatusServerOptions configures the operator-facing debug surface.
type StatusServerOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// NewStatusServerOptions creates a StatusServerOptions object with
// default parameters.
func NewStatusServerOptions() *StatusServerOptions {
	return &StatusServerOptions{
		Enabled: true,
		Addr:    "127.0.0.1:8090",
	}
}

// Validate checks the parameters entered by the user at the command line.
func (o *StatusServerOptions) Validate() []error {
	if !o.Enabled {
		return nil
	}
	var errs []error
	if err := validateAddress(o.Addr); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// AddFlags binds command-line flags to the StatusServerOptions fields.
func (o *StatusServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "status.enabled", o.Enabled, "Enable the status/debug HTTP server.")
	fs.StringVar(&o.Addr, "status.addr", o.Addr, "Bind address for the status/debug HTTP server.")
}
