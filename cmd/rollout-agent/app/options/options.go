// Package options aggregates every configurable concern of the
// rollout-agent command into one Options struct, mirroring the
// AgentOptions shape used by similar daemons in this codebase, without a
// separate app framework: this command builds its *cobra.Command
// directly, so Options only needs Flags, Validate, Complete, and Config.
package options

import (
	"fmt"
	"os"
	"path/filepath"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/spf13/pflag"

	"github.com/edgefleet/rollout-agent/internal/rollout/agent"
	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/identity"
	"github.com/edgefleet/rollout-agent/internal/rollout/store"
	"github.com/edgefleet/rollout-agent/internal/rollout/transport"
	"github.com/edgefleet/rollout-agent/pkg/log"
	"github.com/edgefleet/rollout-agent/pkg/options"
)

// IdentityOptions configures how the agent resolves its own device id and
// where the bootloader state lives on disk.
type IdentityOptions struct {
	DeviceIDEnvVar string `json:"device-id-env-var" mapstructure:"device-id-env-var"`
	DeviceIDFile   string `json:"device-id-file" mapstructure:"device-id-file"`
	BootloaderDir  string `json:"bootloader-dir" mapstructure:"bootloader-dir"`
	AltSlotSize    int64  `json:"alt-slot-size" mapstructure:"alt-slot-size"`
}

func newIdentityOptions() *IdentityOptions {
	return &IdentityOptions{
		DeviceIDEnvVar: "ROLLOUT_DEVICE_ID",
		DeviceIDFile:   "/etc/rollout-agent/device-id",
		BootloaderDir:  "/var/lib/rollout-agent/bootloader",
		AltSlotSize:    64 * 1024 * 1024,
	}
}

func (o *IdentityOptions) Validate() []error {
	var errs []error
	if o.DeviceIDEnvVar == "" {
		errs = append(errs, fmt.Errorf("identity.device-id-env-var must not be empty"))
	}
	if o.AltSlotSize <= 0 {
		errs = append(errs, fmt.Errorf("identity.alt-slot-size must be positive"))
	}
	return errs
}

func (o *IdentityOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.DeviceIDEnvVar, "identity.device-id-env-var", o.DeviceIDEnvVar, "Environment variable holding the device id.")
	fs.StringVar(&o.DeviceIDFile, "identity.device-id-file", o.DeviceIDFile, "Fallback file holding the device id.")
	fs.StringVar(&o.BootloaderDir, "identity.bootloader-dir", o.BootloaderDir, "Directory the bootloader abstraction keeps its bookkeeping in.")
	fs.Int64Var(&o.AltSlotSize, "identity.alt-slot-size", o.AltSlotSize, "Capacity in bytes of the alternate flash slot.")
}

// Options aggregates every flag-bindable concern of the rollout-agent
// command.
type Options struct {
	ConfigFile string `json:"-" mapstructure:"-"`

	Log          *log.Options                `json:"log" mapstructure:"log"`
	Transport    *options.TransportOptions    `json:"transport" mapstructure:"transport"`
	Store        *options.StoreOptions        `json:"store" mapstructure:"store"`
	StatusServer *options.StatusServerOptions `json:"status" mapstructure:"status"`
	Identity     *IdentityOptions             `json:"identity" mapstructure:"identity"`

	bootloader bootloader.Bootloader
}

// NewOptions creates an Options object with every sub-option defaulted.
func NewOptions() *Options {
	return &Options{
		Log:          log.NewOptions(),
		Transport:    options.NewTransportOptions(),
		Store:        options.NewStoreOptions(),
		StatusServer: options.NewStatusServerOptions(),
		Identity:     newIdentityOptions(),
	}
}

// Flags returns the full set of named flag groups the command exposes.
func (o *Options) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	o.Log.AddFlags(fss.FlagSet("log"))
	o.Transport.AddFlags(fss.FlagSet("transport"))
	o.Store.AddFlags(fss.FlagSet("store"))
	o.StatusServer.AddFlags(fss.FlagSet("status"))
	o.Identity.AddFlags(fss.FlagSet("identity"))

	fss.FlagSet("global").StringVar(&o.ConfigFile, "config", o.ConfigFile, "Path to a YAML config file; overrides flag defaults and is watched for changes.")

	return fss
}

// Complete fills in anything that depends on another field's final value.
func (o *Options) Complete() error {
	if o.Transport.ServerName == "" {
		o.Transport.ServerName = o.Transport.Host
	}
	return nil
}

// Validate aggregates every sub-option's Validate call into one error.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Transport.Validate()...)
	errs = append(errs, o.Store.Validate()...)
	errs = append(errs, o.StatusServer.Validate()...)
	errs = append(errs, o.Identity.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// Config assembles an agent.Config from the current option values,
// constructing the bootloader, identity source, and persistent store
// along the way. It is idempotent with respect to the bootloader: the
// same instance is returned on repeated calls so a config reload doesn't
// re-seed the confirmed flag.
func (o *Options) Config() (*agent.Config, error) {
	if o.bootloader == nil {
		bl, err := bootloader.New(o.Identity.BootloaderDir, o.Identity.AltSlotSize)
		if err != nil {
			return nil, fmt.Errorf("options: create bootloader: %w", err)
		}
		o.bootloader = bl
	}

	idSource := identity.NewEnvSource(o.Identity.DeviceIDEnvVar, o.Identity.DeviceIDFile, o.bootloader.ImageVersion)

	if err := os.MkdirAll(filepath.Dir(o.Store.ActionIDPath), 0o755); err != nil {
		return nil, fmt.Errorf("options: create action id directory: %w", err)
	}
	actionStore, err := store.NewFileStore(o.Store.ActionIDPath)
	if err != nil {
		return nil, fmt.Errorf("options: create action id store: %w", err)
	}

	tlsCfg := transport.TLSConfig{
		Enabled:    o.Transport.TLSEnabled,
		ServerName: o.Transport.ServerName,
		Timeout:    o.Transport.Timeout,
	}
	if o.Transport.TLSEnabled {
		cert, err := os.ReadFile(o.Transport.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("options: read CA certificate: %w", err)
		}
		tlsCfg.CACert = cert
	}

	return &agent.Config{
		ServerHost: o.Transport.Host,
		ServerPort: o.Transport.Port,
		TLS:        tlsCfg,
		Board:      o.Transport.Board,

		Bootloader: o.bootloader,
		Identity:   idSource,
		Store:      actionStore,
		FlashSlot:  o.Store.FlashSlotPath,

		StatusServerEnabled: o.StatusServer.Enabled,
		StatusServerAddr:    o.StatusServer.Addr,
	}, nil
}
