// Package options collects the pflag-bound configuration structs the
// rollout-agent command assembles into an orchestrator.Config, one
// struct per concern, following this codebase's NewGrpcOptions/
// NewHttpOptions split.
package options

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

// TransportOptions configures the hawkBit-style server the agent polls.
type TransportOptions struct {
	Host       string        `json:"host" mapstructure:"host"`
	Port       int           `json:"port" mapstructure:"port"`
	Board      string        `json:"board" mapstructure:"board"`
	TLSEnabled bool          `json:"tls-enabled" mapstructure:"tls-enabled"`
	ServerName string        `json:"tls-server-name" mapstructure:"tls-server-name"`
	CACertFile string        `json:"tls-ca-cert-file" mapstructure:"tls-ca-cert-file"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewTransportOptions creates a TransportOptions object with default
// parameters.
func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Host:    "localhost",
		Port:    8080,
		Board:   "DEFAULT",
		Timeout: 300 * time.Second,
	}
}

// Validate checks the parameters entered by the user at the command line.
func (o *TransportOptions) Validate() []error {
	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("transport.host must not be empty"))
	}
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("transport.port %d out of range", o.Port))
	}
	if o.Board == "" {
		errs = append(errs, fmt.Errorf("transport.board must not be empty"))
	}
	if o.TLSEnabled && o.CACertFile == "" {
		errs = append(errs, fmt.Errorf("transport.tls-ca-cert-file is required when TLS is enabled"))
	}
	return errs
}

// AddFlags binds command-line flags to the TransportOptions fields.
func (o *TransportOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Host, "transport.host", o.Host, "Hostname of the rollout server.")
	fs.IntVar(&o.Port, "transport.port", o.Port, "Port of the rollout server.")
	fs.StringVar(&o.Board, "transport.board", o.Board, "Board identifier interpolated into the base URL.")
	fs.BoolVar(&o.TLSEnabled, "transport.tls-enabled", o.TLSEnabled, "Enable TLS with CA pinning for the rollout connection.")
	fs.StringVar(&o.ServerName, "transport.tls-server-name", o.ServerName, "Expected TLS server name (SNI); defaults to the host.")
	fs.StringVar(&o.CACertFile, "transport.tls-ca-cert-file", o.CACertFile, "Path to the pinned CA certificate, PEM-encoded.")
	fs.DurationVar(&o.Timeout, "transport.timeout", o.Timeout, "Per-request timeout.")
}

// validateAddress is a small stand-in for a full address validator: it
// only needs to reject obviously malformed host:port pairs here.
func validateAddress(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
