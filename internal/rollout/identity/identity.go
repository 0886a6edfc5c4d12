// Package identity resolves the device's identifier and running firmware
// version, the two values the orchestrator needs before it can open a
// session against the rollout server.
package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgefleet/rollout-agent/pkg/log"
)

// Source supplies the device identity the orchestrator needs each cycle.
type Source interface {
	// DeviceID returns the device's identifier (VIN-equivalent). An error
	// means identity could not be established at all.
	DeviceID() (string, error)

	// FirmwareVersion returns the currently running image's version.
	FirmwareVersion() (string, error)
}

// EnvSource resolves the device id from an environment variable first,
// falling back to a file; the firmware version is read from the
// bootloader passed to NewEnvSource.
type EnvSource struct {
	envVar      string
	idFile      string
	versionFunc func() string
}

// NewEnvSource creates an EnvSource that checks envVar then idFile for the
// device id, and calls versionFunc (typically bootloader.ImageVersion) for
// the firmware version.
func NewEnvSource(envVar, idFile string, versionFunc func() string) *EnvSource {
	return &EnvSource{envVar: envVar, idFile: idFile, versionFunc: versionFunc}
}

func (s *EnvSource) DeviceID() (string, error) {
	if id := os.Getenv(s.envVar); id != "" {
		log.Debug("device id resolved from environment", "var", s.envVar)
		return id, nil
	}

	if data, err := os.ReadFile(s.idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			log.Debug("device id resolved from file", "path", s.idFile)
			return id, nil
		}
	}

	return "", fmt.Errorf("identity: no device id in %s or %s", s.envVar, s.idFile)
}

func (s *EnvSource) FirmwareVersion() (string, error) {
	if s.versionFunc == nil {
		return "", fmt.Errorf("identity: no version source configured")
	}
	v := s.versionFunc()
	if v == "" {
		return "", fmt.Errorf("identity: empty firmware version")
	}
	return v, nil
}
