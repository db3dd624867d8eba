// Package config loads the daemon's interface and FIFO configuration
// from a YAML file (§6), the way deviceid.go in the example pack loads
// its own YAML reference data: read the whole file, unmarshal, and
// report a clear error on either failure.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's top-level configuration.
type Config struct {
	// Interfaces maps a caller-chosen name to the raw key/value options
	// passed straight to an x10.Registry — including the "interface"
	// key that selects which constructor to use. Keeping these as
	// map[string]string rather than a typed struct lets the registry
	// remain the single source of truth for which keys are valid per
	// interface type (§6: unknown keys are errors, caught there).
	Interfaces map[string]map[string]string `yaml:"interfaces"`

	FIFO *FIFOConfig `yaml:"fifo,omitempty"`

	DeviceScan *DeviceScanConfig `yaml:"device_scan,omitempty"`

	ZeroCross *ZeroCrossConfig `yaml:"zero_cross,omitempty"`

	DNSSD *DNSSDConfig `yaml:"dnssd,omitempty"`
}

// FIFOConfig configures the ambient text command FIFO (§6).
type FIFOConfig struct {
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
}

// DeviceScanConfig holds the device_scan section, for udev-based
// discovery of candidate serial and I²C devices. x10d's --list-devices
// scan runs before the configuration is loaded and does not read it; it
// always scans devicescan's default subsystems.
type DeviceScanConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Subsystems []string `yaml:"subsystems"`
}

// ZeroCrossConfig configures the GPIO zero-crossing diagnostic.
type ZeroCrossConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
	Line    int    `yaml:"line"`
}

// DNSSDConfig configures mDNS/DNS-SD announcement of the daemon's
// control service.
type DNSSDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Port    int    `yaml:"port"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for name, opts := range cfg.Interfaces {
		if _, ok := opts["interface"]; !ok {
			return nil, fmt.Errorf("config: interface %q is missing required key \"interface\"", name)
		}
	}

	return &cfg, nil
}
