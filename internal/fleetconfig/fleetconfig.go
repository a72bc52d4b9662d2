// Package fleetconfig loads the device-provisioning manifest both
// cmd/plant-light and cmd/fleet-gateway need at startup: the shared radio
// key, each node's pipe assignment, the UART baud rate, and the
// secure-radio tick window. The PC-side application configuration lives
// with the PC host, not here.
package fleetconfig

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig is one plant-light node's entry in the fleet manifest.
type NodeConfig struct {
	Name string `yaml:"name"`
	Pipe uint8  `yaml:"pipe"`
}

// Manifest is the on-disk shape of a fleet provisioning file.
type Manifest struct {
	// KeyHex is the 32-byte shared radio key, hex-encoded.
	KeyHex string `yaml:"key"`
	// BaudRate is the UART link rate between gateway and modem.
	BaudRate int `yaml:"baud_rate"`
	// TickWindowSeconds is the secure-radio replay acceptance window,
	// expressed in seconds (converted to ticks against timer.TicksPerSecond
	// by callers, which know the rate they're running at).
	TickWindowSeconds int `yaml:"tick_window_seconds"`
	// Nodes lists every plant-light node's pipe assignment.
	Nodes []NodeConfig `yaml:"nodes"`
}

// Config is the parsed, validated manifest with the key material decoded.
type Config struct {
	Key               [32]byte
	BaudRate          int
	TickWindowSeconds int
	Nodes             []NodeConfig
}

// Load reads and validates the fleet manifest at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates and decodes manifest bytes already in memory, useful for
// tests and for embedding a default manifest.
func Parse(raw []byte) (*Config, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("fleetconfig: parse: %w", err)
	}

	keyBytes, err := hex.DecodeString(m.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: key is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("fleetconfig: key must be 32 bytes, got %d", len(keyBytes))
	}

	if m.BaudRate <= 0 {
		return nil, fmt.Errorf("fleetconfig: baud_rate must be positive, got %d", m.BaudRate)
	}
	if m.TickWindowSeconds <= 0 {
		return nil, fmt.Errorf("fleetconfig: tick_window_seconds must be positive, got %d", m.TickWindowSeconds)
	}

	seenPipes := make(map[uint8]string, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("fleetconfig: node with pipe %d has no name", n.Pipe)
		}
		if existing, ok := seenPipes[n.Pipe]; ok {
			return nil, fmt.Errorf("fleetconfig: pipe %d assigned to both %q and %q", n.Pipe, existing, n.Name)
		}
		seenPipes[n.Pipe] = n.Name
	}

	cfg := &Config{
		BaudRate:          m.BaudRate,
		TickWindowSeconds: m.TickWindowSeconds,
		Nodes:             m.Nodes,
	}
	copy(cfg.Key[:], keyBytes)
	return cfg, nil
}

// PipeForName returns the pipe assigned to the named node.
func (c *Config) PipeForName(name string) (uint8, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n.Pipe, true
		}
	}
	return 0, false
}
