// Package config loads the startup configuration a node needs: its
// own peer id, the ordered peer list, and a debug/release flag. It is
// read once at process start; the core itself never imports this
// package.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// NodeConfig is the persistent, on-disk configuration for one node.
type NodeConfig struct {
	NodeID uint32   `json:"node_id"`
	Peers  []string `json:"peers"` // ordered host:port list; index implies peer id
	Debug  bool     `json:"debug"`
}

// Manager loads and saves a NodeConfig under $HOME/.pangea.
type Manager struct {
	path   string
	config *NodeConfig
}

// NewManager builds a Manager for nodeID, falling back to the system
// temp directory if the home directory is unavailable or unwritable.
func NewManager(nodeID uint32) *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("⚠️  could not get user home directory: %v", err)
		homeDir = os.TempDir()
	}

	configDir := filepath.Join(homeDir, ".pangea")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Printf("⚠️  could not create config directory: %v", err)
		configDir = os.TempDir()
	}

	return &Manager{
		path:   filepath.Join(configDir, fmt.Sprintf("node_%d_config.json", nodeID)),
		config: &NodeConfig{NodeID: nodeID},
	}
}

// Load reads the config file, or returns the default (peer id only,
// no peers) if none exists yet.
func (m *Manager) Load() (*NodeConfig, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		log.Printf("📄 no existing config file found at %s, using defaults", m.path)
		return m.config, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}
	if err := json.Unmarshal(data, m.config); err != nil {
		return nil, fmt.Errorf("config: parse config file: %w", err)
	}

	log.Printf("✅ loaded configuration from %s (%d peers)", m.path, len(m.config.Peers))
	return m.config, nil
}

// Save writes cfg to disk as the node's current configuration.
func (m *Manager) Save(cfg *NodeConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	m.config = cfg
	log.Printf("✅ saved configuration to %s", m.path)
	return nil
}

// Validate checks the invariants the core assumes at startup: a
// non-empty peer list and an in-range node id. Configuration errors
// abort the process before the core begins; they are never recovered
// from inside the core.
func (cfg *NodeConfig) Validate() error {
	if len(cfg.Peers) == 0 {
		return fmt.Errorf("config: peer list is empty")
	}
	if int(cfg.NodeID) >= len(cfg.Peers) {
		return fmt.Errorf("config: node id %d out of range for %d peers", cfg.NodeID, len(cfg.Peers))
	}
	return nil
}
