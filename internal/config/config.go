// Package config provides configuration management for the relay.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
)

// DefaultPort is the relay's listening port when nothing overrides it.
const DefaultPort = 8765

// Config represents the application configuration.
type Config struct {
	// Port is the relay's listening port
	Port int `json:"port"`

	// DebounceMs is the tap debounce window in milliseconds
	DebounceMs int `json:"debounce_ms"`

	// BindingsPath points at an optional YAML bindings file replacing
	// the built-in action table
	BindingsPath string `json:"bindings_path,omitempty"`

	// LogLevel is a zerolog level string (debug, info, warn, ...)
	LogLevel string `json:"log_level"`

	// LogFormat is "pretty" for console output, "json" otherwise
	LogFormat string `json:"log_format"`

	// ManageFirewall ensures an inbound firewall rule for Port on
	// Windows at startup
	ManageFirewall bool `json:"manage_firewall"`

	// DisableTray runs the relay without a system tray icon
	DisableTray bool `json:"disable_tray"`
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:           DefaultPort,
		DebounceMs:     150,
		LogLevel:       "info",
		LogFormat:      "pretty",
		ManageFirewall: true,
	}
}

// Manager handles loading and saving configuration.
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
}

// NewManager creates a configuration manager backed by the platform
// config directory.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager backed by an explicit
// file path.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file.
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "whooshpad")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "whooshpad")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "whooshpad")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk. A missing file keeps the
// defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, m.config)
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set replaces the configuration.
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

// ApplyEnv overlays WHOOSHPAD_* environment variables onto the
// configuration. Call after Load; command-line flags still win.
func (m *Manager) ApplyEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := os.Getenv("WHOOSHPAD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			m.config.Port = port
		}
	}
	if v := os.Getenv("WHOOSHPAD_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			m.config.DebounceMs = ms
		}
	}
	if v := os.Getenv("WHOOSHPAD_BINDINGS"); v != "" {
		m.config.BindingsPath = v
	}
	if v := os.Getenv("WHOOSHPAD_LOG_LEVEL"); v != "" {
		m.config.LogLevel = v
	}
	if v := os.Getenv("WHOOSHPAD_LOG_FORMAT"); v != "" {
		m.config.LogFormat = v
	}
}
