package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g.
// GAMESCOPE_DBUS_DISCOVERY_INTERVAL=5s.
const EnvPrefix = "GAMESCOPE_DBUS"

// SystemConfigDir is searched after the user's config directory.
const SystemConfigDir = "/etc/gamescope-dbus"

// Manager handles configuration
type Manager struct {
	v          *viper.Viper
	configPath string
	loaded     bool
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads configuration into v from configFile, or from the
// default search path when configFile is empty. A missing file is not an
// error; defaults and environment overrides still apply.
func NewManager(v *viper.Viper, configFile string) (*Manager, error) {
	m := &Manager{v: v}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		m.configPath = configFile
		v.SetConfigFile(configFile)
	} else {
		userDir, err := userConfigDir()
		if err != nil {
			return nil, err
		}
		m.configPath = filepath.Join(userDir, "config.yaml")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(userDir)
		v.AddConfigPath(SystemConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config file not found, using defaults")
	} else {
		m.configPath = v.ConfigFileUsed()
		m.loaded = true
	}

	if err := m.reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Bool("file", m.loaded).
		Msg("Config loaded")
	return m, nil
}

func userConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "gamescope-dbus"), nil
}

func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the effective configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// GetConfigPath returns the config file in use, or the file Save would
// create when none was found.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Loaded reports whether a config file was read.
func (m *Manager) Loaded() bool {
	return m.loaded
}

// Value returns a single key, e.g. "discovery.interval".
func (m *Manager) Value(key string) (any, error) {
	if !m.v.IsSet(key) {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return m.v.Get(key), nil
}

// Set changes a single key and saves the result.
func (m *Manager) Set(key, value string) error {
	if !m.v.IsSet(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	prev := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, prev)
		return err
	}
	return m.Save()
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config file")
		return fmt.Errorf("failed to write config: %w", err)
	}

	m.loaded = true
	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}
