package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/downscaler/internal/logger"
)

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/downscaler/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "downscaler", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Default()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("source", m.config.Source.Query).
		Int("profiles", len(m.config.Profiles)).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk. Fields missing from the file keep
// their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = []Profile{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.v = nil
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the configuration with the active profile applied.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Default()
	}

	cfg := *m.config
	cfg.Profiles = make([]Profile, len(m.config.Profiles))
	copy(cfg.Profiles, m.config.Profiles)

	if p := m.activeProfileLocked(); p != nil {
		cfg.ApplyProfile(*p)
	}
	return &cfg
}

func (m *Manager) activeProfileLocked() *Profile {
	if m.config == nil || m.config.ActiveProfileID == "" {
		return nil
	}
	for i := range m.config.Profiles {
		if m.config.Profiles[i].ID == m.config.ActiveProfileID {
			return &m.config.Profiles[i]
		}
	}
	return nil
}

// Save writes the configuration to disk. Pending viper edits are folded in
// first.
func (m *Manager) Save() error {
	log := logger.WithComponent("config")

	m.mu.Lock()
	if m.v != nil {
		var cfg Config
		if err := m.v.Unmarshal(&cfg); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to decode config: %w", err)
		}
		if cfg.Profiles == nil {
			cfg.Profiles = []Profile{}
		}
		m.config = &cfg
	}
	if m.config == nil {
		m.config = Default()
	}
	cfg := *m.config
	m.mu.Unlock()

	log.Debug().
		Str("path", m.configPath).
		Int("profile_count", len(cfg.Profiles)).
		Str("active_profile", cfg.ActiveProfileID).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	log.Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetViper returns a viper view of the configuration keyed by the
// mapstructure tags. Values set on it are persisted by the next Save.
func (m *Manager) GetViper() *viper.Viper {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.v != nil {
		return m.v
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if m.config != nil {
		if data, err := yaml.Marshal(m.config); err == nil {
			if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
				logger.WithComponent("config").Warn().Err(err).Msg("Failed to load config into viper")
			}
		}
	}
	m.v = v
	return v
}

// Set parses value according to the type currently stored under key,
// validates the result and saves it.
func (m *Manager) Set(key, value string) error {
	key = strings.ToLower(key)
	v := m.GetViper()
	if !v.IsSet(key) && !isKnownKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	var parsed interface{} = value
	switch v.Get(key).(type) {
	case int, int64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		parsed = n
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		parsed = f
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		parsed = b
	case nil:
		parsed = guessType(value)
	}

	prev := v.Get(key)
	v.Set(key, parsed)

	var candidate Config
	if err := v.Unmarshal(&candidate); err != nil {
		v.Set(key, prev)
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := candidate.Validate(); err != nil {
		v.Set(key, prev)
		return err
	}
	return m.Save()
}

// isKnownKey reports whether key names a scalar field that may be absent
// from the file because it was omitted as empty.
func isKnownKey(key string) bool {
	switch key {
	case "source.class",
		"scaling.mirror_width", "scaling.mirror_height", "scaling.factor",
		"scaling.downscale_width", "scaling.downscale_height":
		return true
	}
	return false
}

func guessType(value string) interface{} {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// SetSource records the last selected source so it survives restarts.
func (m *Manager) SetSource(src SourceConfig) error {
	m.mu.Lock()
	m.config.Source = src
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// SetScaling stores s on the active profile, or on the base configuration
// when no profile is active.
func (m *Manager) SetScaling(s ScalingConfig) error {
	candidate := Default()
	candidate.Scaling = s
	if err := candidate.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if p := m.activeProfileLocked(); p != nil {
		p.Scaling = s
	} else {
		m.config.Scaling = s
	}
	m.v = nil
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetActiveProfile switches to a different profile. An empty id clears the
// active profile.
func (m *Manager) SetActiveProfile(profileID string) error {
	m.mu.Lock()
	if profileID != "" && !m.profileIDExists(profileID) {
		m.mu.Unlock()
		return fmt.Errorf("profile not found: %s", profileID)
	}
	m.config.ActiveProfileID = profileID
	m.v = nil
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("profile_id", profileID).
		Msg("Switched to profile")
	return m.Save()
}

// ListProfiles returns all profiles
func (m *Manager) ListProfiles() []Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profiles := make([]Profile, len(m.config.Profiles))
	copy(profiles, m.config.Profiles)
	return profiles
}

// GetProfile returns a profile by ID
func (m *Manager) GetProfile(profileID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.config.Profiles {
		if m.config.Profiles[i].ID == profileID {
			p := m.config.Profiles[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile not found: %s", profileID)
}

// CreateProfile creates a new profile with the given name from the given
// source and scaling settings.
func (m *Manager) CreateProfile(name string, src SourceConfig, scaling ScalingConfig) (*Profile, error) {
	candidate := Default()
	candidate.Scaling = scaling
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	profile := Profile{
		ID:      m.generateProfileID(name),
		Name:    name,
		Source:  src,
		Scaling: scaling,
	}
	m.config.Profiles = append(m.config.Profiles, profile)
	m.v = nil
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("profile_id", profile.ID).
		Str("profile_name", name).
		Msg("Created new profile")

	if err := m.Save(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// DeleteProfile deletes a profile by ID
func (m *Manager) DeleteProfile(profileID string) error {
	m.mu.Lock()
	found := false
	filtered := make([]Profile, 0, len(m.config.Profiles))
	for _, p := range m.config.Profiles {
		if p.ID != profileID {
			filtered = append(filtered, p)
		} else {
			found = true
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("profile not found: %s", profileID)
	}

	m.config.Profiles = filtered
	if m.config.ActiveProfileID == profileID {
		m.config.ActiveProfileID = ""
	}
	m.v = nil
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("profile_id", profileID).
		Msg("Deleted profile")
	return m.Save()
}

// generateProfileID generates a unique profile ID from a name (caller must
// hold lock)
func (m *Manager) generateProfileID(name string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	var result strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	id := result.String()
	if id == "" {
		id = "profile"
	}

	originalID := id
	counter := 1
	for m.profileIDExists(id) {
		id = fmt.Sprintf("%s-%d", originalID, counter)
		counter++
	}
	return id
}

// profileIDExists checks if a profile ID already exists (caller must hold lock)
func (m *Manager) profileIDExists(id string) bool {
	for _, p := range m.config.Profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}
