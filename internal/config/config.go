package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HubConfig holds hub filing settings.
type HubConfig struct {
	Root       string `yaml:"root,omitempty"`
	OutputMode string `yaml:"output_mode"`
}

// PushConfig holds reminder push settings for the watch checker.
type PushConfig struct {
	Telegram bool   `yaml:"telegram"`
	Email    bool   `yaml:"email"`
	Dir      string `yaml:"dir,omitempty"`
}

// Config holds hubcap configuration.
type Config struct {
	Version string     `yaml:"version"`
	Hub     HubConfig  `yaml:"hub,omitempty"`
	Push    PushConfig `yaml:"push,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Hub: HubConfig{
			OutputMode: "json",
		},
		Push: PushConfig{
			Telegram: false,
			Email:    false,
		},
	}
}

// Store represents a loaded HUBCAP_HOME.
type Store struct {
	Home   string
	Config Config
}

// Issue represents a health check finding.
type Issue struct {
	Severity string // "warning" or "error"
	Message  string
}

// Home returns the HUBCAP_HOME path, respecting the HUBCAP_HOME env var.
func Home() string {
	if h := os.Getenv("HUBCAP_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hubcap")
	}
	return filepath.Join(home, ".hubcap")
}

// Init creates the HUBCAP_HOME directory structure.
func Init(home string, force bool) error {
	if _, err := os.Stat(home); err == nil && !force {
		return fmt.Errorf("HUBCAP_HOME already exists at %s (use --force to reinitialize)", home)
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", home, err)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Load reads an existing HUBCAP_HOME. Missing config fields are filled from
// defaults; a missing config file loads as pure defaults so capture works
// without an explicit init.
func Load(home string) (*Store, error) {
	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{Home: home, Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("cannot read HUBCAP_HOME config at %s: %w", cfgPath, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config.yaml: %w", err)
	}
	return &Store{Home: home, Config: cfg}, nil
}

// SaveConfig writes the current config to config.yaml.
func (s *Store) SaveConfig() error {
	if err := os.MkdirAll(s.Home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Home, err)
	}
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfgPath := filepath.Join(s.Home, "config.yaml")
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetConfigValue sets a config value by dot-path key (e.g. "hub.root").
func (s *Store) SetConfigValue(key, value string) error {
	switch key {
	case "hub.root":
		s.Config.Hub.Root = value
	case "hub.output_mode":
		mode := strings.ToLower(strings.TrimSpace(value))
		if mode != "json" && mode != "agent" {
			return fmt.Errorf("hub.output_mode must be json or agent")
		}
		s.Config.Hub.OutputMode = mode
	case "push.telegram":
		s.Config.Push.Telegram = value == "true"
	case "push.email":
		s.Config.Push.Email = value == "true"
	case "push.dir":
		s.Config.Push.Dir = value
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: hub.root, hub.output_mode, push.telegram, push.email, push.dir", key)
	}
	return s.SaveConfig()
}

// EnvBool reads a boolean environment toggle, falling back when unset.
func EnvBool(name string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	return raw == "1" || raw == "true" || raw == "yes" || raw == "on"
}

// PushDefaults resolves whether the watch sweep should push reminders when
// no --push flag is given, and over which channel. Env toggles win over the
// config file.
func (s *Store) PushDefaults() (enabled bool, channel string) {
	telegram := EnvBool("CAPTURE_WATCH_PUSH_TELEGRAM", s.Config.Push.Telegram)
	email := EnvBool("CAPTURE_WATCH_PUSH_EMAIL", s.Config.Push.Email)
	channel = "telegram"
	if email && !telegram {
		channel = "email"
	}
	return telegram || email, channel
}

// OutputMode resolves the effective output mode: OUTPUT_MODE env first, then
// config, then json.
func (s *Store) OutputMode() string {
	if mode := strings.ToLower(strings.TrimSpace(os.Getenv("OUTPUT_MODE"))); mode == "agent" || mode == "json" {
		return mode
	}
	if s.Config.Hub.OutputMode != "" {
		return s.Config.Hub.OutputMode
	}
	return "json"
}

// CheckHealth verifies HUBCAP_HOME and hub root integrity.
func CheckHealth(home, hubRoot string) []Issue {
	var issues []Issue

	cfgPath := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			issues = append(issues, Issue{"error", fmt.Sprintf("cannot read config.yaml: %v", err)})
		}
	} else {
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			issues = append(issues, Issue{"error", fmt.Sprintf("config.yaml is not valid YAML: %v", err)})
		}
	}

	for _, dir := range []string{"00_inbox", "02_work", "03_life", "04_knowledge", "05_meta"} {
		p := filepath.Join(hubRoot, dir)
		info, err := os.Stat(p)
		if err != nil {
			issues = append(issues, Issue{"warning", fmt.Sprintf("missing hub directory: %s", p)})
		} else if !info.IsDir() {
			issues = append(issues, Issue{"error", fmt.Sprintf("expected directory but found file: %s", p)})
		}
	}

	return issues
}
