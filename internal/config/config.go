package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/roboterm/configs"
)

const (
	HostKeyInsecureAutoAccept = "insecure-auto-accept"
	HostKeyKnownHosts         = "known-hosts"
)

type SessionConfig struct {
	Name string `yaml:"name"`
	// InitCommands overrides the global init_commands for this session.
	InitCommands []string `yaml:"init_commands,omitempty"`
}

type TerminalConfig struct {
	Name string `yaml:"name"`
}

type Config struct {
	Port                  int              `yaml:"port"`
	Token                 string           `yaml:"token"`
	Shell                 string           `yaml:"shell"`
	HostKey               string           `yaml:"host_key"`
	DBPath                string           `yaml:"db_path"`
	ConnectTimeoutSeconds int              `yaml:"connect_timeout_seconds"`
	InitDelayMS           int              `yaml:"init_delay_ms"`
	SaveDebounceMS        int              `yaml:"save_debounce_ms"`
	ReplayLines           int              `yaml:"replay_lines"`
	InitCommands          []string         `yaml:"init_commands"`
	Sessions              []SessionConfig  `yaml:"sessions"`
	Terminals             []TerminalConfig `yaml:"terminals"`

	ConfigPath string `yaml:"-"`
	PrintToken bool   `yaml:"-"`
}

func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "roboterm", "config.yaml"), nil
}

// Load reads the config file at path, writing the embedded default file
// first if none exists yet. An empty path means the default location.
// A missing token is generated and persisted back.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultFile(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{ConfigPath: path}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8766
	}
	if c.Shell == "" {
		c.Shell = "/bin/bash"
	}
	if c.HostKey == "" {
		c.HostKey = HostKeyInsecureAutoAccept
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(filepath.Dir(c.ConfigPath), "roboterm.db")
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 10
	}
	if c.InitDelayMS == 0 {
		c.InitDelayMS = 200
	}
	if c.SaveDebounceMS == 0 {
		c.SaveDebounceMS = 500
	}
	if c.ReplayLines == 0 {
		c.ReplayLines = 500
	}
	// nil means the key was absent; an explicit empty list disables the
	// init sequence.
	if c.InitCommands == nil {
		c.InitCommands = []string{
			"source ~/.bashrc",
			"echo 'Environment initialized'",
			"command -v ros2 >/dev/null 2>&1 && echo 'ROS2 detected: $ROS_DISTRO' || echo 'ROS2 not found'",
		}
	}
	if len(c.Sessions) == 0 {
		c.Sessions = []SessionConfig{{Name: "Robot Control"}, {Name: "ToF Control"}}
	}
	if len(c.Terminals) == 0 {
		c.Terminals = []TerminalConfig{{Name: "For ToF"}, {Name: "For Rviz"}}
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.HostKey != HostKeyInsecureAutoAccept && c.HostKey != HostKeyKnownHosts {
		return fmt.Errorf("invalid host_key mode %q", c.HostKey)
	}
	if n := len(c.Sessions); n < 1 || n > 2 {
		return fmt.Errorf("invalid session count %d: must be 1 or 2", n)
	}
	if n := len(c.Terminals); n < 1 || n > 2 {
		return fmt.Errorf("invalid terminal count %d: must be 1 or 2", n)
	}
	for i, s := range c.Sessions {
		if s.Name == "" {
			return fmt.Errorf("session %d has no name", i+1)
		}
	}
	for i, t := range c.Terminals {
		if t.Name == "" {
			return fmt.Errorf("terminal %d has no name", i+1)
		}
	}
	return nil
}

// Save writes the config back to its file. The file may hold the auth
// token, hence the restrictive mode.
func (c *Config) Save() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(c.ConfigPath, data, 0600)
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) InitDelay() time.Duration {
	return time.Duration(c.InitDelayMS) * time.Millisecond
}

func (c *Config) SaveDebounce() time.Duration {
	return time.Duration(c.SaveDebounceMS) * time.Millisecond
}

func writeDefaultFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, configs.DefaultConfig, 0600)
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
