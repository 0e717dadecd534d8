package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadFirstRun verifies that loading a missing config writes the
// embedded default file, fills defaults and persists a generated token.
func TestLoadFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if cfg.Port != 8766 {
		t.Fatalf("Port = %d, want 8766", cfg.Port)
	}
	if cfg.Shell != "/bin/bash" {
		t.Fatalf("Shell = %q, want /bin/bash", cfg.Shell)
	}
	if cfg.Token == "" {
		t.Fatal("Token not generated")
	}
	if len(cfg.Sessions) != 2 || len(cfg.Terminals) != 2 {
		t.Fatalf("layout = %d sessions / %d terminals, want 2/2", len(cfg.Sessions), len(cfg.Terminals))
	}
	if len(cfg.InitCommands) != 3 {
		t.Fatalf("InitCommands = %d entries, want 3", len(cfg.InitCommands))
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load() second call error = %v", err)
	}
	if again.Token != cfg.Token {
		t.Fatalf("Token = %q after reload, want %q", again.Token, cfg.Token)
	}
}

// TestLoadParsesOverrides verifies user-provided values win over defaults
// and that an explicit empty init_commands list disables the sequence.
func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `port: 9999
token: test-token
shell: /bin/sh
host_key: known-hosts
init_commands: []
sessions:
  - name: Lab
    init_commands:
      - echo lab
terminals:
  - name: Scratch
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.Token != "test-token" {
		t.Fatalf("Token = %q, want test-token", cfg.Token)
	}
	if cfg.HostKey != HostKeyKnownHosts {
		t.Fatalf("HostKey = %q, want %q", cfg.HostKey, HostKeyKnownHosts)
	}
	if len(cfg.InitCommands) != 0 {
		t.Fatalf("InitCommands = %v, want empty", cfg.InitCommands)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].Name != "Lab" {
		t.Fatalf("Sessions = %+v, want one named Lab", cfg.Sessions)
	}
	if len(cfg.Sessions[0].InitCommands) != 1 || cfg.Sessions[0].InitCommands[0] != "echo lab" {
		t.Fatalf("Sessions[0].InitCommands = %v, want the per-session override", cfg.Sessions[0].InitCommands)
	}
	if cfg.DBPath == "" {
		t.Fatal("DBPath default not applied")
	}
}

// TestValidateRejectsBadValues covers the layout and mode guards.
func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		c := &Config{ConfigPath: "/tmp/unused"}
		c.applyDefaults()
		return c
	}

	c := base()
	c.Port = 0
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() accepted port 0")
	}

	c = base()
	c.HostKey = "trust-everyone"
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() accepted unknown host_key mode")
	}

	c = base()
	c.Sessions = append(c.Sessions, SessionConfig{Name: "third"})
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() accepted three sessions")
	}

	c = base()
	c.Terminals = []TerminalConfig{}
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() accepted zero terminals")
	}
}
