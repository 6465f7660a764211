package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"boardedit/internal/security"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.GetIdleTimeout() != 30*time.Minute {
		t.Errorf("expected 30m idle timeout, got %s", cfg.GetIdleTimeout())
	}
	if !cfg.Commit.DetectExternalChanges || !cfg.Commit.Fsync {
		t.Error("commit safety checks should be on by default")
	}
	if len(cfg.Security.AllowedExtensions) != len(security.DefaultExtensions) {
		t.Errorf("expected default extensions, got %v", cfg.Security.AllowedExtensions)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, DefaultDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Session.IdleTimeout = "5m"
	cfg.Session.MaxSessions = 8
	cfg.Format.Indent = "\t"
	cfg.Security.AllowedRoots = []string{tmpDir}
	cfg.Logging.Categories = map[string]bool{"parse": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.GetIdleTimeout() != 5*time.Minute {
		t.Errorf("expected 5m, got %s", loaded.GetIdleTimeout())
	}
	if loaded.Session.MaxSessions != 8 {
		t.Errorf("expected MaxSessions=8, got %d", loaded.Session.MaxSessions)
	}
	if loaded.Format.Indent != "\t" {
		t.Errorf("expected tab indent, got %q", loaded.Format.Indent)
	}
	if loaded.Logging.IsCategoryEnabled("parse") || !loaded.Logging.IsCategoryEnabled("session") {
		t.Error("category toggles did not survive a round trip")
	}

	gate, err := loaded.Gate()
	if err != nil {
		t.Fatalf("Gate failed: %v", err)
	}
	if len(gate.Roots()) != 1 {
		t.Errorf("expected one root, got %v", gate.Roots())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Session.IdleTimeout != "30m" {
		t.Errorf("expected default idle timeout, got %s", cfg.Session.IdleTimeout)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session:\n  idle_timeout: 90s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetIdleTimeout() != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.GetIdleTimeout())
	}
	if cfg.Commit.TempPattern != ".boardedit-*.tmp" {
		t.Errorf("unset sections should keep defaults, got %q", cfg.Commit.TempPattern)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("session: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); err == nil {
		t.Error("expected validation error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad idle timeout", func(c *Config) { c.Session.IdleTimeout = "soon" }},
		{"zero idle timeout", func(c *Config) { c.Session.IdleTimeout = "0s" }},
		{"negative max sessions", func(c *Config) { c.Session.MaxSessions = -1 }},
		{"temp pattern with dir", func(c *Config) { c.Commit.TempPattern = "tmp/x-*" }},
		{"empty temp pattern", func(c *Config) { c.Commit.TempPattern = "" }},
		{"indent with text", func(c *Config) { c.Format.Indent = "xx" }},
		{"journal without path", func(c *Config) { c.Journal.Path = "" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoggingOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = "logs/boardedit.log"
	opts := cfg.Logging.Options()
	if opts.Level != "info" || opts.Format != "console" || opts.File != "logs/boardedit.log" {
		t.Errorf("unexpected options %+v", opts)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOARDEDIT_LOG_LEVEL", "")
	t.Setenv("BOARDEDIT_JOURNAL", "")
	t.Setenv("BOARDEDIT_IDLE_TIMEOUT", "")
}
