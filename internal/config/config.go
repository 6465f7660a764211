package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"boardedit/internal/security"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the per-project configuration directory.
const DefaultDir = ".boardedit"

// Config holds all boardedit configuration.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Commit   CommitConfig   `yaml:"commit"`
	Format   FormatConfig   `yaml:"format"`
	Security SecurityConfig `yaml:"security"`
	Journal  JournalConfig  `yaml:"journal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	IdleTimeout string `yaml:"idle_timeout"` // sessions idle longer than this expire
	MaxSessions int    `yaml:"max_sessions"` // 0 means unlimited
}

// CommitConfig configures the commit pipeline.
type CommitConfig struct {
	// TempPattern is passed to os.CreateTemp in the target directory.
	TempPattern           string `yaml:"temp_pattern"`
	DetectExternalChanges bool   `yaml:"detect_external_changes"`
	Fsync                 bool   `yaml:"fsync"`
}

// FormatConfig controls how inserted forms are laid out.
type FormatConfig struct {
	// Indent is used only when no sibling shows how to indent a new form.
	Indent string `yaml:"indent"`
}

// SecurityConfig configures the path gate.
type SecurityConfig struct {
	AllowedRoots      []string `yaml:"allowed_roots"`      // empty: any directory
	AllowedExtensions []string `yaml:"allowed_extensions"` // empty: the KiCad formats
}

// JournalConfig configures the commit history store.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			IdleTimeout: "30m",
			MaxSessions: 0,
		},
		Commit: CommitConfig{
			TempPattern:           ".boardedit-*.tmp",
			DetectExternalChanges: true,
			Fsync:                 true,
		},
		Format: FormatConfig{
			Indent: "  ",
		},
		Security: SecurityConfig{
			AllowedExtensions: append([]string(nil), security.DefaultExtensions...),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(DefaultDir, "journal.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the default path to .boardedit/config.yaml.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(DefaultDir, "config.yaml")
	}
	return filepath.Join(cwd, DefaultDir, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if the file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("BOARDEDIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("BOARDEDIT_JOURNAL"); path != "" {
		switch strings.ToLower(path) {
		case "off", "false", "0":
			c.Journal.Enabled = false
		default:
			c.Journal.Enabled = true
			c.Journal.Path = path
		}
	}
	if timeout := os.Getenv("BOARDEDIT_IDLE_TIMEOUT"); timeout != "" {
		c.Session.IdleTimeout = timeout
	}
}

// GetIdleTimeout returns the session idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Session.IdleTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// Gate builds the path gate described by the security section.
func (c *Config) Gate() (*security.RootGate, error) {
	return security.NewRootGate(c.Security.AllowedRoots, c.Security.AllowedExtensions)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Session.IdleTimeout)
	if err != nil {
		return fmt.Errorf("session.idle_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("session.idle_timeout must be positive, got %s", c.Session.IdleTimeout)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must be >= 0, got %d", c.Session.MaxSessions)
	}
	if c.Commit.TempPattern == "" || strings.ContainsAny(c.Commit.TempPattern, `/\`) {
		return fmt.Errorf("commit.temp_pattern must be a bare file name pattern, got %q", c.Commit.TempPattern)
	}
	if strings.Trim(c.Format.Indent, " \t") != "" {
		return fmt.Errorf("format.indent may only contain spaces and tabs, got %s", strconv.Quote(c.Format.Indent))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return c.Logging.Validate()
}
