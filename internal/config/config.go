package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds keychainctl settings loaded from ~/.keychainctl/config.yaml.
type Config struct {
	SecurityPath      string `yaml:"security_path"`
	AuditLog          string `yaml:"audit_log"`
	MetadataPath      string `yaml:"metadata_path"`
	KeychainDir       string `yaml:"keychain_dir"`
	LogLevel          string `yaml:"log_level"`
	RememberPasswords bool   `yaml:"remember_passwords"`
}

// DefaultPath returns the default config file path: ~/.keychainctl/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".keychainctl", "config.yaml")
}

// Load reads a YAML config file from path. If the file does not exist,
// it returns an empty Config and no error. An empty or all-comment file
// also returns an empty Config with no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and expands a leading "~/" against home.
func (c *Config) ApplyDefaults(home string) {
	if c.SecurityPath == "" {
		c.SecurityPath = "/usr/bin/security"
	}
	if c.AuditLog == "" {
		c.AuditLog = "~/.keychainctl/audit.log"
	}
	if c.MetadataPath == "" {
		c.MetadataPath = "~/.keychainctl/metadata.json"
	}
	if c.KeychainDir == "" {
		c.KeychainDir = "~/Library/Keychains"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.AuditLog = expand(c.AuditLog, home)
	c.MetadataPath = expand(c.MetadataPath, home)
	c.KeychainDir = expand(c.KeychainDir, home)
	c.SecurityPath = expand(c.SecurityPath, home)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	return l, nil
}

func expand(p, home string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return p
}
