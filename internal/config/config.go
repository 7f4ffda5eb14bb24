// Package config loads cmlsync's local configuration.
//
// The configuration file is optional and lives in the data directory:
//
//	~/.cmlsync/config.yaml        (user)
//	/var/lib/cmlsync/config.yaml  (root)
//
// User settings (server URL, account id, WiFi rule) are not configuration;
// they are part of the persisted application state.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap/zapcore"
)

const (
	// FileName is the configuration file name inside the data directory.
	FileName = "config.yaml"

	appDirName    = ".cmlsync"
	systemDataDir = "/var/lib/cmlsync"
)

// Config holds runtime tuning for the engine and CLI.
type Config struct {
	// DataDir holds the encrypted state database, its key and the legacy store.
	DataDir string `yaml:"data_dir"`

	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFile receives JSON logs from long-running commands. Empty logs to stderr.
	LogFile string `yaml:"log_file"`

	// HTTPTimeout bounds each request to the command server.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// DismissDelay is how long a finished call stays visible before it is cleared.
	DismissDelay time.Duration `yaml:"dismiss_delay"`

	// Workers limits how many operations run concurrently.
	Workers int `yaml:"workers"`

	// SSIDCommand prints the current WiFi network name.
	SSIDCommand []string `yaml:"ssid_command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     "info",
		HTTPTimeout:  30 * time.Second,
		DismissDelay: 10 * time.Second,
		Workers:      4,
		SSIDCommand:  []string{"iwgetid", "-r"},
	}
}

// DefaultDataDir returns /var/lib/cmlsync for root and ~/.cmlsync otherwise.
func DefaultDataDir() string {
	if os.Geteuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return systemDataDir
	}
	return filepath.Join(RealUserHome(), appDirName)
}

// RealUserHome returns the invoking user's home directory, even under sudo.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.DismissDelay <= 0 {
		return fmt.Errorf("dismiss_delay must be positive, got %s", c.DismissDelay)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.SSIDCommand) == 0 {
		return errors.New("ssid_command must not be empty")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}
