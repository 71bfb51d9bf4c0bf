// Package config provides configuration management for plugd. It loads,
// validates and saves the YAML configuration file holding the repository list
// and engine settings, and exposes the repository list to the engine through
// Store.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/fsutil"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/platform"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Repository configuration
	Repositories []*RepositoryConfig `yaml:"repositories"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// Settings represents general application settings.
type Settings struct {
	// Installation settings
	InstallDir string `yaml:"install_dir,omitempty"`
	TempDir    string `yaml:"temp_dir,omitempty"`
	StateDir   string `yaml:"state_dir,omitempty"`

	// Network settings
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	StallTimeout time.Duration `yaml:"stall_timeout"`

	// Installation coordinator settings
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBackoffMs []int         `yaml:"retry_backoff_ms,flow"`
	TaskRetention  time.Duration `yaml:"task_retention"`

	// Server settings
	Listen string `yaml:"listen"`

	// Output settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	// Platform overrides the detected host. An empty ABI accepts every package.
	Platform platform.Host `yaml:"platform,omitempty"`
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the timeout for a whole artifact download request header exchange.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultFetchTimeout bounds one repository manifest fetch.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultStallTimeout aborts a download attempt that received no bytes for this long.
	DefaultStallTimeout = 30 * time.Second

	// DefaultMaxAttempts is how often a transient installation failure is tried.
	DefaultMaxAttempts = 3

	// DefaultTaskRetention is how long finished tasks stay visible.
	DefaultTaskRetention = 5 * time.Minute

	// DefaultListen is the address of the HTTP API.
	DefaultListen = "127.0.0.1:8096"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultRetryBackoffMs are the delays between installation attempts.
var DefaultRetryBackoffMs = []int{500, 1000, 2000}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir, err := fsutil.GetDataDir()
	if err != nil {
		dataDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}

	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings: Settings{
			InstallDir:     filepath.Join(dataDir, "plugins"),
			TempDir:        filepath.Join(dataDir, "tmp"),
			StateDir:       filepath.Join(dataDir, "state"),
			HTTPTimeout:    DefaultHTTPTimeout,
			FetchTimeout:   DefaultFetchTimeout,
			StallTimeout:   DefaultStallTimeout,
			MaxAttempts:    DefaultMaxAttempts,
			RetryBackoffMs: slices.Clone(DefaultRetryBackoffMs),
			TaskRetention:  DefaultTaskRetention,
			Listen:         DefaultListen,
			LogLevel:       "info",
			LogFormat:      "text",
			Platform: platform.Host{
				Platform: platform.CurrentPlatform(),
			},
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}

	return &config, nil
}

// SaveConfig atomically writes the configuration to path.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(absPath, data, fsutil.FileModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var sb strings.Builder
	encoder := yaml.NewEncoder(&sb)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(sb.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := ValidateRepositories(c.RepositoryInfos()); err != nil {
		return err
	}
	if err := validatePlatform(c.Settings.Platform); err != nil {
		return err
	}
	return validateSettings(c.Settings)
}

func validatePlatform(p platform.Host) error {
	if p.OS != "" && p.OS != platform.AnyOS && !slices.Contains(platform.ValidOS(), platform.NormalizeOS(p.OS)) {
		return fmt.Errorf("invalid OS value %q (valid: %s)", p.OS, strings.Join(platform.ValidOS(), ", "))
	}
	if p.Arch != "" && p.Arch != platform.AnyArch && !slices.Contains(platform.ValidArch(), platform.NormalizeArch(p.Arch)) {
		return fmt.Errorf("invalid architecture value %q (valid: %s)", p.Arch, strings.Join(platform.ValidArch(), ", "))
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.HTTPTimeout < 0 || s.FetchTimeout < 0 || s.StallTimeout < 0 || s.TaskRetention < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", s.MaxAttempts)
	}
	for _, ms := range s.RetryBackoffMs {
		if ms < 0 {
			return fmt.Errorf("retry_backoff_ms must not contain negative values")
		}
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(s.LogFormat)] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", s.LogLevel)
	}
	return nil
}

// ValidateRepositories checks a repository list: every entry needs an absolute
// http(s) URL and URLs must be unique, compared case-insensitively.
func ValidateRepositories(repos []model.RepositoryInfo) error {
	seen := make(map[string]bool, len(repos))
	for i, repo := range repos {
		raw := strings.TrimSpace(repo.URL)
		if raw == "" {
			return fmt.Errorf("repository %d: %w: empty", i, errors.ErrRepositoryURL)
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("repository %d: %w: %s", i, errors.ErrRepositoryURL, raw)
		}
		key := strings.ToLower(raw)
		if seen[key] {
			return fmt.Errorf("%w: %s", errors.ErrRepositoryDup, raw)
		}
		seen[key] = true
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	path, err := fsutil.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return path, nil
}

// GetDatabasePath returns the path to the installed packages database.
func (c *Config) GetDatabasePath() string {
	return filepath.Join(c.Settings.StateDir, "installed.json")
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.InstallDir == "" {
		c.Settings.InstallDir = defaults.Settings.InstallDir
	}
	if c.Settings.TempDir == "" {
		c.Settings.TempDir = defaults.Settings.TempDir
	}
	if c.Settings.StateDir == "" {
		c.Settings.StateDir = defaults.Settings.StateDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.FetchTimeout == 0 {
		c.Settings.FetchTimeout = defaults.Settings.FetchTimeout
	}
	if c.Settings.StallTimeout == 0 {
		c.Settings.StallTimeout = defaults.Settings.StallTimeout
	}
	if c.Settings.MaxAttempts == 0 {
		c.Settings.MaxAttempts = defaults.Settings.MaxAttempts
	}
	if len(c.Settings.RetryBackoffMs) == 0 {
		c.Settings.RetryBackoffMs = defaults.Settings.RetryBackoffMs
	}
	if c.Settings.TaskRetention == 0 {
		c.Settings.TaskRetention = defaults.Settings.TaskRetention
	}
	if c.Settings.Listen == "" {
		c.Settings.Listen = defaults.Settings.Listen
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
	if c.Settings.Platform.OS == "" {
		c.Settings.Platform.OS = defaults.Settings.Platform.OS
	}
	if c.Settings.Platform.Arch == "" {
		c.Settings.Platform.Arch = defaults.Settings.Platform.Arch
	}
	if c.Repositories == nil {
		c.Repositories = []*RepositoryConfig{}
	}
}
