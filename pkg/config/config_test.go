package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/fsutil"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, "text", cfg.Settings.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, 3, cfg.Settings.MaxAttempts)
	assert.Equal(t, []int{500, 1000, 2000}, cfg.Settings.RetryBackoffMs)
	assert.Equal(t, 5*time.Minute, cfg.Settings.TaskRetention)
	assert.NotEmpty(t, cfg.Settings.InstallDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `repositories:
  - name: main
    url: https://repo.example.com/manifest.json
  - name: beta
    url: https://beta.example.com/manifest.json
    enabled: false
settings:
  log_level: debug
  stall_timeout: 10s
  retry_backoff_ms: [10, 20]
  platform:
    os: linux
    arch: amd64
    abi: 10.8.0`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	repos := cfg.RepositoryInfos()
	require.Len(t, repos, 2)
	assert.Equal(t, "main", repos[0].Name)
	assert.True(t, repos[0].Enabled)
	assert.False(t, repos[1].Enabled)

	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Settings.StallTimeout)
	assert.Equal(t, []int{10, 20}, cfg.Settings.RetryBackoffMs)
	assert.Equal(t, "linux", cfg.Settings.Platform.OS)
	assert.Equal(t, "amd64", cfg.Settings.Platform.Arch)
	assert.Equal(t, "10.8.0", cfg.Settings.Platform.ABI)
	assert.Equal(t, DefaultFetchTimeout, cfg.Settings.FetchTimeout)
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Repositories)
	assert.Equal(t, DefaultMaxAttempts, cfg.Settings.MaxAttempts)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrEmptyConfigPath)
}

func TestLoadConfigFromReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "malformed yaml", content: "repositories: [", wantErr: errors.ErrConfigParse},
		{name: "bad url", content: "repositories:\n  - name: x\n    url: ftp://example.com\n", wantErr: errors.ErrConfigValidation},
		{name: "duplicate url", content: "repositories:\n  - url: https://a.example.com/m.json\n  - url: https://A.example.com/m.json\n", wantErr: errors.ErrConfigValidation},
		{name: "bad log level", content: "settings:\n  log_level: loud\n", wantErr: errors.ErrConfigValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "debug"
	cfg.Settings.Platform.ABI = "10.9.0"
	cfg.setRepositoryInfos([]model.RepositoryInfo{{Name: "main", URL: "https://repo.example.com/m.json", Enabled: false}})

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", loaded.Settings.LogLevel)
	assert.Equal(t, "10.9.0", loaded.Settings.Platform.ABI)
	assert.Equal(t, cfg.Settings.StallTimeout, loaded.Settings.StallTimeout)
	assert.Equal(t, cfg.RepositoryInfos(), loaded.RepositoryInfos())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid OS",
			mutate:  func(c *Config) { c.Settings.Platform.OS = "invalid-os" },
			wantErr: true,
			errMsg:  "invalid OS",
		},
		{
			name:    "invalid Arch",
			mutate:  func(c *Config) { c.Settings.Platform.Arch = "invalid-arch" },
			wantErr: true,
			errMsg:  "invalid architecture",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Settings.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "max_attempts",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Settings.RetryBackoffMs = []int{-1} },
			wantErr: true,
			errMsg:  "retry_backoff_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.StateDir = filepath.Join("var", "lib", "plugd")
	assert.Equal(t, filepath.Join("var", "lib", "plugd", "installed.json"), cfg.GetDatabasePath())
}
