package cli

import (
	"fmt"
	"path/filepath"

	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/config"
	"github.com/glorpus-work/plugd/pkg/packages"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	LogLevel   *string
	LogFormat  *string
)

// configFilePath returns the --config value or the default location.
func configFilePath() (string, error) {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath, nil
	}
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get default config path: %w", err)
	}
	return path, nil
}

// loadStore loads the configuration file into a store and applies the logging
// settings, letting the global flags override the file.
func loadStore() (*config.Store, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	store, err := config.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	settings := store.Settings()
	level, format := settings.LogLevel, settings.LogFormat
	if LogLevel != nil && *LogLevel != "" {
		level = *LogLevel
	}
	if LogFormat != nil && *LogFormat != "" {
		format = *LogFormat
	}
	logger.InitLogger(level, logger.ParseFormat(format))

	return store, nil
}

// openService loads the configuration and builds the package service.
func openService() (*packages.Service, *config.Store, error) {
	store, err := loadStore()
	if err != nil {
		return nil, nil, err
	}
	svc, err := packages.Open(store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize package service: %w", err)
	}
	return svc, store, nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
