// Package errors defines the sentinel errors shared by the plugd engine and a few
// helpers for wrapping them with context. Callers classify failures with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// Common error types.
var (
	// Resolution errors.
	ErrNotFound       = fmt.Errorf("not found")
	ErrConflict       = fmt.Errorf("conflict")
	ErrValidation     = fmt.Errorf("validation failed")
	ErrInvalidVersion = fmt.Errorf("invalid version")
	ErrInvalidGUID    = fmt.Errorf("invalid package guid")

	// ErrAlreadyInstalling is returned when an installation for the same package
	// identity is still running.
	ErrAlreadyInstalling = fmt.Errorf("installation already in progress: %w", ErrConflict)

	// Repository errors.
	ErrFetchFailed     = fmt.Errorf("failed to fetch manifest")
	ErrManifestInvalid = fmt.Errorf("invalid manifest")
	ErrAggregateFetch  = fmt.Errorf("all repositories failed")
	ErrRepositoryURL   = fmt.Errorf("invalid repository URL")
	ErrRepositoryDup   = fmt.Errorf("duplicate repository URL")

	// Installation errors.
	ErrTransientIO    = fmt.Errorf("transient I/O failure")
	ErrStalled        = fmt.Errorf("download stalled: %w", ErrTransientIO)
	ErrIntegrity      = fmt.Errorf("integrity check failed")
	ErrDownloadFailed = fmt.Errorf("download failed")
	ErrInvalidPath    = fmt.Errorf("invalid path")
	ErrTaskNotFound   = fmt.Errorf("installation task not found: %w", ErrNotFound)
	ErrTaskActive     = fmt.Errorf("installation task is still active")
	ErrClosed         = fmt.Errorf("installation coordinator is closed")

	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
)

// PackageNotFound returns the error reported when no package or version satisfies a request.
func PackageNotFound(name string) error {
	return fmt.Errorf("Package not found: %s: %w", name, ErrNotFound) //nolint:staticcheck // user facing message
}

// IsTransient reports whether err should be retried by the installation coordinator.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
