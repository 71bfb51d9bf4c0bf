package config

import (
	"fmt"
	"slices"
	"sync"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/model"
)

// Store is the handle through which the engine reads and replaces the repository
// list. Writes are validated and persisted before they become visible.
type Store struct {
	mu     sync.RWMutex
	path   string
	config *Config
}

// NewStore wraps a loaded configuration. An empty path keeps changes in memory only.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{config: cfg, path: path}
}

// OpenStore loads the configuration at path and wraps it in a Store.
func OpenStore(path string) (*Store, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewStore(cfg, path), nil
}

// Settings returns a copy of the engine settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings := s.config.Settings
	settings.RetryBackoffMs = slices.Clone(settings.RetryBackoffMs)
	return settings
}

// Config returns the wrapped configuration. Callers must not modify repositories through it.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// GetRepositories returns the repositories in configuration order.
func (s *Store) GetRepositories() []model.RepositoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.RepositoryInfos()
}

// SetRepositories validates and persists a new repository list, replacing the current one.
// On error the previous list stays in place.
func (s *Store) SetRepositories(repos []model.RepositoryInfo) error {
	if err := ValidateRepositories(repos); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.config.Repositories
	s.config.setRepositoryInfos(repos)

	if s.path == "" {
		return nil
	}
	if err := s.config.SaveConfig(s.path); err != nil {
		s.config.Repositories = previous
		return err
	}
	return nil
}

// AddRepository appends a repository to the list.
func (s *Store) AddRepository(repo model.RepositoryInfo) error {
	repos := s.GetRepositories()
	for _, existing := range repos {
		if existing.Name != "" && existing.Name == repo.Name {
			return fmt.Errorf("%w: repository name %q already exists", errors.ErrValidation, repo.Name)
		}
	}
	return s.SetRepositories(append(repos, repo))
}

// RemoveRepository removes the repository matching nameOrURL.
func (s *Store) RemoveRepository(nameOrURL string) error {
	repos := s.GetRepositories()
	idx := findRepository(repos, nameOrURL)
	if idx < 0 {
		return fmt.Errorf("repository %s: %w", nameOrURL, errors.ErrNotFound)
	}
	return s.SetRepositories(slices.Delete(repos, idx, idx+1))
}

// EnableRepository enables or disables the repository matching nameOrURL.
func (s *Store) EnableRepository(nameOrURL string, enabled bool) error {
	repos := s.GetRepositories()
	idx := findRepository(repos, nameOrURL)
	if idx < 0 {
		return fmt.Errorf("repository %s: %w", nameOrURL, errors.ErrNotFound)
	}
	repos[idx].Enabled = enabled
	return s.SetRepositories(repos)
}

func findRepository(repos []model.RepositoryInfo, nameOrURL string) int {
	return slices.IndexFunc(repos, func(r model.RepositoryInfo) bool {
		return r.Name == nameOrURL || r.SameURL(nameOrURL)
	})
}
