package config

import (
	"net/url"
	"strings"

	"github.com/glorpus-work/plugd/pkg/model"
)

// RepositoryConfig represents a single repository entry in the config file.
// Enabled defaults to true when omitted.
type RepositoryConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the repository takes part in package listing.
func (rc *RepositoryConfig) IsEnabled() bool {
	return rc.Enabled == nil || *rc.Enabled
}

// GetURL parses and returns the repository URL.
func (rc *RepositoryConfig) GetURL() *url.URL {
	parse, err := url.Parse(rc.URL)
	if err != nil {
		return nil
	}
	return parse
}

// Info converts the entry to the engine representation.
func (rc *RepositoryConfig) Info() model.RepositoryInfo {
	return model.RepositoryInfo{
		Name:    rc.Name,
		URL:     strings.TrimSpace(rc.URL),
		Enabled: rc.IsEnabled(),
	}
}

// RepositoryInfos returns the configured repositories in configuration order.
func (c *Config) RepositoryInfos() []model.RepositoryInfo {
	infos := make([]model.RepositoryInfo, 0, len(c.Repositories))
	for _, repo := range c.Repositories {
		if repo == nil {
			continue
		}
		infos = append(infos, repo.Info())
	}
	return infos
}

func (c *Config) setRepositoryInfos(repos []model.RepositoryInfo) {
	c.Repositories = make([]*RepositoryConfig, 0, len(repos))
	for _, repo := range repos {
		enabled := repo.Enabled
		c.Repositories = append(c.Repositories, &RepositoryConfig{
			Name:    repo.Name,
			URL:     strings.TrimSpace(repo.URL),
			Enabled: &enabled,
		})
	}
}
