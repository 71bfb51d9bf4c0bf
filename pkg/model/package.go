// Package model provides the data structures shared by the plugd engine:
// repositories, published package descriptors, installation tasks and
// installed package records.
package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/glorpus-work/plugd/pkg/platform"
	"github.com/hashicorp/go-version"
)

// RepositoryInfo is one configured package repository. Its identity is the URL.
type RepositoryInfo struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// SameURL reports whether the repository is identified by the given URL.
func (r RepositoryInfo) SameURL(u string) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL), strings.TrimSpace(u))
}

// PackageDescriptor is a package as published by one repository manifest.
type PackageDescriptor struct {
	Name           string              `json:"name"`
	ID             string              `json:"guid"`
	Description    string              `json:"description,omitempty"`
	Overview       string              `json:"overview,omitempty"`
	Owner          string              `json:"owner,omitempty"`
	Category       string              `json:"category,omitempty"`
	RepositoryName string              `json:"repositoryName,omitempty"`
	RepositoryURL  string              `json:"repositoryUrl,omitempty"`
	Versions       []VersionDescriptor `json:"versions"`
}

// VersionDescriptor is one downloadable version of a package. PackageName,
// PackageID and RepositoryURL point back at the owning package so that the
// descriptor alone is enough to start an installation.
type VersionDescriptor struct {
	Version       string    `json:"version"`
	TargetABI     string    `json:"targetAbi,omitempty"`
	OS            string    `json:"os,omitempty"`
	Arch          string    `json:"arch,omitempty"`
	SourceURL     string    `json:"sourceUrl"`
	Checksum      string    `json:"checksum,omitempty"`
	Size          int64     `json:"size,omitempty"`
	Changelog     string    `json:"changelog,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	PackageName   string    `json:"packageName,omitempty"`
	PackageID     string    `json:"packageGuid,omitempty"`
	RepositoryURL string    `json:"repositoryUrl,omitempty"`
}

// IdentityKey returns the key used to serialize installations of the same package:
// the guid when published, the lower-cased name otherwise.
func IdentityKey(name, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return strings.ToLower(id)
	}
	return "name:" + strings.ToLower(strings.TrimSpace(name))
}

// Identity returns the serialization key of the package owning this version.
func (v *VersionDescriptor) Identity() string {
	return IdentityKey(v.PackageName, v.PackageID)
}

// String returns name@version.
func (v *VersionDescriptor) String() string {
	return v.PackageName + "@" + v.Version
}

// GetVersion returns the parsed version, or nil when it cannot be parsed.
func (v *VersionDescriptor) GetVersion() *version.Version {
	parsed, err := version.NewVersion(v.Version)
	if err != nil {
		return nil
	}
	return parsed
}

// CompatibleWith reports whether the host can run this version.
func (v *VersionDescriptor) CompatibleWith(host platform.Host) bool {
	return host.Supports(v.OS, v.Arch, v.TargetABI)
}

// GetURL returns the parsed source URL of this version.
func (v *VersionDescriptor) GetURL() *url.URL {
	parsed, err := url.Parse(v.SourceURL)
	if err != nil {
		return nil
	}
	return parsed
}

// Stamp copies the owning package identity onto every version.
func (p *PackageDescriptor) Stamp() {
	for i := range p.Versions {
		p.Versions[i].PackageName = p.Name
		p.Versions[i].PackageID = p.ID
		p.Versions[i].RepositoryURL = p.RepositoryURL
	}
}

// Identity returns the serialization key of the package.
func (p *PackageDescriptor) Identity() string {
	return IdentityKey(p.Name, p.ID)
}

// InstalledPackage records a package placed in the install directory.
type InstalledPackage struct {
	Name          string    `json:"name"`
	ID            string    `json:"guid,omitempty"`
	Version       string    `json:"version"`
	RepositoryURL string    `json:"repositoryUrl,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
	Path          string    `json:"path"`
	InstalledAt   time.Time `json:"installedAt"`
}

// Identity returns the serialization key of the installed package.
func (p *InstalledPackage) Identity() string {
	return IdentityKey(p.Name, p.ID)
}
