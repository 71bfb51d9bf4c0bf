// Package packages is the boundary of the plugd engine. Service combines the
// repository store, the manifest aggregator, the resolver and the installation
// coordinator behind one API used by the HTTP server and the CLI.
package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/platform"
	"github.com/glorpus-work/plugd/pkg/resolve"
	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
)

// RepositoryStore reads and replaces the configured repositories.
type RepositoryStore interface {
	GetRepositories() []model.RepositoryInfo
	SetRepositories(repos []model.RepositoryInfo) error
}

// PackageSource returns the packages published by a set of repositories.
type PackageSource interface {
	FetchAll(ctx context.Context, repos []model.RepositoryInfo) ([]model.PackageDescriptor, error)
}

// Installations starts and tracks installation tasks.
type Installations interface {
	StartInstall(v model.VersionDescriptor) (string, error)
	Cancel(taskID string)
	GetStatus(taskID string) (model.InstallationTask, error)
	Wait(ctx context.Context, taskID string) (model.InstallationTask, error)
	List() []model.InstallationTask
	Acknowledge(taskID string) error
}

// InstalledLister lists installed packages.
type InstalledLister interface {
	List(nameFilter string) []model.InstalledPackage
}

// InstallRequest selects the package version to install. Only Name is required.
type InstallRequest struct {
	Name          string
	AssemblyGUID  string
	Version       string
	RepositoryURL string
}

// Service is the package management API.
type Service struct {
	store     RepositoryStore
	source    PackageSource
	tasks     Installations
	installed InstalledLister
	host      platform.Host
	closer    func()
}

// NewService creates a Service from its parts. installed may be nil.
func NewService(store RepositoryStore, source PackageSource, tasks Installations, installed InstalledLister, host platform.Host) *Service {
	return &Service{
		store:     store,
		source:    source,
		tasks:     tasks,
		installed: installed,
		host:      host,
	}
}

// Repositories returns the configured repositories.
func (s *Service) Repositories() []model.RepositoryInfo {
	return s.store.GetRepositories()
}

// SetRepositories replaces the configured repositories.
func (s *Service) SetRepositories(repos []model.RepositoryInfo) error {
	return s.store.SetRepositories(repos)
}

// AvailablePackages returns all packages published by the enabled repositories.
func (s *Service) AvailablePackages(ctx context.Context) ([]model.PackageDescriptor, error) {
	return s.source.FetchAll(ctx, s.store.GetRepositories())
}

// GetPackage returns the first available package matching name, or assemblyGUID
// when it is set.
func (s *Service) GetPackage(ctx context.Context, name, assemblyGUID string) (model.PackageDescriptor, error) {
	id, err := parseGUID(assemblyGUID)
	if err != nil {
		return model.PackageDescriptor{}, err
	}

	available, err := s.AvailablePackages(ctx)
	if err != nil {
		return model.PackageDescriptor{}, err
	}

	matches := resolve.FilterByIdentity(available, name, id)
	if len(matches) == 0 {
		return model.PackageDescriptor{}, errors.PackageNotFound(name)
	}
	return matches[0], nil
}

// Resolve selects the version an InstallRequest would install.
func (s *Service) Resolve(ctx context.Context, req InstallRequest) (model.VersionDescriptor, error) {
	id, err := parseGUID(req.AssemblyGUID)
	if err != nil {
		return model.VersionDescriptor{}, err
	}
	if req.Version != "" {
		if _, err := version.NewVersion(req.Version); err != nil {
			return model.VersionDescriptor{}, fmt.Errorf("%q: %w", req.Version, errors.ErrInvalidVersion)
		}
	}
	if strings.TrimSpace(req.Name) == "" && id == "" {
		return model.VersionDescriptor{}, fmt.Errorf("package name is required: %w", errors.ErrValidation)
	}

	available, err := s.AvailablePackages(ctx)
	if err != nil {
		return model.VersionDescriptor{}, err
	}
	available = resolve.FilterByRepository(available, req.RepositoryURL)

	versions := resolve.SelectCompatibleVersions(available, req.Name, id, req.Version, s.host)
	if len(versions) == 0 {
		return model.VersionDescriptor{}, errors.PackageNotFound(req.Name)
	}
	return versions[0], nil
}

// Install resolves req and starts the installation, returning the task id.
func (s *Service) Install(ctx context.Context, req InstallRequest) (string, error) {
	v, err := s.Resolve(ctx, req)
	if err != nil {
		return "", err
	}

	logger.Debug("Resolved install request", logger.Fields{
		"package":    v.PackageName,
		"version":    v.Version,
		"repository": v.RepositoryURL,
	})
	return s.tasks.StartInstall(v)
}

// InstallAndWait installs req and blocks until the task is terminal. When ctx is
// cancelled first, the task is cancelled and its final state returned along with
// ctx.Err().
func (s *Service) InstallAndWait(ctx context.Context, req InstallRequest) (model.InstallationTask, error) {
	id, err := s.Install(ctx, req)
	if err != nil {
		return model.InstallationTask{}, err
	}

	task, err := s.tasks.Wait(ctx, id)
	if err == nil {
		return task, nil
	}

	s.tasks.Cancel(id)
	task, waitErr := s.tasks.Wait(context.Background(), id)
	if waitErr != nil {
		return model.InstallationTask{}, waitErr
	}
	return task, err
}

// Cancel cancels an installation. Unknown or finished tasks are ignored.
func (s *Service) Cancel(taskID string) {
	s.tasks.Cancel(taskID)
}

// Status returns a snapshot of an installation task.
func (s *Service) Status(taskID string) (model.InstallationTask, error) {
	return s.tasks.GetStatus(taskID)
}

// Tasks returns snapshots of all known installation tasks.
func (s *Service) Tasks() []model.InstallationTask {
	return s.tasks.List()
}

// Acknowledge forgets a finished installation task.
func (s *Service) Acknowledge(taskID string) error {
	return s.tasks.Acknowledge(taskID)
}

// Installed lists installed packages whose name contains filter.
func (s *Service) Installed(filter string) []model.InstalledPackage {
	if s.installed == nil {
		return []model.InstalledPackage{}
	}
	return s.installed.List(filter)
}

// Close stops all running installations.
func (s *Service) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// parseGUID validates an optional assembly guid and returns it in canonical form.
func parseGUID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%q: %w", raw, errors.ErrInvalidGUID)
	}
	return parsed.String(), nil
}
