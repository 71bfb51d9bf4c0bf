package packages

import (
	"path/filepath"

	"github.com/glorpus-work/plugd/internal/backoff"
	"github.com/glorpus-work/plugd/pkg/archive"
	"github.com/glorpus-work/plugd/pkg/config"
	"github.com/glorpus-work/plugd/pkg/database"
	"github.com/glorpus-work/plugd/pkg/download"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/index"
	"github.com/glorpus-work/plugd/pkg/installation"
	"github.com/glorpus-work/plugd/pkg/installer"
	"github.com/glorpus-work/plugd/pkg/repository"
)

// Open builds a Service from the configuration held by store: the HTTP manifest
// client, the installer with its downloader and installed database, and the
// installation coordinator. Call Close to stop running installations.
func Open(store *config.Store) (*Service, error) {
	settings := store.Settings()
	cfg := store.Config()

	dbPath, err := filepath.Abs(cfg.GetDatabasePath())
	if err != nil {
		return nil, errors.Wrap(err, "invalid state directory")
	}
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open installed database")
	}

	dl := download.NewManager(download.Options{
		HeaderTimeout: settings.HTTPTimeout,
		StallTimeout:  settings.StallTimeout,
	})
	inst := installer.New(dl, archive.NewManager(), db, settings.InstallDir, settings.TempDir)

	coordinator := installation.NewCoordinator(inst, installation.Options{
		MaxAttempts: settings.MaxAttempts,
		Backoff:     backoff.FromMillis(settings.RetryBackoffMs),
		Retention:   settings.TaskRetention,
	})

	aggregator := index.NewAggregator(repository.NewHTTPClient(settings.HTTPTimeout), settings.FetchTimeout)

	svc := NewService(store, aggregator, coordinator, db, settings.Platform)
	svc.closer = coordinator.Close
	return svc, nil
}
