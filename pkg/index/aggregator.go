// Package index aggregates the manifests of all enabled repositories into one
// ordered package list.
package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/metrics"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/repository"
	"github.com/hashicorp/go-multierror"
)

// Aggregator fetches repository manifests concurrently.
type Aggregator struct {
	client       repository.Client
	fetchTimeout time.Duration
}

// NewAggregator creates an aggregator. fetchTimeout bounds each repository fetch;
// zero disables the per-repository limit.
func NewAggregator(client repository.Client, fetchTimeout time.Duration) *Aggregator {
	return &Aggregator{client: client, fetchTimeout: fetchTimeout}
}

type fetchResult struct {
	packages []model.PackageDescriptor
	err      error
}

// FetchAll fetches every enabled repository and concatenates the results in
// repository order, keeping manifest order within a repository. Packages with
// the same identity from different repositories are all kept.
//
// A failing repository is logged and skipped. The call fails with
// ErrAggregateFetch only when every enabled repository failed. No enabled
// repositories yields an empty list and no error.
func (a *Aggregator) FetchAll(ctx context.Context, repos []model.RepositoryInfo) ([]model.PackageDescriptor, error) {
	enabled := make([]model.RepositoryInfo, 0, len(repos))
	for _, repo := range repos {
		if repo.Enabled {
			enabled = append(enabled, repo)
		}
	}
	if len(enabled) == 0 {
		return []model.PackageDescriptor{}, nil
	}

	results := make([]fetchResult, len(enabled))
	var wg sync.WaitGroup
	for i, repo := range enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, repo)
		}()
	}
	wg.Wait()

	var merr *multierror.Error
	packages := make([]model.PackageDescriptor, 0)
	for i, res := range results {
		if res.err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", enabled[i].URL, res.err))
			continue
		}
		packages = append(packages, res.packages...)
	}

	if merr != nil && len(merr.Errors) == len(enabled) {
		return nil, fmt.Errorf("%w: %w", errors.ErrAggregateFetch, merr.ErrorOrNil())
	}
	return packages, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, repo model.RepositoryInfo) fetchResult {
	fetchCtx := ctx
	if a.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	packages, err := a.client.FetchManifest(fetchCtx, repo)
	metrics.ManifestFetchTime.WithLabelValues(repo.URL).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ManifestFetchFailureCount.WithLabelValues(repo.URL).Inc()
		logger.Warn("Repository fetch failed", logger.Fields{
			"repository": repo.Name,
			"url":        repo.URL,
			"error":      err.Error(),
		})
		return fetchResult{err: err}
	}

	for i := range packages {
		packages[i].RepositoryName = repo.Name
		packages[i].RepositoryURL = repo.URL
		packages[i].Stamp()
	}

	logger.Debug("Repository fetched", logger.Fields{
		"repository": repo.Name,
		"packages":   len(packages),
	})
	return fetchResult{packages: packages}
}
