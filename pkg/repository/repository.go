//go:generate mockgen -destination=./mocks/client_mock.go -package=mocks . Client

// Package repository fetches and validates the package manifest published by a
// configured repository.
package repository

import (
	"context"

	"github.com/glorpus-work/plugd/pkg/model"
)

// Client fetches the package list of one repository.
type Client interface {
	FetchManifest(ctx context.Context, repo model.RepositoryInfo) ([]model.PackageDescriptor, error)
}
