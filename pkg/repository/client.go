package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/model"
)

// maxManifestSize caps how much of a manifest body is read.
const maxManifestSize = 32 << 20

// HTTPClient fetches manifests over HTTP. The repository URL is the manifest URL.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient creates a manifest client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return NewHTTPClientWith(&http.Client{Timeout: timeout})
}

// NewHTTPClientWith wraps an existing *http.Client.
func NewHTTPClientWith(client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client, userAgent: "plugd/1.0"}
}

// FetchManifest downloads, validates and decodes the manifest of repo. Packages
// come back in manifest order with RepositoryName and RepositoryURL set.
func (hc *HTTPClient) FetchManifest(ctx context.Context, repo model.RepositoryInfo) ([]model.PackageDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repo.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrFetchFailed, repo.URL, err)
	}
	req.Header.Set("User-Agent", hc.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrFetchFailed, repo.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status code: %d", errors.ErrFetchFailed, repo.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response body: %w", errors.ErrFetchFailed, repo.URL, err)
	}

	return ParseManifest(data, repo)
}

// ParseManifest validates a manifest body and decodes it into package descriptors
// attributed to repo.
func ParseManifest(data []byte, repo model.RepositoryInfo) ([]model.PackageDescriptor, error) {
	if err := validateManifest(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrManifestInvalid, repo.URL, err)
	}

	var packages []model.PackageDescriptor
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errors.ErrManifestInvalid, repo.URL, err)
	}

	for i := range packages {
		packages[i].RepositoryName = repo.Name
		packages[i].RepositoryURL = repo.URL
		packages[i].Stamp()
	}
	if packages == nil {
		packages = []model.PackageDescriptor{}
	}
	return packages, nil
}
