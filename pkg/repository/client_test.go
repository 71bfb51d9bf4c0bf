package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `[
  {
    "name": "Sub1",
    "guid": "a0b1c2d3-0000-0000-0000-000000000001",
    "description": "Subtitle provider",
    "owner": "plugd",
    "category": "Subtitles",
    "versions": [
      {"version": "1.0.0", "sourceUrl": "https://cdn.example.com/sub1-1.0.zip", "checksum": "d41d8cd98f00b204e9800998ecf8427e", "targetAbi": "10.8.0", "timestamp": "2024-01-02T03:04:05Z"},
      {"version": "1.2.0", "sourceUrl": "https://cdn.example.com/sub1-1.2.zip", "size": 1024}
    ]
  },
  {"name": "Other", "versions": []}
]`

func serveManifest(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchManifest(t *testing.T) {
	srv := serveManifest(t, http.StatusOK, validManifest)
	repo := model.RepositoryInfo{Name: "A", URL: srv.URL + "/manifest.json", Enabled: true}

	packages, err := NewHTTPClient(5*time.Second).FetchManifest(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, packages, 2)

	sub := packages[0]
	assert.Equal(t, "Sub1", sub.Name)
	assert.Equal(t, "a0b1c2d3-0000-0000-0000-000000000001", sub.ID)
	assert.Equal(t, "A", sub.RepositoryName)
	assert.Equal(t, repo.URL, sub.RepositoryURL)
	require.Len(t, sub.Versions, 2)

	v := sub.Versions[0]
	assert.Equal(t, "1.0.0", v.Version)
	assert.Equal(t, "10.8.0", v.TargetABI)
	assert.Equal(t, "Sub1", v.PackageName)
	assert.Equal(t, sub.ID, v.PackageID)
	assert.Equal(t, repo.URL, v.RepositoryURL)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), v.Timestamp.UTC())
	assert.Equal(t, int64(1024), sub.Versions[1].Size)

	assert.Equal(t, "Other", packages[1].Name)
	assert.Empty(t, packages[1].Versions)
}

func TestFetchManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: errors.ErrFetchFailed},
		{name: "not found", status: http.StatusNotFound, body: "", wantErr: errors.ErrFetchFailed},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: errors.ErrManifestInvalid},
		{name: "object instead of array", status: http.StatusOK, body: `{"name":"x"}`, wantErr: errors.ErrManifestInvalid},
		{name: "missing versions", status: http.StatusOK, body: `[{"name":"x"}]`, wantErr: errors.ErrManifestInvalid},
		{name: "missing source url", status: http.StatusOK, body: `[{"name":"x","versions":[{"version":"1.0"}]}]`, wantErr: errors.ErrManifestInvalid},
		{name: "malformed checksum", status: http.StatusOK, body: `[{"name":"x","versions":[{"version":"1.0","sourceUrl":"u","checksum":"zz"}]}]`, wantErr: errors.ErrManifestInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveManifest(t, tt.status, tt.body)
			_, err := NewHTTPClient(5*time.Second).FetchManifest(context.Background(), model.RepositoryInfo{URL: srv.URL})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetchManifest_ContextCanceled(t *testing.T) {
	srv := serveManifest(t, http.StatusOK, validManifest)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(0).FetchManifest(ctx, model.RepositoryInfo{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFetchFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseManifest_ReportsLocation(t *testing.T) {
	_, err := ParseManifest([]byte(`[{"name":"x","versions":[{"version":"1.0","sourceUrl":"u","size":-1}]}]`), model.RepositoryInfo{URL: "https://r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/0/versions/0/size")
}

func TestParseManifest_EmptyArray(t *testing.T) {
	packages, err := ParseManifest([]byte(`[]`), model.RepositoryInfo{URL: "https://r"})
	require.NoError(t, err)
	assert.NotNil(t, packages)
	assert.Empty(t, packages)
}
