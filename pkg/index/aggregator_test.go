package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/glorpus-work/plugd/pkg/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	repoA = model.RepositoryInfo{Name: "A", URL: "https://a.example.com/manifest.json", Enabled: true}
	repoB = model.RepositoryInfo{Name: "B", URL: "https://b.example.com/manifest.json", Enabled: true}
	repoC = model.RepositoryInfo{Name: "C", URL: "https://c.example.com/manifest.json", Enabled: false}
)

func pkgWithVersions(name, guid string, versions ...string) model.PackageDescriptor {
	p := model.PackageDescriptor{Name: name, ID: guid}
	for _, v := range versions {
		p.Versions = append(p.Versions, model.VersionDescriptor{Version: v, SourceURL: "https://cdn/" + name + "-" + v + ".zip"})
	}
	return p
}

func TestFetchAll_OrderAndStamping(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	// B answers first to prove the output does not depend on completion order.
	client.EXPECT().FetchManifest(gomock.Any(), repoA).DoAndReturn(
		func(ctx context.Context, _ model.RepositoryInfo) ([]model.PackageDescriptor, error) {
			time.Sleep(20 * time.Millisecond)
			return []model.PackageDescriptor{pkgWithVersions("Sub1", "", "1.0", "1.2"), pkgWithVersions("Other", "", "3.0")}, nil
		})
	client.EXPECT().FetchManifest(gomock.Any(), repoB).Return(
		[]model.PackageDescriptor{pkgWithVersions("Sub1", "", "1.1")}, nil)

	agg := NewAggregator(client, time.Second)
	packages, err := agg.FetchAll(context.Background(), []model.RepositoryInfo{repoA, repoB, repoC})
	require.NoError(t, err)
	require.Len(t, packages, 3)

	assert.Equal(t, "Sub1", packages[0].Name)
	assert.Equal(t, repoA.URL, packages[0].RepositoryURL)
	assert.Equal(t, "Other", packages[1].Name)
	assert.Equal(t, "Sub1", packages[2].Name)
	assert.Equal(t, repoB.URL, packages[2].RepositoryURL)
	assert.Equal(t, "B", packages[2].RepositoryName)

	for _, p := range packages {
		for _, v := range p.Versions {
			assert.Equal(t, p.Name, v.PackageName)
			assert.Equal(t, p.RepositoryURL, v.RepositoryURL)
		}
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().FetchManifest(gomock.Any(), repoA).Return(nil, fmt.Errorf("boom: %w", errors.ErrFetchFailed))
	client.EXPECT().FetchManifest(gomock.Any(), repoB).Return(
		[]model.PackageDescriptor{pkgWithVersions("Sub1", "", "1.1")}, nil)

	packages, err := NewAggregator(client, time.Second).FetchAll(context.Background(), []model.RepositoryInfo{repoA, repoB})
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, repoB.URL, packages[0].RepositoryURL)
}

func TestFetchAll_AllFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().FetchManifest(gomock.Any(), repoA).Return(nil, fmt.Errorf("a down: %w", errors.ErrFetchFailed))
	client.EXPECT().FetchManifest(gomock.Any(), repoB).Return(nil, fmt.Errorf("b broken: %w", errors.ErrManifestInvalid))

	packages, err := NewAggregator(client, time.Second).FetchAll(context.Background(), []model.RepositoryInfo{repoA, repoB})
	require.Error(t, err)
	assert.Nil(t, packages)
	assert.ErrorIs(t, err, errors.ErrAggregateFetch)
	assert.ErrorIs(t, err, errors.ErrFetchFailed)
	assert.ErrorIs(t, err, errors.ErrManifestInvalid)
	assert.Contains(t, err.Error(), repoA.URL)
	assert.Contains(t, err.Error(), repoB.URL)
}

func TestFetchAll_NoEnabledRepositories(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	packages, err := NewAggregator(client, time.Second).FetchAll(context.Background(), []model.RepositoryInfo{repoC})
	require.NoError(t, err)
	assert.NotNil(t, packages)
	assert.Empty(t, packages)

	packages, err = NewAggregator(client, time.Second).FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, packages)
}

func TestFetchAll_PerRepositoryTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().FetchManifest(gomock.Any(), repoA).DoAndReturn(
		func(ctx context.Context, _ model.RepositoryInfo) ([]model.PackageDescriptor, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("%w: %w", errors.ErrFetchFailed, ctx.Err())
		})
	client.EXPECT().FetchManifest(gomock.Any(), repoB).Return(
		[]model.PackageDescriptor{pkgWithVersions("Sub1", "", "1.1")}, nil)

	start := time.Now()
	packages, err := NewAggregator(client, 50*time.Millisecond).FetchAll(context.Background(), []model.RepositoryInfo{repoA, repoB})
	require.NoError(t, err)
	assert.Len(t, packages, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}
