package installation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/plugd/internal/backoff"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/installer"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = Options{MaxAttempts: 3, Backoff: backoff.Policy{Millis: []int{1}}}

func sub1(version string) model.VersionDescriptor {
	return model.VersionDescriptor{
		Version:     version,
		SourceURL:   "https://repo.example/sub1.zip",
		PackageName: "Sub1",
	}
}

func waitTask(t *testing.T, c *Coordinator, id string) model.InstallationTask {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := c.Wait(ctx, id)
	require.NoError(t, err)
	return task
}

// blockingRunner reports some progress, then blocks until cancelled.
func blockingRunner(started chan<- struct{}) RunnerFunc {
	return func(ctx context.Context, _ model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error) {
		onProgress(model.StatusDownloading, 10)
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return installer.Result{}, ctx.Err()
	}
}

func TestCoordinator_Success(t *testing.T) {
	runner := RunnerFunc(func(_ context.Context, v model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error) {
		onProgress(model.StatusDownloading, 40)
		onProgress(model.StatusVerifying, 80)
		onProgress(model.StatusExtracting, 85)
		onProgress(model.StatusCompleted, 100)
		return installer.Result{InstallPath: "/plugins/" + v.PackageName}, nil
	})
	c := NewCoordinator(runner, fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.2"))
	require.NoError(t, err)

	task := waitTask(t, c, id)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "/plugins/Sub1", task.InstallPath)
	assert.Equal(t, "1.2", task.Version)
	assert.NotNil(t, task.CompletedAt)
	assert.Empty(t, task.Error)
}

func TestCoordinator_ConflictCreatesNoSecondTask(t *testing.T) {
	started := make(chan struct{}, 1)
	c := NewCoordinator(blockingRunner(started), fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.2"))
	require.NoError(t, err)
	<-started

	other := sub1("1.0")
	other.PackageName = "SUB1"
	_, err = c.StartInstall(other)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyInstalling)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Len(t, c.List(), 1)

	c.Cancel(id)
	task := waitTask(t, c, id)
	assert.Equal(t, model.StatusCancelled, task.Status)

	// identity is free again once the task is terminal
	started2 := make(chan struct{}, 1)
	c.runner = blockingRunner(started2)
	id2, err := c.StartInstall(other)
	require.NoError(t, err)
	<-started2
	c.Cancel(id2)
	waitTask(t, c, id2)
}

func TestCoordinator_IdentityPrefersGUID(t *testing.T) {
	started := make(chan struct{}, 2)
	c := NewCoordinator(blockingRunner(started), fastRetry)
	defer c.Close()

	a := sub1("1.0")
	a.PackageID = "AAAA"
	b := sub1("1.0")
	b.PackageID = "BBBB"

	_, err := c.StartInstall(a)
	require.NoError(t, err)
	_, err = c.StartInstall(b)
	require.NoError(t, err, "same name with a different guid is a different package")

	a.PackageID = "aaaa"
	_, err = c.StartInstall(a)
	assert.ErrorIs(t, err, errors.ErrAlreadyInstalling)
}

func TestCoordinator_CancelMidInstall(t *testing.T) {
	started := make(chan struct{}, 1)
	c := NewCoordinator(blockingRunner(started), fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.2"))
	require.NoError(t, err)
	<-started

	status, err := c.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDownloading, status.Status)

	c.Cancel(id)
	task := waitTask(t, c, id)
	assert.Equal(t, model.StatusCancelled, task.Status)
	assert.Empty(t, task.Error)
	assert.Equal(t, 1, task.Attempts)
}

func TestCoordinator_CancelAfterCompletionIsNoop(t *testing.T) {
	runner := RunnerFunc(func(context.Context, model.VersionDescriptor, installer.ProgressFunc) (installer.Result, error) {
		return installer.Result{InstallPath: "/p"}, nil
	})
	c := NewCoordinator(runner, fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)
	before := waitTask(t, c, id)

	c.Cancel(id)
	c.Cancel("unknown-task")

	after, err := c.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, after.Status)
	assert.Equal(t, before, after)
}

func TestCoordinator_Retry(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantStatus   model.TaskStatus
		wantAttempts int32
	}{
		{
			name:         "transient then success",
			errs:         []error{errors.ErrTransientIO, errors.ErrStalled, nil},
			wantStatus:   model.StatusCompleted,
			wantAttempts: 3,
		},
		{
			name:         "transient exhausts attempts",
			errs:         []error{errors.ErrTransientIO, errors.ErrTransientIO, errors.ErrTransientIO, nil},
			wantStatus:   model.StatusFailed,
			wantAttempts: 3,
		},
		{
			name:         "integrity failure is not retried",
			errs:         []error{fmt.Errorf("sha256 mismatch: %w", errors.ErrIntegrity), nil},
			wantStatus:   model.StatusFailed,
			wantAttempts: 1,
		},
		{
			name:         "permanent download failure is not retried",
			errs:         []error{fmt.Errorf("status 404: %w", errors.ErrDownloadFailed), nil},
			wantStatus:   model.StatusFailed,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			runner := RunnerFunc(func(context.Context, model.VersionDescriptor, installer.ProgressFunc) (installer.Result, error) {
				n := calls.Add(1)
				return installer.Result{}, tt.errs[n-1]
			})
			c := NewCoordinator(runner, fastRetry)
			defer c.Close()

			id, err := c.StartInstall(sub1("1.0"))
			require.NoError(t, err)

			task := waitTask(t, c, id)
			assert.Equal(t, tt.wantStatus, task.Status)
			assert.Equal(t, tt.wantAttempts, calls.Load())
			assert.Equal(t, int(tt.wantAttempts), task.Attempts)
			if tt.wantStatus == model.StatusFailed {
				assert.Equal(t, tt.errs[tt.wantAttempts-1].Error(), task.Error)
			}
		})
	}
}

func TestCoordinator_CancelDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	failed := make(chan struct{}, 1)
	runner := RunnerFunc(func(context.Context, model.VersionDescriptor, installer.ProgressFunc) (installer.Result, error) {
		calls.Add(1)
		failed <- struct{}{}
		return installer.Result{}, errors.ErrTransientIO
	})
	c := NewCoordinator(runner, Options{MaxAttempts: 3, Backoff: backoff.Policy{Millis: []int{60_000}}})
	defer c.Close()

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)
	<-failed

	c.Cancel(id)
	task := waitTask(t, c, id)
	assert.Equal(t, model.StatusCancelled, task.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoordinator_ProgressNeverDecreases(t *testing.T) {
	paused := make(chan struct{})
	resume := make(chan struct{})
	var calls atomic.Int32
	runner := RunnerFunc(func(_ context.Context, _ model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error) {
		if calls.Add(1) == 1 {
			onProgress(model.StatusDownloading, 50)
			return installer.Result{}, errors.ErrTransientIO
		}
		onProgress(model.StatusDownloading, 10)
		close(paused)
		<-resume
		onProgress(model.StatusDownloading, 60)
		return installer.Result{}, nil
	})
	c := NewCoordinator(runner, fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)

	<-paused
	task, err := c.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 50.0, task.Progress)
	assert.Equal(t, 2, task.Attempts)
	close(resume)

	task = waitTask(t, c, id)
	assert.Equal(t, 100.0, task.Progress)
}

func TestCoordinator_Retention(t *testing.T) {
	runner := RunnerFunc(func(context.Context, model.VersionDescriptor, installer.ProgressFunc) (installer.Result, error) {
		return installer.Result{}, nil
	})
	c := NewCoordinator(runner, Options{MaxAttempts: 1, Retention: 20 * time.Millisecond})
	defer c.Close()

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)
	waitTask(t, c, id)

	assert.Eventually(t, func() bool {
		_, err := c.GetStatus(id)
		return stderrors.Is(err, errors.ErrTaskNotFound)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, c.List())
}

func TestCoordinator_Acknowledge(t *testing.T) {
	started := make(chan struct{}, 1)
	c := NewCoordinator(blockingRunner(started), fastRetry)
	defer c.Close()

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)
	<-started

	assert.ErrorIs(t, c.Acknowledge(id), errors.ErrTaskActive)
	assert.NoError(t, c.Acknowledge("unknown"))

	c.Cancel(id)
	waitTask(t, c, id)

	require.NoError(t, c.Acknowledge(id))
	_, err = c.GetStatus(id)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestCoordinator_ListOrdered(t *testing.T) {
	started := make(chan struct{}, 3)
	c := NewCoordinator(blockingRunner(started), fastRetry)
	defer c.Close()

	var ids []string
	for _, name := range []string{"A", "B", "C"} {
		v := sub1("1.0")
		v.PackageName = name
		id, err := c.StartInstall(v)
		require.NoError(t, err)
		ids = append(ids, id)
		<-started
	}

	list := c.List()
	require.Len(t, list, 3)
	for i, task := range list {
		assert.Equal(t, ids[i], task.ID)
	}
}

func TestCoordinator_Close(t *testing.T) {
	started := make(chan struct{}, 1)
	c := NewCoordinator(blockingRunner(started), fastRetry)

	id, err := c.StartInstall(sub1("1.0"))
	require.NoError(t, err)
	<-started

	c.Close()

	task, err := c.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, task.Status)

	_, err = c.StartInstall(sub1("1.0"))
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestCoordinator_GetStatusUnknown(t *testing.T) {
	c := NewCoordinator(blockingRunner(nil), fastRetry)
	defer c.Close()

	_, err := c.GetStatus("missing")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = c.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}
