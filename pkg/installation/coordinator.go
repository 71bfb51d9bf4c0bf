// Package installation tracks installation tasks. It serializes installs per
// package identity, retries transient failures and keeps task snapshots for
// concurrent callers.
package installation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/glorpus-work/plugd/internal/backoff"
	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/installer"
	"github.com/glorpus-work/plugd/pkg/metrics"
	"github.com/glorpus-work/plugd/pkg/model"
	"github.com/google/uuid"
)

// DefaultRetention is how long terminal tasks stay visible.
const DefaultRetention = 5 * time.Minute

// Runner performs one installation attempt.
type Runner interface {
	Run(ctx context.Context, v model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, v model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, v model.VersionDescriptor, onProgress installer.ProgressFunc) (installer.Result, error) {
	return f(ctx, v, onProgress)
}

// Options control retries and retention.
type Options struct {
	MaxAttempts int
	Backoff     backoff.Policy
	Retention   time.Duration
}

type taskEntry struct {
	task            model.InstallationTask
	identity        string
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
	evict           *time.Timer
}

// Coordinator owns all installation tasks. The task map is its only shared state
// and is guarded by mu.
type Coordinator struct {
	runner Runner
	opts   Options

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*taskEntry
	active map[string]string // identity -> task id
	closed bool
}

// NewCoordinator creates a coordinator running installations with runner.
func NewCoordinator(runner Runner, opts Options) *Coordinator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		runner:     runner,
		opts:       opts,
		baseCtx:    ctx,
		baseCancel: cancel,
		tasks:      make(map[string]*taskEntry),
		active:     make(map[string]string),
	}
}

// StartInstall registers a Pending task for v and starts it in the background.
// It fails with ErrAlreadyInstalling when a task for the same package identity is
// not yet terminal.
func (c *Coordinator) StartInstall(v model.VersionDescriptor) (string, error) {
	identity := v.Identity()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", errors.ErrClosed
	}
	if existing, ok := c.active[identity]; ok {
		return "", fmt.Errorf("%s (task %s): %w", v.PackageName, existing, errors.ErrAlreadyInstalling)
	}

	now := time.Now()
	ctx, cancel := context.WithCancel(c.baseCtx)
	entry := &taskEntry{
		task: model.InstallationTask{
			ID:            uuid.NewString(),
			PackageName:   v.PackageName,
			PackageID:     v.PackageID,
			Version:       v.Version,
			RepositoryURL: v.RepositoryURL,
			Status:        model.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		identity: identity,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.tasks[entry.task.ID] = entry
	c.active[identity] = entry.task.ID

	metrics.InstallStartedCount.WithLabelValues(v.PackageName).Inc()
	logger.Info("Installation started", logger.Fields{
		"task":    entry.task.ID,
		"package": v.PackageName,
		"version": v.Version,
	})

	c.wg.Add(1)
	go c.run(ctx, entry, v)

	return entry.task.ID, nil
}

func (c *Coordinator) run(ctx context.Context, entry *taskEntry, v model.VersionDescriptor) {
	defer c.wg.Done()
	defer entry.cancel()

	metrics.ActiveInstalls.Inc()
	defer metrics.ActiveInstalls.Dec()

	start := time.Now()
	id := entry.task.ID
	onProgress := func(status model.TaskStatus, percent float64) {
		c.progress(entry, status, percent)
	}

	var res installer.Result
	err := c.opts.Backoff.For(ctx, func(attempt int) error {
		c.mu.Lock()
		entry.task.Attempts = attempt
		c.mu.Unlock()

		var runErr error
		res, runErr = c.runner.Run(ctx, v, onProgress)
		if runErr == nil || ctx.Err() != nil || !errors.IsTransient(runErr) || attempt >= c.opts.MaxAttempts {
			return backoff.Permanent(runErr)
		}

		metrics.InstallRetryCount.WithLabelValues(v.PackageName).Inc()
		logger.Warn("Installation attempt failed, retrying", logger.Fields{
			"task":    id,
			"package": v.PackageName,
			"attempt": attempt,
			"backoff": c.opts.Backoff.String(),
			"error":   runErr.Error(),
		})
		return runErr
	})

	status := c.finish(entry, res, err)
	metrics.InstallResultCount.WithLabelValues(v.PackageName, string(status)).Inc()
	metrics.InstallTime.WithLabelValues(v.PackageName, string(status)).Observe(time.Since(start).Seconds())
}

func (c *Coordinator) progress(entry *taskEntry, status model.TaskStatus, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.task.Status.IsTerminal() {
		return
	}
	if !status.IsTerminal() && entry.task.Status != status {
		logger.Debugf("Task %s: %s -> %s", entry.task.ID, entry.task.Status, status)
		entry.task.Status = status
	}
	if percent > entry.task.Progress {
		entry.task.Progress = percent
	}
	entry.task.UpdatedAt = time.Now()
}

func (c *Coordinator) finish(entry *taskEntry, res installer.Result, err error) model.TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	t := &entry.task
	fields := logger.Fields{"task": t.ID, "package": t.PackageName, "version": t.Version}

	switch {
	case err == nil:
		t.Status = model.StatusCompleted
		t.Progress = 100
		t.InstallPath = res.InstallPath
		logger.Success("Installation completed", fields)
	case entry.cancelRequested || stderrors.Is(err, context.Canceled):
		t.Status = model.StatusCancelled
		logger.Info("Installation cancelled", fields)
	default:
		t.Status = model.StatusFailed
		t.Error = err.Error()
		fields["error"] = t.Error
		logger.Error("Installation failed", fields)
	}
	t.UpdatedAt = now
	t.CompletedAt = &now

	if c.active[entry.identity] == t.ID {
		delete(c.active, entry.identity)
	}
	close(entry.done)

	id := t.ID
	entry.evict = time.AfterFunc(c.opts.Retention, func() { c.evict(id) })

	return t.Status
}

func (c *Coordinator) evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.tasks[id]; ok && entry.task.Status.IsTerminal() {
		delete(c.tasks, id)
	}
}

// Cancel requests cancellation of a running task. The task becomes Cancelled once
// its attempt has cleaned up. Unknown and terminal tasks are ignored.
func (c *Coordinator) Cancel(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tasks[taskID]
	if !ok || entry.task.Status.IsTerminal() {
		return
	}
	entry.cancelRequested = true
	entry.cancel()
	logger.Debugf("Cancellation requested for task %s", taskID)
}

// GetStatus returns a snapshot of the task.
func (c *Coordinator) GetStatus(taskID string) (model.InstallationTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tasks[taskID]
	if !ok {
		return model.InstallationTask{}, fmt.Errorf("%s: %w", taskID, errors.ErrTaskNotFound)
	}
	return snapshot(entry), nil
}

// Wait blocks until the task is terminal or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, taskID string) (model.InstallationTask, error) {
	c.mu.Lock()
	entry, ok := c.tasks[taskID]
	c.mu.Unlock()
	if !ok {
		return model.InstallationTask{}, fmt.Errorf("%s: %w", taskID, errors.ErrTaskNotFound)
	}

	select {
	case <-entry.done:
	case <-ctx.Done():
		return model.InstallationTask{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(entry), nil
}

// List returns snapshots of all known tasks ordered by creation time.
func (c *Coordinator) List() []model.InstallationTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.InstallationTask, 0, len(c.tasks))
	for _, entry := range c.tasks {
		out = append(out, snapshot(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Acknowledge removes a terminal task right away. Active tasks return
// ErrTaskActive; unknown tasks are ignored.
func (c *Coordinator) Acknowledge(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tasks[taskID]
	if !ok {
		return nil
	}
	if !entry.task.Status.IsTerminal() {
		return fmt.Errorf("%s: %w", taskID, errors.ErrTaskActive)
	}
	if entry.evict != nil {
		entry.evict.Stop()
	}
	delete(c.tasks, taskID)
	return nil
}

// Close cancels all running tasks and waits for them to finish. Later calls to
// StartInstall fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, entry := range c.tasks {
		if !entry.task.Status.IsTerminal() {
			entry.cancelRequested = true
		}
	}
	c.mu.Unlock()

	c.baseCancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.tasks {
		if entry.evict != nil {
			entry.evict.Stop()
		}
	}
}

func snapshot(entry *taskEntry) model.InstallationTask {
	t := entry.task
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		t.CompletedAt = &completed
	}
	return t
}
