package model

import "time"

// TaskStatus is the lifecycle state of an installation task.
type TaskStatus string

const (
	// StatusPending indicates the task was accepted but no work has started.
	StatusPending TaskStatus = "Pending"
	// StatusDownloading indicates the artifact is being transferred.
	StatusDownloading TaskStatus = "Downloading"
	// StatusVerifying indicates the downloaded artifact is being checked against its checksum.
	StatusVerifying TaskStatus = "Verifying"
	// StatusExtracting indicates the artifact is being unpacked into place.
	StatusExtracting TaskStatus = "Extracting"
	// StatusCompleted indicates the package was installed.
	StatusCompleted TaskStatus = "Completed"
	// StatusCancelled indicates the task was cancelled and its partial files removed.
	StatusCancelled TaskStatus = "Cancelled"
	// StatusFailed indicates the task gave up; Error carries the cause.
	StatusFailed TaskStatus = "Failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// InstallationTask is a snapshot of one installation attempt. Progress is a single
// 0-100 scale across all phases.
type InstallationTask struct {
	ID            string     `json:"id"`
	PackageName   string     `json:"name"`
	PackageID     string     `json:"guid,omitempty"`
	Version       string     `json:"version"`
	RepositoryURL string     `json:"repositoryUrl,omitempty"`
	Status        TaskStatus `json:"status"`
	Progress      float64    `json:"progress"`
	Error         string     `json:"error,omitempty"`
	Attempts      int        `json:"attempts"`
	InstallPath   string     `json:"installPath,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}
