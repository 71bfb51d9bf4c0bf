//go:generate mockgen -destination=./mocks/installer_mock.go -package=mocks . Placer,Recorder

// Package installer runs one installation attempt: download, verify, unpack and
// place a package version into the install directory.
package installer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/glorpus-work/plugd/pkg/download"
	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/fsutil"
	"github.com/glorpus-work/plugd/pkg/model"
)

// Progress boundaries on the global 0-100 scale.
const (
	DownloadEnd = 80.0
	VerifyEnd   = 85.0
	ExtractEnd  = 100.0

	placedProgress = 95.0
)

// ProgressFunc receives the phase and the overall progress of an attempt.
type ProgressFunc func(status model.TaskStatus, percent float64)

// Placer puts a downloaded artifact into a directory.
type Placer interface {
	Place(ctx context.Context, path, destDir, fileName string) error
}

// Recorder persists installed packages.
type Recorder interface {
	Record(pkg model.InstalledPackage) error
	Find(identity string) (model.InstalledPackage, bool)
}

// Result describes a completed installation.
type Result struct {
	InstallPath string
	Size        int64
}

// Installer installs single package versions.
type Installer struct {
	DL         download.Downloader
	Archive    Placer
	DB         Recorder
	InstallDir string
	TempDir    string
}

// New creates an Installer.
func New(dl download.Downloader, placer Placer, db Recorder, installDir, tempDir string) *Installer {
	return &Installer{
		DL:         dl,
		Archive:    placer,
		DB:         db,
		InstallDir: installDir,
		TempDir:    tempDir,
	}
}

// Run performs one attempt. The temporary download and the staging directory are
// removed on every path; the final directory only changes when placement succeeds.
// When ctx is cancelled the returned error is ctx.Err().
func (i *Installer) Run(ctx context.Context, v model.VersionDescriptor, onProgress ProgressFunc) (Result, error) {
	report := func(status model.TaskStatus, percent float64) {
		if onProgress != nil {
			onProgress(status, percent)
		}
	}

	if v.SourceURL == "" {
		return Result{}, fmt.Errorf("%s has no source URL: %w", v.String(), errors.ErrValidation)
	}

	report(model.StatusDownloading, 0)
	res, err := i.DL.Download(ctx, download.Item{
		URL:  v.SourceURL,
		Dir:  i.TempDir,
		Name: v.PackageName,
		Size: v.Size,
	}, func(received, total int64) {
		if total <= 0 {
			return
		}
		percent := DownloadEnd * float64(received) / float64(total)
		report(model.StatusDownloading, min(percent, DownloadEnd))
	})
	if err != nil {
		return Result{}, i.abort(ctx, err)
	}
	defer func() { _ = os.Remove(res.Path) }()
	report(model.StatusDownloading, DownloadEnd)

	report(model.StatusVerifying, DownloadEnd)
	if v.Checksum == "" {
		logger.Warn("No checksum published, skipping verification", logger.Fields{
			"package": v.PackageName,
			"version": v.Version,
		})
	} else if err := download.Verify(res, v.Checksum); err != nil {
		return Result{}, fmt.Errorf("%s: %w", v.String(), err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	report(model.StatusVerifying, VerifyEnd)

	report(model.StatusExtracting, VerifyEnd)
	if err := fsutil.EnsureDir(i.InstallDir); err != nil {
		return Result{}, errors.Wrap(err, "could not create install directory")
	}
	staging, err := os.MkdirTemp(i.InstallDir, ".staging-*")
	if err != nil {
		return Result{}, errors.Wrap(err, "could not create staging directory")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := i.Archive.Place(ctx, res.Path, staging, ArtifactFileName(v)); err != nil {
		return Result{}, i.abort(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	report(model.StatusExtracting, placedProgress)

	final := filepath.Join(i.InstallDir, DirName(v.PackageName, v.PackageID))
	swap, err := fsutil.SwapDir(staging, final)
	if err != nil {
		return Result{}, errors.Wrapf(err, "could not place %s", v.String())
	}

	if i.DB != nil {
		previous, hadPrevious := i.DB.Find(v.Identity())
		err := i.DB.Record(model.InstalledPackage{
			Name:          v.PackageName,
			ID:            v.PackageID,
			Version:       v.Version,
			RepositoryURL: v.RepositoryURL,
			Checksum:      v.Checksum,
			Path:          final,
		})
		if err != nil {
			if rbErr := swap.Rollback(); rbErr != nil {
				logger.Error("Could not restore previous installation", logger.Fields{"path": final, "error": rbErr.Error()})
			}
			return Result{}, errors.Wrap(err, "could not record installed package")
		}
		if hadPrevious && previous.Path != "" && previous.Path != final {
			i.removeStale(previous.Path)
		}
	}
	swap.Commit()

	report(model.StatusCompleted, ExtractEnd)
	logger.Debug("Package placed", logger.Fields{"package": v.PackageName, "version": v.Version, "path": final})
	return Result{InstallPath: final, Size: res.Size}, nil
}

// removeStale deletes an earlier install directory of the same identity that
// lives under a different name. Paths outside the install root are left alone.
func (i *Installer) removeStale(dir string) {
	rel, err := filepath.Rel(i.InstallDir, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Could not remove previous installation", logger.Fields{"path": dir, "error": err.Error()})
	}
}

func (i *Installer) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// DirName returns the directory a package is installed into, relative to the
// install root. It is lower-cased so that every spelling of one identity maps
// to the same directory.
func DirName(name, id string) string {
	dir := sanitize(strings.ToLower(name))
	if id = strings.TrimSpace(id); id != "" {
		dir += "_" + sanitize(strings.ToLower(id))
	}
	return dir
}

// ArtifactFileName returns the file name for a non-archive artifact: the last
// element of the source URL path, or the package name.
func ArtifactFileName(v model.VersionDescriptor) string {
	if u := v.GetURL(); u != nil {
		base := path.Base(u.Path)
		if base != "" && base != "/" && base != "." && base != ".." {
			return sanitize(base)
		}
	}
	return sanitize(v.PackageName)
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "package"
	}
	return s
}
