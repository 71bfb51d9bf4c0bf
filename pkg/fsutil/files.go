package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Move moves a file or directory from src to dst.
// It first attempts os.Rename and falls back to copy + delete across file systems.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", src, err)
	}

	if err := EnsureFileDir(dst); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", dst, err)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossFilesystemError(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}

	if srcInfo.IsDir() {
		return moveDirectory(src, dst)
	}
	if err := Copy(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// DirSwap is a directory replacement that has been applied but not committed.
// The previous directory, if any, is kept aside until Commit or Rollback.
type DirSwap struct {
	final  string
	backup string
}

// SwapDir moves staging to final. An existing final directory is renamed aside
// first and restored if the move fails.
func SwapDir(staging, final string) (*DirSwap, error) {
	swap := &DirSwap{final: final}
	if _, err := os.Stat(final); err == nil {
		swap.backup = final + ".old"
		_ = os.RemoveAll(swap.backup)
		if err := os.Rename(final, swap.backup); err != nil {
			return nil, fmt.Errorf("failed to move previous installation aside: %w", err)
		}
	}

	if err := Move(staging, final); err != nil {
		if swap.backup != "" {
			_ = os.RemoveAll(final)
			_ = os.Rename(swap.backup, final)
		}
		return nil, err
	}
	return swap, nil
}

// Commit drops the previous directory.
func (s *DirSwap) Commit() {
	if s.backup != "" {
		_ = os.RemoveAll(s.backup)
	}
}

// Rollback removes the new directory and puts the previous one back.
func (s *DirSwap) Rollback() error {
	if err := os.RemoveAll(s.final); err != nil {
		return fmt.Errorf("failed to remove new installation: %w", err)
	}
	if s.backup == "" {
		return nil
	}
	if err := os.Rename(s.backup, s.final); err != nil {
		return fmt.Errorf("failed to restore previous installation: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureFileDir(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// isCrossFilesystemError reports whether an os.Rename error requires copy + delete.
func isCrossFilesystemError(err error) bool {
	if err == nil {
		return false
	}
	var linkError *os.LinkError
	if errors.As(err, &linkError) {
		if errno, ok := linkError.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "cross-device")
}

// moveDirectory handles moving a directory across file system boundaries.
func moveDirectory(src, dst string) error {
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		dstPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(dstPath, DirModeDefault)
		}

		if err := Copy(path, dstPath); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", path, err)
		}
		return os.Chmod(dstPath, info.Mode())
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("failed to remove source directory %s after copy: %w", src, err)
	}
	return nil
}

// Copy copies the contents of srcFile to dstFile.
func Copy(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer src.Close()

	dst, err := os.Create(dstFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy from %s to %s: %w", srcFile, dstFile, err)
	}
	return nil
}
