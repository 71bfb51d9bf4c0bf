// Package fsutil provides file system helpers shared by the installer, the
// installed database and the configuration layer.
package fsutil

// Permissions for files and directories plugd creates.
const (
	FileModeDefault = 0o644
	DirModeDefault  = 0o755
)
