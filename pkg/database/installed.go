// Package database provides a JSON-backed record of installed packages.
package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/fsutil"
	"github.com/glorpus-work/plugd/pkg/model"
)

// FormatVersion is written into every saved database.
const FormatVersion = "1"

// InstalledDB is the set of installed packages, keyed by package identity.
// Every mutation is persisted before it returns.
type InstalledDB struct {
	FormatVersion string                    `json:"format_version"`
	LastUpdate    time.Time                 `json:"last_update"`
	Packages      []*model.InstalledPackage `json:"packages"`

	path    string
	rwMutex sync.RWMutex
}

// NewInstalledDatabase creates an empty database saved to path. An empty path keeps
// the database in memory.
func NewInstalledDatabase(path string) *InstalledDB {
	return &InstalledDB{
		FormatVersion: FormatVersion,
		LastUpdate:    time.Now(),
		Packages:      make([]*model.InstalledPackage, 0),
		path:          path,
	}
}

// Open loads the database at path. A missing file yields an empty database.
func Open(path string) (*InstalledDB, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("database path must be absolute: %s: %w", path, errors.ErrInvalidPath)
	}

	db := NewInstalledDatabase(cleanPath)
	data, err := os.ReadFile(cleanPath)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database file: %w", err)
	}

	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("failed to parse database: %w", err)
	}
	if db.Packages == nil {
		db.Packages = make([]*model.InstalledPackage, 0)
	}
	return db, nil
}

// Path returns where the database is persisted.
func (db *InstalledDB) Path() string {
	return db.path
}

// Record adds or replaces the entry for pkg's identity and saves the database.
func (db *InstalledDB) Record(pkg model.InstalledPackage) error {
	db.rwMutex.Lock()
	defer db.rwMutex.Unlock()

	if pkg.InstalledAt.IsZero() {
		pkg.InstalledAt = time.Now()
	}

	replaced := false
	for i, existing := range db.Packages {
		if existing.Identity() == pkg.Identity() {
			db.Packages[i] = &pkg
			replaced = true
			break
		}
	}
	if !replaced {
		db.Packages = append(db.Packages, &pkg)
	}
	db.LastUpdate = time.Now()

	return db.saveLocked()
}

// Find returns a copy of the entry for identity.
func (db *InstalledDB) Find(identity string) (model.InstalledPackage, bool) {
	db.rwMutex.RLock()
	defer db.rwMutex.RUnlock()

	for _, pkg := range db.Packages {
		if pkg.Identity() == identity {
			return *pkg, true
		}
	}
	return model.InstalledPackage{}, false
}

// List returns copies of all entries sorted by name, optionally filtered by a
// case-insensitive substring of the name.
func (db *InstalledDB) List(nameFilter string) []model.InstalledPackage {
	db.rwMutex.RLock()
	defer db.rwMutex.RUnlock()

	nameFilter = strings.ToLower(nameFilter)
	out := make([]model.InstalledPackage, 0, len(db.Packages))
	for _, pkg := range db.Packages {
		if nameFilter != "" && !strings.Contains(strings.ToLower(pkg.Name), nameFilter) {
			continue
		}
		out = append(out, *pkg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func (db *InstalledDB) saveLocked() error {
	if db.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal database to JSON: %w", err)
	}
	if err := fsutil.WriteFileAtomic(db.path, data, fsutil.FileModeDefault); err != nil {
		return fmt.Errorf("failed to save database: %w", err)
	}
	return nil
}
