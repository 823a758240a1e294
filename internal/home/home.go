// Package home manages the folio home directory.
//
// Layout:
//
//	~/.folio/
//	  config.yaml
//	  blobs.db      revision and original bodies
//	  defradb/      DefraDB container data
//	  exports/      text written by `folio clean --out-dir`
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// BlobFileName is the SQLite file holding bodies.
	BlobFileName = "blobs.db"

	// DefraDirName is the subdirectory bound into the DefraDB container.
	DefraDirName = "defradb"

	// ExportsDirName is the subdirectory for exported text.
	ExportsDirName = "exports"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// BlobPath returns the path to the blob database. override wins when set.
func (d *Dir) BlobPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(d.path, BlobFileName)
}

// DefraPath returns the DefraDB data directory. override wins when set.
func (d *Dir) DefraPath(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(d.path, DefraDirName)
}

// ExportsDir returns the directory for exported files.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, ExportsDirName)
}

// EnsureExists creates the home directory and the DefraDB data directory.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DefraPath(""), 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
