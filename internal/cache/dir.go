package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// manifestFileName is the manifest file name inside every cache entry and
// every actor source tree, per the runtime configuration file format.
const manifestFileName = "Wasmind.toml"

// componentFileName is the built sandbox component artifact file name inside
// every cache entry.
const componentFileName = "component.wasm"

// Directory manages the on-disk layout of the content-addressed cache: one
// subdirectory per SHA-256 hash, each containing a manifest file and a built
// component artifact.
type Directory struct {
	root string
}

// NewDirectory returns a Directory rooted at the given path, creating it if
// necessary.
func NewDirectory(root string) (*Directory, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache root %s: %w", root, err)
	}

	return &Directory{root: root}, nil
}

// EntryDir returns the subdirectory for the given content hash.
func (d *Directory) EntryDir(hash string) string {
	return filepath.Join(d.root, hash)
}

// ManifestPath returns the manifest file path for the given content hash.
func (d *Directory) ManifestPath(hash string) string {
	return filepath.Join(d.EntryDir(hash), manifestFileName)
}

// ComponentPath returns the built component artifact path for the given
// content hash.
func (d *Directory) ComponentPath(hash string) string {
	return filepath.Join(d.EntryDir(hash), componentFileName)
}

// HasManifest reports whether a manifest is already cached for hash, without
// touching the network or spawning any process.
func (d *Directory) HasManifest(hash string) bool {
	_, err := os.Stat(d.ManifestPath(hash))
	return err == nil
}

// HasComponent reports whether a built component artifact is already cached
// for hash.
func (d *Directory) HasComponent(hash string) bool {
	_, err := os.Stat(d.ComponentPath(hash))
	return err == nil
}

// WriteManifest durably writes the manifest bytes for hash, creating the
// entry directory if needed. The write is atomic: it writes to a temp file
// in the same directory and renames it into place, so a crash mid-write
// never leaves a partially-written manifest behind.
func (d *Directory) WriteManifest(hash string, data []byte) error {
	return d.writeAtomic(d.EntryDir(hash), d.ManifestPath(hash), data)
}

// WriteComponent durably writes the built component artifact bytes for hash.
func (d *Directory) WriteComponent(hash string, data []byte) error {
	return d.writeAtomic(d.EntryDir(hash), d.ComponentPath(hash), data)
}

func (d *Directory) writeAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache entry dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename into place %s: %w", path, err)
	}

	return nil
}

// ReadManifest reads the cached manifest bytes for hash.
func (d *Directory) ReadManifest(hash string) ([]byte, error) {
	data, err := os.ReadFile(d.ManifestPath(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", hash, err)
	}

	return data, nil
}

// Remove deletes the entire on-disk entry for hash. Removing an entry that
// does not exist is not an error.
func (d *Directory) Remove(hash string) error {
	if err := os.RemoveAll(d.EntryDir(hash)); err != nil {
		return fmt.Errorf("failed to remove cache entry %s: %w", hash, err)
	}

	return nil
}

// ReadComponent reads the cached built component artifact bytes for hash.
func (d *Directory) ReadComponent(hash string) ([]byte, error) {
	data, err := os.ReadFile(d.ComponentPath(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to read component for %s: %w", hash, err)
	}

	return data, nil
}
