// Package flatstore provides primitives for flat, file-per-entity JSON stores.
// Entity IDs are untrusted input: they are sanitized before ever touching the
// filesystem, and resolved paths are verified to stay inside the base directory.
package flatstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FlatStore maps entity IDs to single files under a base directory.
type FlatStore struct {
	mu         sync.RWMutex
	baseDir    string
	ext        string // file extension including the dot: ".json"
	entityName string // for error messages: "chain"
}

// NewFlatStore creates a FlatStore rooted at baseDir.
func NewFlatStore(baseDir, ext, entityName string) *FlatStore {
	return &FlatStore{baseDir: baseDir, ext: ext, entityName: entityName}
}

// Lock acquires an exclusive lock.
func (fs *FlatStore) Lock() { fs.mu.Lock() }

// Unlock releases an exclusive lock.
func (fs *FlatStore) Unlock() { fs.mu.Unlock() }

// RLock acquires a shared read lock.
func (fs *FlatStore) RLock() { fs.mu.RLock() }

// RUnlock releases a shared read lock.
func (fs *FlatStore) RUnlock() { fs.mu.RUnlock() }

// BaseDir returns the store's base directory.
func (fs *FlatStore) BaseDir() string { return fs.baseDir }

// SanitizeID replaces every rune outside [A-Za-z0-9_-] with a single underscore.
// The result has the same rune length as the input and contains no path
// separators or dots, so it is safe as a filename component.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Path returns the storage path for an entity ID, sanitizing the ID and
// verifying the result is lexically inside the base directory.
func (fs *FlatStore) Path(id string) (string, error) {
	name := SanitizeID(id)
	if name == "" {
		return "", fmt.Errorf("empty %s id", fs.entityName)
	}

	path := filepath.Join(fs.baseDir, name+fs.ext)

	// The sanitizer strips separators and dots; still verify containment
	// before any filesystem access.
	rel, err := filepath.Rel(fs.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%s id escapes base dir: %q", fs.entityName, id)
	}

	return path, nil
}

// EnsureBaseDir creates the base directory (and parents) if it doesn't exist.
func (fs *FlatStore) EnsureBaseDir() error {
	if err := os.MkdirAll(fs.baseDir, 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", fs.entityName, err)
	}
	return nil
}

// WriteDoc atomically writes a document for an entity using a temp file + rename.
func (fs *FlatStore) WriteDoc(id string, data []byte) error {
	if err := fs.EnsureBaseDir(); err != nil {
		return err
	}

	path, err := fs.Path(id)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s tmp: %w", fs.entityName, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", fs.entityName, err)
	}

	return nil
}

// ReadDoc reads an entity's document. Returns nil, nil if the file doesn't exist.
func (fs *FlatStore) ReadDoc(id string) ([]byte, error) {
	path, err := fs.Path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", fs.entityName, err)
	}
	return data, nil
}

// ListDocs returns the contents of every document in the store.
func (fs *FlatStore) ListDocs() ([][]byte, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %ss dir: %w", fs.entityName, err)
	}

	var docs [][]byte
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fs.ext) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue // skip unreadable entries
		}
		docs = append(docs, data)
	}
	return docs, nil
}

// RemoveDoc removes an entity's document. Reports whether a file was removed.
func (fs *FlatStore) RemoveDoc(id string) (bool, error) {
	path, err := fs.Path(id)
	if err != nil {
		return false, err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove %s: %w", fs.entityName, err)
	}
	return true, nil
}
