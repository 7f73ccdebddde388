// Package storage provides the local persistent key-value store used for
// state that must survive restarts (currently the spoken-language list).
//
// Values are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/leeplate/storage.json  (default: ~/.local/share/leeplate/)
//
// The file is a JSON object mapping keys to arbitrary JSON values, written
// with 0600 permissions. Every Set rewrites the whole file.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	dataDirName = "leeplate"
	fileName    = "storage.json"
)

// Store is a key-value store holding JSON documents.
type Store interface {
	// Get returns the raw value for key and whether it exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key. value must be valid JSON.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// DataDir returns the XDG data directory for leeplate.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

// DefaultPath returns the default storage file path.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// ---------------------------------------------------------------------------
// File store
// ---------------------------------------------------------------------------

// File is a Store backed by a single JSON file.
type File struct {
	mu   sync.Mutex
	path string
}

// Open returns a file store at path. The file is created lazily on the
// first Set.
func Open(path string) *File {
	return &File{path: path}
}

// OpenDefault returns a file store at DefaultPath.
func OpenDefault() (*File, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path), nil
}

// Path returns the storage file path.
func (f *File) Path() string {
	return f.path
}

// load reads the whole document. A missing file is an empty document; a
// corrupt file is reported so callers do not silently overwrite it.
func (f *File) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return make(map[string]json.RawMessage), nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	return doc, nil
}

func (f *File) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}

// Get implements Store.
func (f *File) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, false, err
	}
	val, ok := doc[key]
	if !ok {
		return nil, false, nil
	}

	// The file is indented for humans; hand back the compact form.
	var buf bytes.Buffer
	if err := json.Compact(&buf, val); err != nil {
		return nil, false, fmt.Errorf("compacting %q: %w", key, err)
	}
	return buf.Bytes(), true, nil
}

// Set implements Store. A corrupt file is replaced rather than blocking
// all future writes.
func (f *File) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		doc = make(map[string]json.RawMessage)
	}
	doc[key] = json.RawMessage(append([]byte(nil), value...))
	return f.save(doc)
}

// Delete implements Store.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return f.save(doc)
}

// RemoveAll deletes the storage file.
func (f *File) RemoveAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing storage file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// Memory is a process-local Store, used with --ephemeral and in tests.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

// Set implements Store.
func (m *Memory) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
