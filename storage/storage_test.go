package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirAndDefaultPathUseXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	if want := filepath.Join(tmp, "leeplate"); dir != want {
		t.Fatalf("DataDir() = %q, want %q", dir, want)
	}

	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error: %v", err)
	}
	if want := filepath.Join(tmp, "leeplate", "storage.json"); path != want {
		t.Fatalf("DefaultPath() = %q, want %q", path, want)
	}
}

func TestFileSetGetDeleteLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")
	f := Open(path)

	if _, ok, err := f.Get("spokenLanguages"); err != nil || ok {
		t.Fatalf("Get() on missing file = ok %v, err %v; want false, nil", ok, err)
	}

	if err := f.Set("spokenLanguages", []byte(`{"languages":{"en":"English"},"expiry":42}`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := f.Set("other", []byte(`"x"`)); err != nil {
		t.Fatalf("Set(other) error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat storage file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("storage file mode = %o, want 600", info.Mode().Perm())
	}

	// A fresh handle sees what the first one wrote.
	reopened := Open(path)
	val, ok, err := reopened.Get("spokenLanguages")
	if err != nil || !ok {
		t.Fatalf("Get() after reopen = ok %v, err %v", ok, err)
	}
	if string(val) != `{"languages":{"en":"English"},"expiry":42}` {
		t.Fatalf("Get() = %s", val)
	}

	if err := reopened.Delete("spokenLanguages"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok, _ := reopened.Get("spokenLanguages"); ok {
		t.Fatal("key still present after Delete")
	}
	if _, ok, _ := reopened.Get("other"); !ok {
		t.Fatal("unrelated key removed by Delete")
	}
	if err := reopened.Delete("missing"); err != nil {
		t.Fatalf("Delete(missing) error: %v", err)
	}

	if err := reopened.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("storage file still exists after RemoveAll: %v", err)
	}
}

func TestFileRejectsInvalidJSON(t *testing.T) {
	f := Open(filepath.Join(t.TempDir(), "storage.json"))
	if err := f.Set("k", []byte("{not json")); err == nil {
		t.Fatal("Set() with invalid JSON returned nil error")
	}
}

func TestFileCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("garbage"), 0600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	f := Open(path)

	if _, _, err := f.Get("k"); err == nil {
		t.Fatal("Get() on corrupt file returned nil error")
	}
	if err := f.Set("k", []byte(`1`)); err != nil {
		t.Fatalf("Set() should replace a corrupt file, got %v", err)
	}
	if val, ok, err := f.Get("k"); err != nil || !ok || string(val) != "1" {
		t.Fatalf("Get() after repair = %s, %v, %v", val, ok, err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	m := NewMemory()
	in := []byte(`{"a":1}`)
	if err := m.Set("k", in); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	in[2] = 'b'

	got, ok, err := m.Get("k")
	if err != nil || !ok || string(got) != `{"a":1}` {
		t.Fatalf("Get() = %s, %v, %v", got, ok, err)
	}

	if err := m.Delete("k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok, _ := m.Get("k"); ok {
		t.Fatal("key present after Delete")
	}
}
