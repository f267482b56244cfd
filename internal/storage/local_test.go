package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "staging")

	s, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.TempDir() != dir {
		t.Errorf("TempDir() = %q, want %q", s.TempDir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}

func TestSaveAndLoadTemp(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := s.SaveTemp(context.Background(), "artifact", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("SaveTemp: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "artifact") {
		t.Errorf("path %q should contain the name hint", path)
	}

	rc, err := s.LoadTemp(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadTemp: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Errorf("data = %q, want payload", data)
	}
}

func TestSaveTemp_CancelledContext(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SaveTemp(ctx, "x", strings.NewReader("data")); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestCleanupTemp(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	p1, _ := s.SaveTemp(ctx, "a", strings.NewReader("1"))
	p2, _ := s.SaveTemp(ctx, "b", strings.NewReader("2"))

	// Missing files are tolerated.
	missing := filepath.Join(s.TempDir(), "never-existed")

	if err := s.CleanupTemp(ctx, []string{p1, p2, missing}); err != nil {
		t.Fatalf("CleanupTemp: %v", err)
	}

	for _, p := range []string{p1, p2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %q to be removed", p)
		}
	}
}
