package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "env.yml", "dependencies: [numpy]\n")
	other := filepath.Join(dir, "other.yml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 10)
	done := make(chan error, 1)
	w := NewWatcher(zerolog.Nop(), 50*time.Millisecond)
	go func() {
		done <- w.Watch(ctx, path, func() { changes <- struct{}{} })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write other file: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("dependencies: [scipy]\n"), 0644); err != nil {
			t.Fatalf("failed to write spec: %v", err)
		}
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	select {
	case <-changes:
		t.Error("burst of writes should produce a single callback")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(zerolog.Nop(), 0)

	err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "env.yml"), func() {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
