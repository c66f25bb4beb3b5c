package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 1)
	w, err := New(100*time.Millisecond, ".mod", []string{"excluded"}, []string{"*_draft.mod"}, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch(tmpDir); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "app.mod")
	if err := os.WriteFile(testFile, []byte("module app\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changedFiles:
		found := false
		for _, p := range paths {
			if p == testFile {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected %s in changed files %v", testFile, paths)
		}
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for file change event")
	}

	// Non-module and excluded files must not trigger the callback.
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "io_draft.mod"), []byte("module io\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changedFiles:
		t.Errorf("filtered files triggered event: %v", paths)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_DebounceBatchesChanges(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 1)
	w, err := New(200*time.Millisecond, ".mod", nil, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch(tmpDir); err != nil {
		t.Fatal(err)
	}

	// Two writes in quick succession land in one batch.
	for _, name := range []string{"a.mod", "b.mod"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("module x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case paths := <-changedFiles:
		if len(paths) != 2 {
			t.Errorf("expected both files in one batch, got %v", paths)
		}
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for debounced batch")
	}
}

func TestWatcher_RequiresCallback(t *testing.T) {
	if _, err := New(time.Millisecond, ".mod", nil, nil, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
