package store

import (
	"path/filepath"
	"testing"

	"declimp/internal/engine/depgraph"
	"declimp/internal/lang"
	"declimp/pkg/resolve"
)

func openTestStore(t *testing.T, projectKey string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "declimp.db"), projectKey)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() []resolve.DeclarationSummary {
	return []resolve.DeclarationSummary{
		{
			Handle: "h1",
			Module: "app",
			Name:   "log",
			Kind:   "plain",
			State:  "resolved",
			Dependencies: []resolve.Dependency{
				{Module: lang.ParseModulePath("time"), Reason: depgraph.ReasonDirectUse},
				{Module: lang.ParseModulePath("io"), Reason: depgraph.ReasonDirectUse},
			},
		},
		{
			Handle: "h2",
			Module: "collections",
			Name:   "FileBuffer",
			Kind:   "generic",
			State:  "deferred",
		},
	}
}

func TestStore_SaveAndLoadSnapshot(t *testing.T) {
	s := openTestStore(t, "proj")

	if err := s.SaveSnapshot(sampleSnapshot()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	rows, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(rows))
	}

	// Declarations come back ordered by module then name.
	if rows[0].Module != "app" || rows[0].Name != "log" {
		t.Errorf("expected app.log first, got %s.%s", rows[0].Module, rows[0].Name)
	}
	if len(rows[0].Targets) != 2 {
		t.Fatalf("expected 2 edges for app.log, got %d", len(rows[0].Targets))
	}
	// Edge sequence order survives the roundtrip.
	if rows[0].Targets[0].TargetModule != "time" || rows[0].Targets[1].TargetModule != "io" {
		t.Errorf("expected [time io], got [%s %s]",
			rows[0].Targets[0].TargetModule, rows[0].Targets[1].TargetModule)
	}
	if rows[0].Targets[0].Reason != "direct-use" {
		t.Errorf("expected direct-use, got %s", rows[0].Targets[0].Reason)
	}

	if rows[1].State != "deferred" || len(rows[1].Targets) != 0 {
		t.Errorf("expected edge-less deferred generic, got %+v", rows[1])
	}
}

func TestStore_SaveReplacesPreviousSnapshot(t *testing.T) {
	s := openTestStore(t, "proj")

	if err := s.SaveSnapshot(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}
	replacement := []resolve.DeclarationSummary{
		{Handle: "h3", Module: "app", Name: "trace", Kind: "plain", State: "resolved"},
	}
	if err := s.SaveSnapshot(replacement); err != nil {
		t.Fatal(err)
	}

	rows, err := s.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "trace" {
		t.Errorf("expected the snapshot to be replaced, got %+v", rows)
	}
}

func TestStore_ProjectsIsolated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "declimp.db")

	a, err := Open(path, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(path, "beta")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.SaveSnapshot(sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	rows, err := b.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected project beta to be empty, got %d rows", len(rows))
	}
}

func TestStore_OpenValidation(t *testing.T) {
	if _, err := Open("", "p"); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Open(t.TempDir(), "p"); err == nil {
		t.Error("expected error for directory path")
	}
}
