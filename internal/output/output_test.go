package output

import (
	"strings"
	"testing"

	"declimp/internal/engine/depgraph"
	"declimp/internal/lang"
	"declimp/pkg/resolve"
)

func sampleDecls() []resolve.DeclarationSummary {
	return []resolve.DeclarationSummary{
		{
			Handle: "h1", Module: "app", Name: "log", Kind: "plain", State: "resolved",
			Dependencies: []resolve.Dependency{
				{Module: lang.ParseModulePath("time"), Reason: depgraph.ReasonDirectUse},
				{Module: lang.ParseModulePath("io"), Reason: depgraph.ReasonDirectUse},
			},
		},
		{
			Handle: "h2", Module: "collections", Name: "FileBuffer", Kind: "generic", State: "deferred",
		},
		{
			Handle: "h3", Module: "app", Name: "broken", Kind: "plain", State: "failed",
		},
	}
}

func TestDOT(t *testing.T) {
	got := DOT(sampleDecls())

	for _, want := range []string{
		"digraph declarations",
		`label="app"`,
		`label="collections"`,
		`"app.log" -> "mod:time" [label="direct-use"]`,
		`"app.log" -> "mod:io" [label="direct-use"]`,
		"mistyrose",   // failed declarations stand out
		"lightyellow", // deferred generics too
	} {
		if !strings.Contains(got, want) {
			t.Errorf("DOT output missing %q\n%s", want, got)
		}
	}
	// External target modules render dashed.
	if !strings.Contains(got, `"mod:time" [shape=ellipse, style=dashed]`) {
		t.Errorf("expected dashed external module node\n%s", got)
	}
}

func TestMermaid(t *testing.T) {
	got := Mermaid(sampleDecls())

	if !strings.HasPrefix(got, "graph LR\n") {
		t.Error("mermaid output must open the flowchart")
	}
	for _, want := range []string{
		`app_log["app.log (resolved)"]`,
		"app_log -->|direct-use| mod_time",
		"app_log -->|direct-use| mod_io",
		"mod_time((time))",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("mermaid output missing %q\n%s", want, got)
		}
	}
}

func TestTSV(t *testing.T) {
	got := TSV(sampleDecls())
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")

	if lines[0] != "module\tdeclaration\tkind\tstate\ttarget_module\treason" {
		t.Errorf("unexpected header %q", lines[0])
	}
	// One row per edge plus one per edge-less declaration.
	if len(lines) != 5 {
		t.Fatalf("expected 4 data rows, got %d:\n%s", len(lines)-1, got)
	}
	if lines[1] != "app\tlog\tplain\tresolved\ttime\tdirect-use" {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "collections\tFileBuffer\tgeneric\tdeferred\t") {
		t.Errorf("expected edge-less row for the deferred generic, got %q", lines[3])
	}
}
