package depgraph

import (
	"testing"

	"declimp/internal/lang"
)

func edge(source, owner, target string, reason Reason) Edge {
	return Edge{
		Source: source,
		Owner:  lang.ParseModulePath(owner),
		Target: lang.ParseModulePath(target),
		Reason: reason,
	}
}

func TestBuilder_RecordAndDedup(t *testing.T) {
	b := NewBuilder()

	b.Record(edge("d1", "app", "time", ReasonDirectUse))
	b.Record(edge("d1", "app", "io", ReasonDirectUse))
	// Repeat lookup of the same module from the same source collapses.
	b.Record(edge("d1", "app", "time", ReasonDirectUse))

	edges := b.EdgesFor("d1")
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if edges[0].Target.String() != "time" || edges[1].Target.String() != "io" {
		t.Errorf("expected insertion order [time io], got [%s %s]",
			edges[0].Target, edges[1].Target)
	}
}

func TestBuilder_IgnoresEmptyEdges(t *testing.T) {
	b := NewBuilder()
	b.Record(Edge{Source: "", Target: lang.ParseModulePath("io")})
	b.Record(Edge{Source: "d1"})
	if len(b.Sources()) != 0 {
		t.Error("expected no sources for empty edges")
	}
}

func TestBuilder_SourcesIsolated(t *testing.T) {
	b := NewBuilder()
	b.Record(edge("d1", "app", "time", ReasonDirectUse))
	b.Record(edge("d1#int", "app", "math", ReasonInstantiation))

	if len(b.EdgesFor("d1")) != 1 {
		t.Error("expected d1 to carry one edge")
	}
	if len(b.EdgesFor("d1#int")) != 1 {
		t.Error("expected the instantiation key to carry its own edge")
	}
	if len(b.Sources()) != 2 {
		t.Errorf("expected 2 sources, got %d", len(b.Sources()))
	}
}

func TestBuilder_ModuleDeps(t *testing.T) {
	b := NewBuilder()
	b.Record(edge("d1", "app", "time", ReasonDirectUse))
	b.Record(edge("d2", "app", "io", ReasonDirectUse))
	b.Record(edge("d3", "other", "app", ReasonDirectUse))

	deps := b.ModuleDeps(lang.ParseModulePath("app"))
	if len(deps) != 2 {
		t.Fatalf("expected 2 aggregate deps for app, got %v", deps)
	}
	if deps[0].String() != "io" || deps[1].String() != "time" {
		t.Errorf("expected sorted [io time], got %v", deps)
	}
}

func TestBuilder_TransitiveClosure(t *testing.T) {
	b := NewBuilder()
	b.Record(edge("d1", "app", "collections", ReasonDirectUse))
	b.Record(edge("c1", "collections", "io", ReasonDirectUse))
	b.Record(edge("i1", "io", "sys", ReasonDirectUse))

	closure := b.TransitiveClosure("d1")
	want := []string{"collections", "io", "sys"}
	if len(closure) != len(want) {
		t.Fatalf("expected closure %v, got %v", want, closure)
	}
	for i, w := range want {
		if closure[i].String() != w {
			t.Errorf("position %d: expected %s, got %s", i, w, closure[i])
		}
	}
}

func TestBuilder_TransitiveClosureWithCycle(t *testing.T) {
	b := NewBuilder()
	// a -> b -> a must terminate.
	b.Record(edge("d1", "x", "a", ReasonDirectUse))
	b.Record(edge("a1", "a", "b", ReasonDirectUse))
	b.Record(edge("b1", "b", "a", ReasonDirectUse))

	closure := b.TransitiveClosure("d1")
	if len(closure) != 2 {
		t.Fatalf("expected [a b] despite the cycle, got %v", closure)
	}
}
