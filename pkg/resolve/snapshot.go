package resolve

import (
	"context"

	"declimp/internal/engine/gate"
	"declimp/internal/lang"
)

// DeclarationSummary is a read-only view of one declaration for diagnostics,
// persistence and rendering.
type DeclarationSummary struct {
	Handle       Handle
	Module       string
	Name         string
	Kind         string
	State        string
	Dependencies []Dependency
}

// ModuleSummary is the derived per-module view: a module counts as resolved
// when every plain declaration it owns has resolved; deferred generics do
// not hold it back.
type ModuleSummary struct {
	Path          lang.ModulePath
	Declarations  int
	Resolved      int
	Deferred      int
	Failed        int
	FullyResolved bool
}

// Snapshot lists every submitted declaration in submission order with its
// current state and ordered dependency sequence.
func (e *Engine) Snapshot() []DeclarationSummary {
	e.mu.RLock()
	handles := make([]Handle, len(e.order))
	copy(handles, e.order)
	e.mu.RUnlock()

	out := make([]DeclarationSummary, 0, len(handles))
	for _, h := range handles {
		entry, err := e.entry(h)
		if err != nil {
			continue
		}
		v := e.view(entry)
		out = append(out, DeclarationSummary{
			Handle:       h,
			Module:       v.Module.String(),
			Name:         v.Name,
			Kind:         v.Kind.String(),
			State:        v.State.String(),
			Dependencies: v.Dependencies,
		})
	}
	return out
}

// ModuleState summarizes the resolution progress of one module's submitted
// declarations.
func (e *Engine) ModuleState(path lang.ModulePath) ModuleSummary {
	summary := ModuleSummary{Path: path}

	e.mu.RLock()
	handles := make([]Handle, len(e.order))
	copy(handles, e.order)
	e.mu.RUnlock()

	plainPending := false
	for _, h := range handles {
		entry, err := e.entry(h)
		if err != nil || !entry.decl.Owner.Path.Equal(path) {
			continue
		}
		summary.Declarations++
		state := e.view(entry).State
		switch state {
		case gate.StateResolved:
			summary.Resolved++
		case gate.StateFailed:
			summary.Failed++
		default:
			summary.Deferred++
			if !entry.decl.Generic() {
				plainPending = true
			}
		}
	}
	summary.FullyResolved = summary.Declarations > 0 && summary.Failed == 0 && !plainPending
	return summary
}

// SnapshotSink receives exported snapshots. The SQLite store satisfies it;
// hosts can substitute their own persistence.
type SnapshotSink interface {
	SaveSnapshot(decls []DeclarationSummary) error
}

// Export writes the current snapshot to a sink.
func (e *Engine) Export(ctx context.Context, sink SnapshotSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return sink.SaveSnapshot(e.Snapshot())
}
