package cli

import (
	"context"
	"fmt"
	"log/slog"

	"declimp/internal/core/config"
	"declimp/internal/core/errors"
	"declimp/internal/data/store"
	"declimp/internal/driver/parser"
	"declimp/internal/driver/workspace"
	"declimp/internal/engine/gate"
	"declimp/internal/engine/registry"
	"declimp/internal/lang"
	"declimp/pkg/resolve"
)

// Runtime wires one resolution session: workspace scanning, the engine with
// the workspace's parse callback, submission, resolution and instantiation.
// A session's memoization is never invalidated; watch mode builds a fresh
// Runtime per cycle instead.
type Runtime struct {
	cfg    *config.Config
	ws     *workspace.Workspace
	engine *resolve.Engine
}

type Failure struct {
	Declaration string
	Err         error
}

type Report struct {
	FilesScanned   int
	Submitted      int
	Resolved       int
	Deferred       int
	Instantiations int
	Failures       []Failure
	Snapshot       []resolve.DeclarationSummary
}

func NewRuntime(cfg *config.Config) (*Runtime, error) {
	ws, err := workspace.New(cfg.Workspace.Root, cfg.Workspace.ModuleSuffix, cfg.Workspace.ExcludeDirs, cfg.Workspace.ExcludeFiles)
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{
		registry.WithIntrinsicPatterns(cfg.Registry.IntrinsicPatterns),
	}
	if cfg.Registry.LoaderRate > 0 {
		regOpts = append(regOpts, registry.WithLoaderLimit(cfg.Registry.LoaderRate, cfg.Registry.LoaderBurst))
	}

	return &Runtime{
		cfg:    cfg,
		ws:     ws,
		engine: resolve.New(ws.ParseFunc(), regOpts),
	}, nil
}

func (r *Runtime) Engine() *resolve.Engine {
	return r.engine
}

// Run scans the workspace, submits every declaration, resolves plain
// declarations, and applies instantiation requests in file order. One
// declaration's failure does not stop the rest.
func (r *Runtime) Run(ctx context.Context) (*Report, error) {
	files, err := r.ws.Scan()
	if err != nil {
		return nil, err
	}

	report := &Report{FilesScanned: len(files)}
	type instRequest struct {
		owner lang.ModulePath
		inst  parser.Instantiation
	}
	handles := make([]resolve.Handle, 0)
	requests := make([]instRequest, 0)

	for _, file := range files {
		res, err := parser.ParseFile(file)
		if err != nil {
			report.Failures = append(report.Failures, Failure{Declaration: file, Err: err})
			continue
		}
		owner := res.Module.Path
		for _, decl := range res.Module.Declarations {
			h, err := r.engine.SubmitDeclaration(ctx, owner, decl)
			if err != nil {
				report.Failures = append(report.Failures, Failure{
					Declaration: owner.String() + "." + decl.Name,
					Err:         err,
				})
				continue
			}
			handles = append(handles, h)
			report.Submitted++
		}
		for _, inst := range res.Instantiations {
			requests = append(requests, instRequest{owner: owner, inst: inst})
		}
	}

	for _, h := range handles {
		rd, err := r.engine.Resolve(ctx, h)
		if err != nil {
			report.Failures = append(report.Failures, Failure{Declaration: declName(r.engine, h), Err: err})
			continue
		}
		if rd.State == gate.StateDeferred {
			report.Deferred++
		} else {
			report.Resolved++
		}
	}

	for _, req := range requests {
		h, ok := r.engine.Lookup(req.owner, req.inst.Target)
		if !ok {
			report.Failures = append(report.Failures, Failure{
				Declaration: req.owner.String() + "." + req.inst.Target,
				Err:         errors.Newf(errors.CodeValidationError, "instantiation target %q not submitted", req.inst.Target),
			})
			continue
		}
		if _, err := r.engine.Instantiate(ctx, h, req.inst.Args); err != nil {
			report.Failures = append(report.Failures, Failure{Declaration: declName(r.engine, h), Err: err})
			continue
		}
		report.Instantiations++
	}

	report.Snapshot = r.engine.Snapshot()
	slog.Info("resolution pass complete",
		"files", report.FilesScanned,
		"submitted", report.Submitted,
		"resolved", report.Resolved,
		"deferred", report.Deferred,
		"failures", len(report.Failures))
	return report, nil
}

// Persist writes the current snapshot when the snapshot store is enabled.
func (r *Runtime) Persist(ctx context.Context) error {
	if !r.cfg.DB.Enabled {
		return nil
	}
	st, err := store.Open(r.cfg.DB.Path, r.cfg.DB.ProjectKey)
	if err != nil {
		return err
	}
	defer st.Close()
	return r.engine.Export(ctx, st)
}

func declName(e *resolve.Engine, h resolve.Handle) string {
	for _, s := range e.Snapshot() {
		if s.Handle == h {
			return s.Module + "." + s.Name
		}
	}
	return string(h)
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %v", f.Declaration, f.Err)
}
