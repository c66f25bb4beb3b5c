package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"declimp/internal/core/errors"
	"declimp/internal/lang"
)

func treeFor(path lang.ModulePath, decls ...lang.Declaration) *lang.Module {
	return &lang.Module{Path: path, Declarations: decls}
}

func TestRegistry_GetOrLoad(t *testing.T) {
	var calls atomic.Int32
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		calls.Add(1)
		return treeFor(path, lang.Declaration{Name: "writeln"}), nil
	}
	r := New(parse)

	io := lang.ParseModulePath("io")
	mod, err := r.GetOrLoad(context.Background(), io)
	if err != nil {
		t.Fatalf("GetOrLoad failed: %v", err)
	}
	if mod.State != StateParsed {
		t.Error("expected parsed state")
	}
	if _, ok := mod.Table.Lookup("writeln"); !ok {
		t.Error("expected writeln in the module table")
	}

	// Second load comes from cache.
	if _, err := r.GetOrLoad(context.Background(), io); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one parse call, got %d", calls.Load())
	}
}

func TestRegistry_ConcurrentLoadIsSingleFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		calls.Add(1)
		<-release
		return treeFor(path), nil
	}
	r := New(parse)
	path := lang.ParseModulePath("time")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.GetOrLoad(context.Background(), path); err != nil {
				t.Errorf("GetOrLoad failed: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected one shared load, got %d", calls.Load())
	}
}

func TestRegistry_LoaderLimit(t *testing.T) {
	var calls atomic.Int32
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		calls.Add(1)
		return treeFor(path, lang.Declaration{Name: "writeln"}), nil
	}
	r := New(parse, WithLoaderLimit(100, 1))

	if _, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("io")); err != nil {
		t.Fatalf("throttled load failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one parse call, got %d", calls.Load())
	}

	// A cancelled context interrupts the throttle wait before the loader runs.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.GetOrLoad(ctx, lang.ParseModulePath("net"))
	if !errors.IsCode(err, errors.CodeInternal) {
		t.Errorf("expected INTERNAL for interrupted throttle, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("loader must not run when the throttle wait is interrupted, got %d calls", calls.Load())
	}
}

func TestRegistry_FailedLoadIsCached(t *testing.T) {
	var calls atomic.Int32
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		calls.Add(1)
		return nil, errors.Newf(errors.CodeModuleNotFound, "no module %s", path)
	}
	r := New(parse)
	path := lang.ParseModulePath("ghost")

	for i := 0; i < 3; i++ {
		_, err := r.GetOrLoad(context.Background(), path)
		if !errors.IsCode(err, errors.CodeModuleNotFound) {
			t.Fatalf("expected MODULE_NOT_FOUND, got %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("failed loads must not be retried, got %d calls", calls.Load())
	}
}

func TestRegistry_ParseErrorWrapped(t *testing.T) {
	parse := func(_ context.Context, _ lang.ModulePath) (*lang.Module, error) {
		return nil, errors.New(errors.CodeParseError, "bad syntax")
	}
	r := New(parse)
	_, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("broken"))
	if !errors.IsCode(err, errors.CodeParseError) {
		t.Errorf("expected PARSE_ERROR, got %v", err)
	}
}

func TestRegistry_NilTreeIsNotFound(t *testing.T) {
	parse := func(_ context.Context, _ lang.ModulePath) (*lang.Module, error) {
		return nil, nil
	}
	r := New(parse)
	_, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("empty"))
	if !errors.IsCode(err, errors.CodeModuleNotFound) {
		t.Errorf("expected MODULE_NOT_FOUND for nil tree, got %v", err)
	}
}

func TestRegistry_Intrinsics(t *testing.T) {
	var calls atomic.Int32
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		calls.Add(1)
		return treeFor(path), nil
	}
	r := New(parse, WithIntrinsicPatterns([]string{"builtin.*"}))

	mod, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("builtin.prelude"))
	if err != nil {
		t.Fatalf("intrinsic load failed: %v", err)
	}
	if !mod.Intrinsic {
		t.Error("expected an intrinsic module")
	}
	if calls.Load() != 0 {
		t.Error("intrinsic paths must not invoke the loader")
	}
}

func TestRegistry_DuplicateDeclarationFailsLoad(t *testing.T) {
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		return treeFor(path,
			lang.Declaration{Name: "max"},
			lang.Declaration{Name: "max"},
		), nil
	}
	r := New(parse)
	_, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("math"))
	if !errors.IsCode(err, errors.CodeDuplicateDefinition) {
		t.Errorf("expected DUPLICATE_DEFINITION, got %v", err)
	}
}

func TestRegistry_ImportAliases(t *testing.T) {
	parse := func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		return &lang.Module{
			Path: path,
			Imports: []lang.Import{
				{Module: lang.ParseModulePath("collections.list"), Alias: "list"},
				{Module: lang.ParseModulePath("io")},
			},
		}, nil
	}
	r := New(parse)
	mod, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("app"))
	if err != nil {
		t.Fatal(err)
	}
	sym, ok := mod.Table.Lookup("list")
	if !ok {
		t.Fatal("expected explicit alias binding")
	}
	if sym.Target.String() != "collections.list" {
		t.Errorf("alias targets collections.list, got %s", sym.Target)
	}
	if _, ok := mod.Table.Lookup("io"); !ok {
		t.Error("expected default alias from the last path segment")
	}
}

func TestRegistry_Ensure(t *testing.T) {
	r := New(nil)
	path := lang.ParseModulePath("app")

	mod, err := r.Ensure(path)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if mod.Table == nil {
		t.Fatal("ensured modules carry an empty table")
	}

	// Ensure is idempotent and GetOrLoad sees the same module.
	again, err := r.Ensure(path)
	if err != nil || again != mod {
		t.Error("expected the same module on repeat Ensure")
	}
	loaded, err := r.GetOrLoad(context.Background(), path)
	if err != nil || loaded != mod {
		t.Error("GetOrLoad must return the ensured module without loading")
	}
}

func TestRegistry_PeekAndPaths(t *testing.T) {
	r := New(func(_ context.Context, path lang.ModulePath) (*lang.Module, error) {
		return treeFor(path), nil
	})

	if _, ok := r.Peek(lang.ParseModulePath("io")); ok {
		t.Error("Peek must not load")
	}
	if _, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("io")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetOrLoad(context.Background(), lang.ParseModulePath("time")); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Peek(lang.ParseModulePath("io")); !ok {
		t.Error("expected io after load")
	}

	paths := r.Paths()
	if len(paths) != 2 || paths[0].String() != "io" || paths[1].String() != "time" {
		t.Errorf("expected sorted [io time], got %v", paths)
	}
}

func TestRegistry_EmptyPath(t *testing.T) {
	r := New(nil)
	if _, err := r.GetOrLoad(context.Background(), nil); !errors.IsCode(err, errors.CodeValidationError) {
		t.Error("expected validation error for empty path on GetOrLoad")
	}
	if _, err := r.Ensure(nil); !errors.IsCode(err, errors.CodeValidationError) {
		t.Error("expected validation error for empty path on Ensure")
	}
}
