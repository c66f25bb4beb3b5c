// Package workspace maps dotted module paths onto files under a workspace
// root and exposes the parse callback the registry loads through.
package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"declimp/internal/core/errors"
	"declimp/internal/driver/parser"
	"declimp/internal/engine/registry"
	"declimp/internal/lang"
)

type Workspace struct {
	root         string
	suffix       string
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

func New(root, suffix string, excludeDirs, excludeFiles []string) (*Workspace, error) {
	if suffix == "" {
		suffix = ".mod"
	}
	w := &Workspace{root: root, suffix: suffix}
	for _, p := range excludeDirs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "invalid exclude dir pattern")
		}
		w.excludeDirs = append(w.excludeDirs, g)
	}
	for _, p := range excludeFiles {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "invalid exclude file pattern")
		}
		w.excludeFiles = append(w.excludeFiles, g)
	}
	return w, nil
}

func (w *Workspace) Root() string {
	return w.root
}

// ModuleFile returns the file a module path maps to: a/b/c.mod under the
// root, falling back to the flat a.b.c.mod form. Empty when neither exists.
func (w *Workspace) ModuleFile(path lang.ModulePath) string {
	nested := filepath.Join(w.root, filepath.Join([]string(path)...)+w.suffix)
	if _, err := os.Stat(nested); err == nil {
		return nested
	}
	flat := filepath.Join(w.root, path.String()+w.suffix)
	if _, err := os.Stat(flat); err == nil {
		return flat
	}
	return ""
}

// Scan walks the root and returns every module file not excluded, sorted by
// the walk order of filepath.WalkDir (lexical, so deterministic).
func (w *Workspace) Scan() ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			for _, g := range w.excludeDirs {
				if g.Match(name) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !strings.HasSuffix(name, w.suffix) {
			return nil
		}
		for _, g := range w.excludeFiles {
			if g.Match(name) {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "scan workspace")
	}
	return files, nil
}

// ParseFunc is the loader the registry calls on cache miss. Instantiation
// requests in lazily loaded files are driver input, not module content, so
// they are ignored here; only files fed through the CLI submit path apply
// them.
func (w *Workspace) ParseFunc() registry.ParseFunc {
	return func(ctx context.Context, path lang.ModulePath) (*lang.Module, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file := w.ModuleFile(path)
		if file == "" {
			return nil, errors.AddContext(
				errors.Newf(errors.CodeModuleNotFound, "no module file for %s", path),
				errors.CtxModule, path.String(),
			)
		}
		res, err := parser.ParseFile(file)
		if err != nil {
			return nil, err
		}
		if !res.Module.Path.Equal(path) {
			return nil, errors.AddContext(
				errors.Newf(errors.CodeParseError, "file %s declares module %s, expected %s", file, res.Module.Path, path),
				errors.CtxModule, path.String(),
			)
		}
		return res.Module, nil
	}
}
