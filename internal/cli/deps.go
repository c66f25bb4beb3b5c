package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"declimp/internal/core/errors"
	"declimp/internal/data/store"
	"declimp/internal/lang"
)

var (
	depsFromDB  bool
	depsClosure bool
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <module.declaration>",
		Short: "Print one declaration's ordered dependency sequence",
		Long: `Resolve the workspace and print the dependency sequence of a single
declaration, in first-resolution order. The last dotted segment names
the declaration, everything before it the owning module.

Examples:
  declimp deps app.log
  declimp deps collections.FileBuffer --closure
  declimp deps app.log --from-db`,
		Args: cobra.ExactArgs(1),
		RunE: runDeps,
	}
	cmd.Flags().BoolVar(&depsFromDB, "from-db", false, "read the persisted snapshot instead of resolving")
	cmd.Flags().BoolVar(&depsClosure, "closure", false, "include transitive module dependencies")
	return cmd
}

func runDeps(cmd *cobra.Command, args []string) error {
	modPath, declName := lang.SplitRef(args[0])
	if len(modPath) == 0 || declName == "" {
		return errors.Newf(errors.CodeValidationError, "expected module.declaration, got %q", args[0])
	}
	modStr := modPath.String()

	if depsFromDB {
		return depsFromStore(modStr, declName)
	}

	rt, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	if _, err := rt.Run(cmd.Context()); err != nil {
		return err
	}
	engine := rt.Engine()

	h, ok := engine.Lookup(modPath, declName)
	if !ok {
		return errors.Newf(errors.CodeUnresolvedSymbol, "declaration %s.%s not found in workspace", modStr, declName)
	}

	deps := engine.DependenciesOf(h)
	if len(deps) == 0 {
		fmt.Printf("%s.%s has no dependencies\n", modStr, declName)
	}
	for _, dep := range deps {
		fmt.Printf("%s\t%s\n", dep.Module, dep.Reason)
	}

	if depsClosure {
		closure := engine.Graph().TransitiveClosure(string(h))
		if len(closure) > 0 {
			fmt.Printf("\ntransitive: %s\n", joinPaths(closure))
		}
	}
	return nil
}

func depsFromStore(modStr, declName string) error {
	st, err := store.Open(cfg.DB.Path, cfg.DB.ProjectKey)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.LoadSnapshot()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Module != modStr || row.Name != declName {
			continue
		}
		if len(row.Targets) == 0 {
			fmt.Printf("%s.%s has no dependencies\n", modStr, declName)
		}
		for _, t := range row.Targets {
			fmt.Printf("%s\t%s\n", t.TargetModule, t.Reason)
		}
		return nil
	}
	return errors.Newf(errors.CodeUnresolvedSymbol, "declaration %s.%s not found in snapshot", modStr, declName)
}

func joinPaths(paths []lang.ModulePath) string {
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
