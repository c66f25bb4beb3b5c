package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"declimp/internal/core/errors"
	"declimp/internal/output"
)

var (
	graphFormat string
	graphOut    string
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the declaration dependency graph",
		Long: `Resolve the workspace and render the declaration-level dependency
graph.

Examples:
  declimp graph --format dot -o deps.dot
  declimp graph --format mermaid
  declimp graph --format tsv`,
		RunE: runGraph,
	}
	cmd.Flags().StringVarP(&graphFormat, "format", "f", "dot", "output format: dot, mermaid or tsv")
	cmd.Flags().StringVarP(&graphOut, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func runGraph(cmd *cobra.Command, _ []string) error {
	rt, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	if _, err := rt.Run(cmd.Context()); err != nil {
		return err
	}
	snapshot := rt.Engine().Snapshot()

	var rendered string
	switch graphFormat {
	case "dot":
		rendered = output.DOT(snapshot)
	case "mermaid":
		rendered = output.Mermaid(snapshot)
	case "tsv":
		rendered = output.TSV(snapshot)
	default:
		return errors.Newf(errors.CodeValidationError, "unknown graph format %q", graphFormat)
	}

	if graphOut == "" {
		fmt.Print(rendered)
		return nil
	}
	return os.WriteFile(graphOut, []byte(rendered), 0o644)
}
