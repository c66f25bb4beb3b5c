package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resolveQuiet bool

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every declaration in the workspace",
		Long: `Scan the workspace for module files, submit every declaration,
resolve the plain ones and apply recorded instantiations, then print a
per-declaration report. The snapshot is persisted when the database is
enabled in the config.`,
		RunE: runResolve,
	}
	cmd.Flags().BoolVarP(&resolveQuiet, "quiet", "q", false, "only print failures")
	return cmd
}

func runResolve(cmd *cobra.Command, _ []string) error {
	rt, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	report, err := rt.Run(cmd.Context())
	if err != nil {
		return err
	}

	if !resolveQuiet {
		printReport(report)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "FAIL %s\n", f)
	}

	if err := rt.Persist(cmd.Context()); err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d declaration(s) failed", len(report.Failures))
	}
	return nil
}

func printReport(report *Report) {
	fmt.Printf("files %d, submitted %d, resolved %d, deferred %d, instantiations %d, failures %d\n\n",
		report.FilesScanned, report.Submitted, report.Resolved, report.Deferred,
		report.Instantiations, len(report.Failures))

	for _, d := range report.Snapshot {
		fmt.Printf("%-10s %s.%s (%s)\n", d.State, d.Module, d.Name, d.Kind)
		for _, dep := range d.Dependencies {
			fmt.Printf("             -> %s (%s)\n", dep.Module, dep.Reason)
		}
	}
}
