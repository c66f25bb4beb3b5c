package output

import (
	"fmt"
	"strings"

	"declimp/pkg/resolve"
)

// TSV renders one row per dependency edge, plus a row with an empty target
// for declarations without edges, so every declaration appears.
func TSV(decls []resolve.DeclarationSummary) string {
	var buf strings.Builder
	buf.WriteString("module\tdeclaration\tkind\tstate\ttarget_module\treason\n")

	for _, d := range decls {
		if len(d.Dependencies) == 0 {
			fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t\t\n", d.Module, d.Name, d.Kind, d.State)
			continue
		}
		for _, dep := range d.Dependencies {
			fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%s\t%s\n",
				d.Module, d.Name, d.Kind, d.State, dep.Module.String(), string(dep.Reason))
		}
	}
	return buf.String()
}
