package output

import (
	"fmt"
	"strings"

	"declimp/pkg/resolve"
)

// DOT renders the declaration-level dependency graph in Graphviz format.
// Declarations cluster under their owning module; edge labels carry the
// recorded reason.
func DOT(decls []resolve.DeclarationSummary) string {
	var buf strings.Builder

	buf.WriteString("digraph declarations {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8];\n\n")

	byModule := make(map[string][]resolve.DeclarationSummary)
	moduleOrder := make([]string, 0)
	for _, d := range decls {
		if _, ok := byModule[d.Module]; !ok {
			moduleOrder = append(moduleOrder, d.Module)
		}
		byModule[d.Module] = append(byModule[d.Module], d)
	}

	for i, mod := range moduleOrder {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&buf, "    label=%q;\n", mod)
		buf.WriteString("    style=filled;\n")
		buf.WriteString("    color=\"whitesmoke\";\n")
		for _, d := range byModule[mod] {
			color := "white"
			switch d.State {
			case "failed":
				color = "mistyrose"
			case "deferred":
				color = "lightyellow"
			}
			fmt.Fprintf(&buf, "    %q [label=\"%s\\n(%s, %s)\", style=\"rounded,filled\", fillcolor=%q];\n",
				nodeID(d), d.Name, d.Kind, d.State, color)
		}
		buf.WriteString("  }\n")
	}
	buf.WriteString("\n")

	targets := make(map[string]bool)
	for _, d := range decls {
		for _, dep := range d.Dependencies {
			targets[dep.Module.String()] = true
		}
	}
	for target := range targets {
		style := "dashed"
		if _, internal := byModule[target]; internal {
			style = "solid"
		}
		fmt.Fprintf(&buf, "  %q [shape=ellipse, style=%s];\n", "mod:"+target, style)
	}
	buf.WriteString("\n")

	for _, d := range decls {
		for _, dep := range d.Dependencies {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", nodeID(d), "mod:"+dep.Module.String(), string(dep.Reason))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(d resolve.DeclarationSummary) string {
	return d.Module + "." + d.Name
}
