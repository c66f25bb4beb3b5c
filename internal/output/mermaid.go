package output

import (
	"fmt"
	"strings"

	"declimp/pkg/resolve"
)

// Mermaid renders the declaration graph as a mermaid flowchart, suitable
// for embedding in markdown.
func Mermaid(decls []resolve.DeclarationSummary) string {
	var buf strings.Builder
	buf.WriteString("graph LR\n")

	for _, d := range decls {
		fmt.Fprintf(&buf, "  %s[\"%s.%s (%s)\"]\n", mermaidID(nodeID(d)), d.Module, d.Name, d.State)
	}
	buf.WriteString("\n")

	for _, d := range decls {
		for _, dep := range d.Dependencies {
			fmt.Fprintf(&buf, "  %s -->|%s| %s\n",
				mermaidID(nodeID(d)), string(dep.Reason), mermaidID("mod_"+dep.Module.String()))
		}
	}

	seen := make(map[string]bool)
	for _, d := range decls {
		for _, dep := range d.Dependencies {
			key := dep.Module.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Fprintf(&buf, "  %s((%s))\n", mermaidID("mod_"+key), key)
		}
	}

	return buf.String()
}

// mermaidID strips characters mermaid treats as syntax from node ids.
func mermaidID(s string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return replacer.Replace(s)
}
