package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/proxyshape/pkg/domain"
)

// Overlay contains selection state to visualize on the graph.
type Overlay struct {
	Selected []domain.Path
	Current  domain.Path
}

const rootID = "proxy"

// GenerateMermaid produces a Mermaid flowchart of the shadow hierarchy held
// by a proxy. Node shapes reflect why a node is held:
// - Proxy root: ((Circle))
// - Requested by the user: [[Subroutine]]
// - Selected: ([Stadium])
// - Held only for descendants: [Rectangle]
func GenerateMermaid(proxyID string, refs []domain.Reference, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", rootID, escape(proxyID))

	sorted := append([]domain.Reference(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	held := make(map[domain.Path]bool, len(sorted))
	for _, r := range sorted {
		held[r.Path] = true
	}

	for _, r := range sorted {
		id := sanitizeMermaidID(r.Path)

		opener, closer := "[", "]"
		switch {
		case r.Requested > 0:
			opener, closer = "[[", "]]"
		case r.Selected > 0:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s <br/> sel %d · req %d · usr %d\"%s\n",
			id, opener, escape(r.Path.Name()), r.Selected, r.Required, r.Requested, closer)

		fmt.Fprintf(&sb, "    %s --> %s\n", parentID(r.Path, held), id)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef selected fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, p := range overlay.Selected {
			id := sanitizeMermaidID(p)
			if !held[p] || seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s selected;\n", id)
		}
		if held[overlay.Current] {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}

	return sb.String()
}

// parentID links a node to its nearest held ancestor, or to the proxy root.
func parentID(p domain.Path, held map[domain.Path]bool) string {
	for a := p.Parent(); !a.IsRoot() && !a.IsEmpty(); a = a.Parent() {
		if held[a] {
			return sanitizeMermaidID(a)
		}
	}
	return rootID
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(p domain.Path) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return "n" + r.Replace(string(p))
}
