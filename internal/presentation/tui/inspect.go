package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/muesli/termenv"
)

// ReferencesMarkdown formats a proxy's references and selection as markdown.
func ReferencesMarkdown(proxyID string, refs []domain.Reference, selected []domain.Path) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Proxy `%s`\n\n", proxyID)

	if len(selected) == 0 {
		sb.WriteString("Nothing selected.\n\n")
	} else {
		sb.WriteString("## Selection\n\n")
		for _, p := range selected {
			fmt.Fprintf(&sb, "- `%s`\n", p)
		}
		sb.WriteString("\n")
	}

	if len(refs) == 0 {
		sb.WriteString("No transform references.\n")
		return sb.String()
	}

	sb.WriteString("## Transform References\n\n")
	sb.WriteString("| Path | Node | Selected | Required | Requested |\n")
	sb.WriteString("|------|------|---------:|---------:|----------:|\n")
	for _, r := range refs {
		fmt.Fprintf(&sb, "| `%s` | %s | %d | %d | %d |\n", r.Path, r.Node, r.Selected, r.Required, r.Requested)
	}
	return sb.String()
}

// ReferencesText formats references as aligned plain text, one per line.
// Selected paths are highlighted when the output supports color.
func ReferencesText(refs []domain.Reference, selected []domain.Path, profile termenv.Profile) string {
	sel := domain.NewPathSet(selected...)
	width := len("PATH")
	for _, r := range refs {
		if n := len(r.Path); n > width {
			width = n
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s  %-8s %4s %4s %4s\n", width, "PATH", "NODE", "SEL", "REQ", "USR")
	for _, r := range refs {
		path := fmt.Sprintf("%-*s", width, r.Path)
		if sel.Has(r.Path) && profile != termenv.Ascii {
			path = termenv.String(path).Foreground(profile.Color("#fbbf24")).Bold().String()
		}
		fmt.Fprintf(&sb, "%s  %-8s %4d %4d %4d\n", path, r.Node, r.Selected, r.Required, r.Requested)
	}
	return sb.String()
}
