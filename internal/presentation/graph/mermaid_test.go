package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/proxyshape/internal/presentation/graph"
	"github.com/aretw0/proxyshape/pkg/domain"
)

func ref(path string, selected, required, requested uint16) domain.Reference {
	return domain.Reference{
		Path: domain.Path(path),
		TransformReference: domain.TransformReference{
			Node:      domain.Handle{ID: 1},
			Selected:  selected,
			Required:  required,
			Requested: requested,
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		refs     []domain.Reference
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Root Shape",
			contains: []string{
				`proxy(("shot"))`,
			},
		},
		{
			name: "Reason Shapes",
			refs: []domain.Reference{
				ref("/a", 1, 0, 1),
				ref("/a/b", 1, 0, 0),
				ref("/a/c", 0, 1, 0),
			},
			contains: []string{
				`n_a[["a <br/> sel 1 · req 0 · usr 1"]]`,
				`n_a_b(["b <br/> sel 1 · req 0 · usr 0"])`,
				`n_a_c["c <br/> sel 0 · req 1 · usr 0"]`,
			},
		},
		{
			name: "Hierarchy Edges",
			refs: []domain.Reference{
				ref("/a/b", 1, 0, 0),
				ref("/a", 1, 0, 0),
				ref("/x/y/z", 1, 0, 0),
				ref("/x", 1, 0, 0),
			},
			contains: []string{
				"proxy --> n_a\n",
				"n_a --> n_a_b\n",
				"proxy --> n_x\n",
				"n_x --> n_x_y_z\n",
			},
		},
		{
			name: "ID Sanitization",
			refs: []domain.Reference{
				ref("/geo-1/mesh.v2", 1, 0, 0),
			},
			contains: []string{
				`n_geo_1_mesh_v2(["mesh.v2`,
			},
		},
		{
			name: "Overlay",
			refs: []domain.Reference{
				ref("/a", 1, 0, 0),
				ref("/a/b", 1, 0, 0),
			},
			overlay: &graph.Overlay{
				Selected: []domain.Path{"/a/b", "/a/b", "/gone"},
				Current:  "/a",
			},
			contains: []string{
				"class n_a_b selected;",
				"class n_a current;",
			},
			excludes: []string{
				"n_gone",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid("shot", tt.refs, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("GenerateMermaid() = \n%v\nUnexpected substring: %v", got, bad)
				}
			}
			if tt.overlay != nil && strings.Count(got, "class n_a_b selected;") != 1 {
				t.Errorf("selected class repeated:\n%v", got)
			}
		})
	}
}
