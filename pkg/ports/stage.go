package ports

import "github.com/aretw0/proxyshape/pkg/domain"

// Stage is the read only view of a USD stage.
type Stage interface {
	// Prim returns the prim at path. ok is false when the stage has none.
	Prim(path domain.Path) (prim domain.Prim, ok bool)

	// Children returns the direct children of path in authored order.
	Children(path domain.Path) []domain.Prim
}

// Selectability decides whether a prim may take part in the interactive selection.
type Selectability interface {
	IsSelectable(path domain.Path) bool
}

// SelectabilityFunc adapts a function to Selectability.
type SelectabilityFunc func(path domain.Path) bool

// IsSelectable implements Selectability.
func (f SelectabilityFunc) IsSelectable(path domain.Path) bool { return f(path) }
