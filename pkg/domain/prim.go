package domain

// NodeKind names the kind of host node created for a prim.
type NodeKind string

const (
	// NodeKindProxy is the proxy shape's own root transform.
	NodeKindProxy NodeKind = "proxyRoot"
	// NodeKindGroup is a lightweight, non animatable node used for Scope prims.
	NodeKindGroup NodeKind = "group"
	// NodeKindTransform is the full transform node, driven by time and stage data.
	NodeKindTransform NodeKind = "usdTransform"
)

// Plug is a live data source a shadow node can be connected to.
type Plug string

const (
	PlugTime      Plug = "time"
	PlugStageData Plug = "stageData"
)

// ScopeType is the schema type name of the non transforming grouping prim.
const ScopeType = "Scope"

// Prim is the read only view of a stage prim this package needs.
type Prim struct {
	Path     Path   `json:"path" yaml:"path"`
	TypeName string `json:"type" yaml:"type"`

	// CustomTransformType, when set, names the node kind to create instead of
	// the default transform.
	CustomTransformType string `json:"transform_type,omitempty" yaml:"transform_type,omitempty"`

	// Transformable reports whether the prim's schema can carry a transform.
	Transformable bool `json:"transformable" yaml:"transformable"`

	Unselectable bool `json:"unselectable,omitempty" yaml:"unselectable,omitempty"`
	HasPayload   bool `json:"payload,omitempty" yaml:"payload,omitempty"`
	Loaded       bool `json:"loaded,omitempty" yaml:"loaded,omitempty"`
}

// IsValid reports whether p refers to an actual prim.
func (p Prim) IsValid() bool {
	return !p.Path.IsEmpty() && !p.Path.IsRoot()
}

// Name returns the prim's own name.
func (p Prim) Name() string { return p.Path.Name() }

// IsScope reports whether the prim is a non transforming grouping prim.
func (p Prim) IsScope() bool { return p.TypeName == ScopeType }

// NodeKind picks the kind of shadow node for the prim.
func (p Prim) NodeKind() NodeKind {
	switch {
	case p.CustomTransformType != "":
		return NodeKind(p.CustomTransformType)
	case p.IsScope():
		return NodeKindGroup
	default:
		return NodeKindTransform
	}
}

var transformableTypes = map[string]bool{
	"Xform":          true,
	"Mesh":           true,
	"Camera":         true,
	"Sphere":         true,
	"Cube":           true,
	"Cone":           true,
	"Cylinder":       true,
	"Capsule":        true,
	"Points":         true,
	"PointInstancer": true,
	"BasisCurves":    true,
	"NurbsCurves":    true,
	"NurbsPatch":     true,
	"SkelRoot":       true,
	"DistantLight":   true,
	"SphereLight":    true,
	"RectLight":      true,
}

// IsTransformableType reports whether typeName is a known transformable schema.
func IsTransformableType(typeName string) bool {
	return transformableTypes[typeName]
}
