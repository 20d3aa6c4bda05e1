package memory

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Stage implements ports.Stage over an in-memory prim tree.
// Safe for concurrent use.
type Stage struct {
	mu       sync.RWMutex
	prims    map[domain.Path]domain.Prim
	children map[domain.Path][]domain.Path
}

// NewStage creates a stage and adds prims in order. Parents must come first.
func NewStage(prims ...domain.Prim) (*Stage, error) {
	s := &Stage{
		prims:    make(map[domain.Path]domain.Prim),
		children: make(map[domain.Path][]domain.Path),
	}
	for _, p := range prims {
		if err := s.AddPrim(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustStage builds a stage of Xform prims from paths. Intended for tests.
func MustStage(paths ...string) *Stage {
	prims := make([]domain.Prim, 0, len(paths))
	for _, p := range paths {
		prims = append(prims, domain.Prim{Path: domain.MustParsePath(p), TypeName: "Xform", Transformable: true})
	}
	s, err := NewStage(prims...)
	if err != nil {
		panic(err)
	}
	return s
}

// AddPrim adds prim under its parent, which must already exist (or be the root).
func (s *Stage) AddPrim(prim domain.Prim) error {
	if !prim.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPath, prim.Path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := prim.Path.Parent()
	if !parent.IsRoot() {
		if _, ok := s.prims[parent]; !ok {
			return fmt.Errorf("parent of %s: %w", prim.Path, domain.ErrPrimNotFound)
		}
	}
	if _, exists := s.prims[prim.Path]; !exists {
		s.children[parent] = append(s.children[parent], prim.Path)
	}
	s.prims[prim.Path] = prim
	return nil
}

// RemovePrim deletes a prim and its descendants.
func (s *Stage) RemovePrim(path domain.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(path)
	parent := path.Parent()
	kids := s.children[parent]
	for i, c := range kids {
		if c == path {
			s.children[parent] = append(kids[:i], kids[i+1:]...)
			break
		}
	}
}

func (s *Stage) remove(path domain.Path) {
	for _, c := range s.children[path] {
		s.remove(c)
	}
	delete(s.children, path)
	delete(s.prims, path)
}

// SetLoaded marks a payload prim as loaded or unloaded.
func (s *Stage) SetLoaded(path domain.Path, loaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prims[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, domain.ErrPrimNotFound)
	}
	p.Loaded = loaded
	s.prims[path] = p
	return nil
}

// Prim implements ports.Stage.
func (s *Stage) Prim(path domain.Path) (domain.Prim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prims[path]
	return p, ok
}

// Children implements ports.Stage.
func (s *Stage) Children(path domain.Path) []domain.Prim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kids := s.children[path]
	out := make([]domain.Prim, 0, len(kids))
	for _, c := range kids {
		out = append(out, s.prims[c])
	}
	return out
}

// Len returns the number of prims.
func (s *Stage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prims)
}

// stageFile is the YAML layout of a stage description.
type stageFile struct {
	Prims []primSpec `yaml:"prims"`
}

type primSpec struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Metadata map[string]any `yaml:"metadata"`
	Children []primSpec     `yaml:"children"`
}

// primMetadata uses "mapstructure" tags to match the metadata keys of a stage file.
type primMetadata struct {
	TransformType string `mapstructure:"transform_type"`
	Transformable *bool  `mapstructure:"transformable"`
	Unselectable  bool   `mapstructure:"unselectable"`
	Payload       bool   `mapstructure:"payload"`
	Loaded        bool   `mapstructure:"loaded"`
}

// LoadStage reads a YAML stage description.
//
//	prims:
//	  - name: world
//	    type: Xform
//	    children:
//	      - name: geo
//	        type: Scope
//	        metadata: {unselectable: true}
func LoadStage(r io.Reader) (*Stage, error) {
	var file stageFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse stage: %w", err)
	}

	s, _ := NewStage()
	for _, spec := range file.Prims {
		if err := s.addSpec(domain.RootPath, spec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadStageFile reads a YAML stage description from disk.
func LoadStageFile(path string) (*Stage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stage: %w", err)
	}
	defer f.Close()
	return LoadStage(f)
}

func (s *Stage) addSpec(parent domain.Path, spec primSpec) error {
	path, err := domain.ParsePath(string(parent.Child(spec.Name)))
	if err != nil || spec.Name == "" || strings.ContainsRune(spec.Name, '/') {
		return fmt.Errorf("invalid prim name %q under %s: %w", spec.Name, parent, domain.ErrInvalidPath)
	}

	var meta primMetadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(spec.Metadata); err != nil {
		return fmt.Errorf("invalid metadata on %s: %w", path, err)
	}

	typeName := spec.Type
	if typeName == "" {
		typeName = "Xform"
	}
	transformable := domain.IsTransformableType(typeName)
	if meta.Transformable != nil {
		transformable = *meta.Transformable
	}

	prim := domain.Prim{
		Path:                path,
		TypeName:            typeName,
		CustomTransformType: meta.TransformType,
		Transformable:       transformable,
		Unselectable:        meta.Unselectable,
		HasPayload:          meta.Payload,
		Loaded:              meta.Loaded,
	}
	if err := s.AddPrim(prim); err != nil {
		return err
	}
	for _, child := range spec.Children {
		if err := s.addSpec(path, child); err != nil {
			return err
		}
	}
	return nil
}
