// Package ontology holds the read-only annotation vocabulary: objects,
// classifications, attributes, and options, indexed by feature hash. It
// resolves the feature hashes found in label data back to typed nodes;
// it never mutates the ontology itself.
package ontology

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrNodeNotFound reports a feature hash that resolves to nothing.
var ErrNodeNotFound = errors.New("ontology node not found")

// Kind discriminates the node variants.
type Kind int

const (
	KindObject Kind = iota
	KindClassification
	KindAttribute
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindClassification:
		return "classification"
	case KindAttribute:
		return "attribute"
	case KindOption:
		return "option"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is one ontology tree node. The concrete types are *Object,
// *Classification, *Attribute, and *Option; switch on Kind() (or the
// concrete type) to dispatch.
type Node interface {
	Kind() Kind
	FeatureHash() string
}

// Shape is the geometric form an object annotation takes.
type Shape string

const (
	ShapeBoundingBox          Shape = "bounding_box"
	ShapeRotatableBoundingBox Shape = "rotatable_bounding_box"
	ShapePolygon              Shape = "polygon"
	ShapePolyline             Shape = "polyline"
	ShapePoint                Shape = "point"
	ShapeBitmask              Shape = "bitmask"
	ShapeCuboid               Shape = "cuboid"
	ShapeAudio                Shape = "audio"
	ShapeText                 Shape = "text"
)

// AttributeType is the answer form an attribute takes.
type AttributeType string

const (
	AttributeRadio     AttributeType = "radio"
	AttributeChecklist AttributeType = "checklist"
	AttributeText      AttributeType = "text"
)

// Object is an ontology object definition (a thing that gets drawn).
type Object struct {
	UID             string       `json:"id"`
	Name            string       `json:"name"`
	Color           string       `json:"color"`
	Shape           Shape        `json:"shape"`
	FeatureNodeHash string       `json:"featureNodeHash"`
	Attributes      []*Attribute `json:"attributes,omitempty"`
}

func (o *Object) Kind() Kind          { return KindObject }
func (o *Object) FeatureHash() string { return o.FeatureNodeHash }

// Classification is an ontology classification definition (a frame or
// row level question). Its first attribute carries the question.
type Classification struct {
	UID             string       `json:"id"`
	FeatureNodeHash string       `json:"featureNodeHash"`
	Attributes      []*Attribute `json:"attributes"`
}

func (c *Classification) Kind() Kind          { return KindClassification }
func (c *Classification) FeatureHash() string { return c.FeatureNodeHash }

// Attribute is a question attached to an object or classification.
// Radio and checklist attributes carry options; text attributes do not.
// Dynamic attributes can be answered per frame range instead of once.
type Attribute struct {
	UID             string        `json:"id"`
	Name            string        `json:"name"`
	Type            AttributeType `json:"type"`
	FeatureNodeHash string        `json:"featureNodeHash"`
	Required        bool          `json:"required"`
	Dynamic         bool          `json:"dynamic,omitempty"`
	Options         []*Option     `json:"options,omitempty"`
}

func (a *Attribute) Kind() Kind          { return KindAttribute }
func (a *Attribute) FeatureHash() string { return a.FeatureNodeHash }

// Option is one selectable answer of a radio or checklist attribute.
// Radio options may nest further attributes.
type Option struct {
	UID             string       `json:"id"`
	Label           string       `json:"label"`
	Value           string       `json:"value"`
	FeatureNodeHash string       `json:"featureNodeHash"`
	Nested          []*Attribute `json:"options,omitempty"`
}

func (o *Option) Kind() Kind          { return KindOption }
func (o *Option) FeatureHash() string { return o.FeatureNodeHash }

// Structure is the full ontology tree with a feature-hash index over
// every node, nested ones included.
type Structure struct {
	Objects         []*Object         `json:"objects"`
	Classifications []*Classification `json:"classifications"`

	index map[string]Node
}

// NewStructure builds a structure and its feature-hash index. Duplicate
// feature hashes are rejected.
func NewStructure(objects []*Object, classifications []*Classification) (*Structure, error) {
	s := &Structure{Objects: objects, Classifications: classifications}
	if err := s.buildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseStructure decodes an ontology structure from its JSON form.
func ParseStructure(data []byte) (*Structure, error) {
	var s Structure
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse ontology structure: %w", err)
	}
	if err := s.buildIndex(); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetChildByHash resolves a feature hash to its node anywhere in the
// tree.
func (s *Structure) GetChildByHash(featureHash string) (Node, error) {
	n, ok := s.index[featureHash]
	if !ok {
		return nil, fmt.Errorf("feature hash %q: %w", featureHash, ErrNodeNotFound)
	}
	return n, nil
}

// ObjectByHash resolves a feature hash that must name an object.
func (s *Structure) ObjectByHash(featureHash string) (*Object, error) {
	n, err := s.GetChildByHash(featureHash)
	if err != nil {
		return nil, err
	}
	o, ok := n.(*Object)
	if !ok {
		return nil, fmt.Errorf("feature hash %q names a %s, not an object", featureHash, n.Kind())
	}
	return o, nil
}

// ClassificationByHash resolves a feature hash that must name a
// classification.
func (s *Structure) ClassificationByHash(featureHash string) (*Classification, error) {
	n, err := s.GetChildByHash(featureHash)
	if err != nil {
		return nil, err
	}
	c, ok := n.(*Classification)
	if !ok {
		return nil, fmt.Errorf("feature hash %q names a %s, not a classification", featureHash, n.Kind())
	}
	return c, nil
}

func (s *Structure) buildIndex() error {
	s.index = make(map[string]Node)
	add := func(n Node) error {
		hash := n.FeatureHash()
		if hash == "" {
			return fmt.Errorf("%s node with empty feature hash", n.Kind())
		}
		if prev, dup := s.index[hash]; dup {
			return fmt.Errorf("duplicate feature hash %q (%s and %s)", hash, prev.Kind(), n.Kind())
		}
		s.index[hash] = n
		return nil
	}

	var walkAttrs func(attrs []*Attribute) error
	walkAttrs = func(attrs []*Attribute) error {
		for _, a := range attrs {
			if err := add(a); err != nil {
				return err
			}
			for _, opt := range a.Options {
				if err := add(opt); err != nil {
					return err
				}
				if err := walkAttrs(opt.Nested); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, o := range s.Objects {
		if err := add(o); err != nil {
			return err
		}
		if err := walkAttrs(o.Attributes); err != nil {
			return err
		}
	}
	for _, c := range s.Classifications {
		if err := add(c); err != nil {
			return err
		}
		if err := walkAttrs(c.Attributes); err != nil {
			return err
		}
	}
	return nil
}
