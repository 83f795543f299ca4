package label

import (
	"fmt"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	"github.com/gridline-ai/gridline-go/geometry"
	"github.com/gridline-ai/gridline-go/ontology"
)

// Coordinates is the closed set of geometric payloads an object
// placement can carry, one variant per ontology shape. Audio and text
// objects carry no coordinates; their placement is the range itself.
type Coordinates interface {
	Shape() ontology.Shape
}

// BoundingBox is an axis-aligned box. All values are normalised to the
// media dimensions, so 0.5 is half the width or height.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (BoundingBox) Shape() ontology.Shape { return ontology.ShapeBoundingBox }

// RotatableBoundingBox is a bounding box rotated by Theta degrees
// clockwise around its centre.
type RotatableBoundingBox struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Theta float64 `json:"theta"`
}

func (RotatableBoundingBox) Shape() ontology.Shape { return ontology.ShapeRotatableBoundingBox }

// Vertex is one normalised 2D point of a polygon or polyline.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a closed region described by its vertices in order.
type Polygon struct {
	Vertices []Vertex
}

func (Polygon) Shape() ontology.Shape { return ontology.ShapePolygon }

// Polyline is an open chain of vertices.
type Polyline struct {
	Vertices []Vertex
}

func (Polyline) Shape() ontology.Shape { return ontology.ShapePolyline }

// Point is a single normalised keypoint.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (Point) Shape() ontology.Shape { return ontology.ShapePoint }

// Bitmask is a run-length-encoded pixel mask positioned on the frame.
// Width and Height must match the media dimensions of the frame the mask
// is placed on; this is checked at serialization time.
type Bitmask struct {
	RLEString string `json:"rleString"`
	Top       int64  `json:"top"`
	Left      int64  `json:"left"`
	Width     int64  `json:"width"`
	Height    int64  `json:"height"`
}

func (Bitmask) Shape() ontology.Shape { return ontology.ShapeBitmask }

// Cuboid is a 3D box in scene-space world coordinates: centre position,
// full extents, and intrinsic XYZ Euler rotation in radians.
type Cuboid struct {
	Position [3]float64 `json:"position"`
	Size     [3]float64 `json:"size"`
	Rotation [3]float64 `json:"rotation"`
}

func (Cuboid) Shape() ontology.Shape { return ontology.ShapeCuboid }

// RotationMatrix returns the cuboid's 3x3 rotation matrix.
func (c Cuboid) RotationMatrix() *mat.Dense {
	return geometry.EulerToRotationMatrix(c.Rotation[0], c.Rotation[1], c.Rotation[2])
}

// Geometry converts the cuboid into its geometry-package form for
// containment tests.
func (c Cuboid) Geometry() geometry.Cuboid {
	return geometry.Cuboid{
		Center:   c.Position,
		Size:     c.Size,
		Rotation: c.RotationMatrix(),
	}
}

// ContainsPoint reports whether a world point lies inside the cuboid,
// boundary included.
func (c Cuboid) ContainsPoint(p [3]float64, margin float64) bool {
	return geometry.PointInCuboid(p, c.Geometry(), margin)
}

// coordinatesWireKey returns the JSON key a shape's coordinates are
// stored under, or false for shapes that carry none (audio, text).
func coordinatesWireKey(s ontology.Shape) (string, bool) {
	switch s {
	case ontology.ShapeBoundingBox:
		return "boundingBox", true
	case ontology.ShapeRotatableBoundingBox:
		return "rotatableBoundingBox", true
	case ontology.ShapePolygon:
		return "polygon", true
	case ontology.ShapePolyline:
		return "polyline", true
	case ontology.ShapePoint:
		return "point", true
	case ontology.ShapeBitmask:
		return "bitmask", true
	case ontology.ShapeCuboid:
		return "cuboid", true
	default:
		return "", false
	}
}

func encodeCoordinates(c Coordinates) (json.RawMessage, error) {
	var payload any
	switch v := c.(type) {
	case BoundingBox:
		payload = v
	case RotatableBoundingBox:
		payload = v
	case Polygon:
		payload = v.Vertices
	case Polyline:
		payload = v.Vertices
	case Point:
		payload = v
	case Bitmask:
		payload = v
	case Cuboid:
		payload = v
	default:
		return nil, fmt.Errorf("%w: unsupported coordinates type %T", ErrValidation, c)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s coordinates: %w", c.Shape(), err)
	}
	return raw, nil
}

func decodeCoordinates(shape ontology.Shape, raw json.RawMessage) (Coordinates, error) {
	fail := func(err error) (Coordinates, error) {
		return nil, fmt.Errorf("%w: %s coordinates: %v", ErrFormat, shape, err)
	}
	switch shape {
	case ontology.ShapeBoundingBox:
		var v BoundingBox
		if err := json.Unmarshal(raw, &v); err != nil {
			return fail(err)
		}
		return v, nil
	case ontology.ShapeRotatableBoundingBox:
		var v RotatableBoundingBox
		if err := json.Unmarshal(raw, &v); err != nil {
			return fail(err)
		}
		return v, nil
	case ontology.ShapePolygon:
		var vs []Vertex
		if err := json.Unmarshal(raw, &vs); err != nil {
			return fail(err)
		}
		return Polygon{Vertices: vs}, nil
	case ontology.ShapePolyline:
		var vs []Vertex
		if err := json.Unmarshal(raw, &vs); err != nil {
			return fail(err)
		}
		return Polyline{Vertices: vs}, nil
	case ontology.ShapePoint:
		var v Point
		if err := json.Unmarshal(raw, &v); err != nil {
			return fail(err)
		}
		return v, nil
	case ontology.ShapeBitmask:
		var v Bitmask
		if err := json.Unmarshal(raw, &v); err != nil {
			return fail(err)
		}
		return v, nil
	case ontology.ShapeCuboid:
		var v Cuboid
		if err := json.Unmarshal(raw, &v); err != nil {
			return fail(err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: shape %q carries no coordinates", ErrFormat, shape)
	}
}
