// Package scene models 3D annotation scenes: a document of typed streams
// (images, point clouds, frames of reference, camera parameters), the
// rigid-transform graph connecting sensor frames to the world, and
// point-cloud loading for capture events.
package scene

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrFrameNotFound reports a lookup of an unknown frame of reference.
var ErrFrameNotFound = errors.New("frame of reference not found")

// FrameOfReference is one rigid coordinate frame. Its rotation and
// position map local coordinates into the parent frame; a frame with an
// empty ParentID is a root whose parent is the world.
type FrameOfReference struct {
	ID       string
	ParentID string
	Position [3]float64
	Rotation *mat.Dense // 3x3, assumed orthonormal; nil means identity
}

// Matrix returns the 4x4 homogeneous local-to-parent transform.
func (f *FrameOfReference) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	if f.Rotation == nil {
		for i := 0; i < 3; i++ {
			m.Set(i, i, 1)
		}
	} else {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				m.Set(r, c, f.Rotation.At(r, c))
			}
		}
	}
	for i := 0; i < 3; i++ {
		m.Set(i, 3, f.Position[i])
	}
	m.Set(3, 3, 1)
	return m
}

// FORGraph is a forest of frames of reference keyed by id. It is built
// once from scene data and is read-only afterwards; every query is pure.
type FORGraph struct {
	frames map[string]*FrameOfReference
}

// NewFORGraph builds a graph from the given frames. Duplicate ids and
// dangling parent references are rejected.
func NewFORGraph(frames []*FrameOfReference) (*FORGraph, error) {
	g := &FORGraph{frames: make(map[string]*FrameOfReference, len(frames))}
	for _, f := range frames {
		if f.ID == "" {
			return nil, fmt.Errorf("frame of reference with empty id")
		}
		if _, dup := g.frames[f.ID]; dup {
			return nil, fmt.Errorf("duplicate frame of reference id %q", f.ID)
		}
		g.frames[f.ID] = f
	}
	for _, f := range g.frames {
		if f.ParentID == "" {
			continue
		}
		if _, ok := g.frames[f.ParentID]; !ok {
			return nil, fmt.Errorf("frame %q references unknown parent %q: %w", f.ID, f.ParentID, ErrFrameNotFound)
		}
	}
	return g, nil
}

// Frame returns the frame with the given id.
func (g *FORGraph) Frame(id string) (*FrameOfReference, bool) {
	f, ok := g.frames[id]
	return f, ok
}

// TransformToWorld composes the local-to-world transform for the given
// frame by walking its parent chain to the root. Matrices multiply in
// root-to-leaf order: each frame's matrix maps its own local coordinates
// into its parent's.
func (g *FORGraph) TransformToWorld(id string) (*mat.Dense, error) {
	chain, err := g.chainToRoot(id)
	if err != nil {
		return nil, err
	}

	// chain is leaf-first; accumulate from the root down.
	world := identity4()
	for i := len(chain) - 1; i >= 0; i-- {
		var next mat.Dense
		next.Mul(world, chain[i].Matrix())
		world = &next
	}
	return world, nil
}

// TransformBetween returns the transform that maps coordinates expressed
// in frame a into frame b: inverse(toWorld(b)) * toWorld(a).
func (g *FORGraph) TransformBetween(a, b string) (*mat.Dense, error) {
	wa, err := g.TransformToWorld(a)
	if err != nil {
		return nil, err
	}
	wb, err := g.TransformToWorld(b)
	if err != nil {
		return nil, err
	}

	var inv mat.Dense
	if err := inv.Inverse(wb); err != nil {
		return nil, fmt.Errorf("inverting world transform of frame %q: %w", b, err)
	}
	var out mat.Dense
	out.Mul(&inv, wa)
	return &out, nil
}

// TransformPointsToWorld maps points expressed in the given frame's local
// coordinates into world coordinates.
func (g *FORGraph) TransformPointsToWorld(points [][3]float64, frameID string) ([][3]float64, error) {
	world, err := g.TransformToWorld(frameID)
	if err != nil {
		return nil, err
	}
	out := make([][3]float64, len(points))
	for i, p := range points {
		out[i] = applyHomogeneous(world, p)
	}
	return out, nil
}

// chainToRoot collects the frames from id up to (and including) its root.
// A visited set guards against malformed cyclic data.
func (g *FORGraph) chainToRoot(id string) ([]*FrameOfReference, error) {
	f, ok := g.frames[id]
	if !ok {
		return nil, fmt.Errorf("frame %q: %w", id, ErrFrameNotFound)
	}

	var chain []*FrameOfReference
	visited := map[string]bool{}
	for f != nil {
		if visited[f.ID] {
			return nil, fmt.Errorf("frame of reference cycle through %q", f.ID)
		}
		visited[f.ID] = true
		chain = append(chain, f)
		if f.ParentID == "" {
			break
		}
		f = g.frames[f.ParentID]
	}
	return chain, nil
}

func identity4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

func applyHomogeneous(t *mat.Dense, p [3]float64) [3]float64 {
	return [3]float64{
		t.At(0, 0)*p[0] + t.At(0, 1)*p[1] + t.At(0, 2)*p[2] + t.At(0, 3),
		t.At(1, 0)*p[0] + t.At(1, 1)*p[1] + t.At(1, 2)*p[2] + t.At(1, 3),
		t.At(2, 0)*p[0] + t.At(2, 1)*p[1] + t.At(2, 2)*p[2] + t.At(2, 3),
	}
}
