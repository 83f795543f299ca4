// Package geometry provides the pure spatial primitives used by scene
// annotation: Euler-angle rotation construction and oriented-cuboid
// containment tests.
//
// Conventions: right-handed coordinates, rotations as 3x3 matrices acting
// on column vectors, angles in radians. World frame: X=right, Y=forward,
// Z=up.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EulerToRotationMatrix builds a 3x3 rotation matrix from extrinsic Euler
// angles (radians) about the fixed X, Y and Z axes, composed as
// R = Rz(rz) * Ry(ry) * Rx(rx). This matches the rotation convention of
// the platform's scene schema and cuboid coordinates.
func EulerToRotationMatrix(rx, ry, rz float64) *mat.Dense {
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)

	// Expanded product Rz*Ry*Rx, row-major.
	return mat.NewDense(3, 3, []float64{
		cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx,
		sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx,
		-sy, cy * sx, cy * cx,
	})
}

// Cuboid is an oriented box described by its centre, full edge lengths and
// a rotation from the cuboid's local frame into the world frame.
type Cuboid struct {
	Center   [3]float64
	Size     [3]float64 // full extents along the local X, Y, Z axes
	Rotation *mat.Dense // 3x3, assumed orthonormal; nil means axis-aligned
}

// PointInCuboid reports whether a single world-frame point lies inside the
// cuboid, with an optional margin added to each half-extent. The test maps
// the point into the cuboid's local frame using the transpose of the
// rotation (its inverse for orthonormal rotations) and checks each axis
// independently. Boundary points count as inside (closed inequality).
func PointInCuboid(point [3]float64, c Cuboid, margin float64) bool {
	dx := point[0] - c.Center[0]
	dy := point[1] - c.Center[1]
	dz := point[2] - c.Center[2]

	var lx, ly, lz float64
	if c.Rotation == nil {
		lx, ly, lz = dx, dy, dz
	} else {
		// R^T * d: row i of the transpose is column i of R.
		lx = c.Rotation.At(0, 0)*dx + c.Rotation.At(1, 0)*dy + c.Rotation.At(2, 0)*dz
		ly = c.Rotation.At(0, 1)*dx + c.Rotation.At(1, 1)*dy + c.Rotation.At(2, 1)*dz
		lz = c.Rotation.At(0, 2)*dx + c.Rotation.At(1, 2)*dy + c.Rotation.At(2, 2)*dz
	}

	hx := c.Size[0]/2 + margin
	hy := c.Size[1]/2 + margin
	hz := c.Size[2]/2 + margin
	return math.Abs(lx) <= hx && math.Abs(ly) <= hy && math.Abs(lz) <= hz
}

// PointsInCuboid evaluates PointInCuboid for every point and returns one
// flag per input point, in order.
func PointsInCuboid(points [][3]float64, c Cuboid, margin float64) []bool {
	inside := make([]bool, len(points))
	for i, p := range points {
		inside[i] = PointInCuboid(p, c, margin)
	}
	return inside
}
