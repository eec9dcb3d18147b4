package geom

import (
	"github.com/go-gl/mathgl/mgl32"
)

// unitTolerance is how far |Dir|² may stray from 1 before an axis counts as non-unit.
const unitTolerance = 0.1

// UVAxis is one texture axis of a brush side: "[x y z translation] scale".
type UVAxis struct {
	Dir         mgl32.Vec3
	Translation float32
	Scale       float32
}

// Project returns the texture coordinate of pos along the axis.
// Dividing by Dir·Dir compensates for a non-unit direction.
func (a UVAxis) Project(pos mgl32.Vec3) float32 {
	return pos.Dot(a.Dir)/a.Dir.Dot(a.Dir)/a.Scale + a.Translation
}

// IsUnit reports whether Dir is close enough to unit length.
func (a UVAxis) IsUnit() bool {
	d := a.Dir.LenSqr() - 1

	return d <= unitTolerance && d >= -unitTolerance
}

// Project maps pos onto texture space using the side's two axes.
func Project(u, v UVAxis, pos mgl32.Vec3) mgl32.Vec2 {
	return mgl32.Vec2{u.Project(pos), v.Project(pos)}
}
