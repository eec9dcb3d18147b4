package geom

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// ErrMalformedPlane is returned for plane points that do not span a plane.
var ErrMalformedPlane = errors.New("malformed plane: defining points are collinear")

// Plane is an infinite plane with a unit normal pointing out of the solid.
type Plane struct {
	Point  mgl32.Vec3
	Normal mgl32.Vec3
}

// PlaneFromPoints derives the outward plane of three points given in Hammer's
// winding, normalize((p2-p0) x (p1-p0)).
func PlaneFromPoints(p0, p1, p2 mgl32.Vec3) (Plane, error) {
	n := p2.Sub(p0).Cross(p1.Sub(p0))
	if n.LenSqr() == 0 {
		return Plane{}, errors.Wrapf(ErrMalformedPlane, "(%v) (%v) (%v)", p0, p1, p2)
	}

	return Plane{Point: p0, Normal: n.Normalize()}, nil
}

// PlaneFromNormalDistance returns the plane {x : x·normal = dist}.
// normal must already be unit length.
func PlaneFromNormalDistance(normal mgl32.Vec3, dist float32) Plane {
	return Plane{Point: normal.Mul(dist), Normal: normal}
}

// Distance returns the signed distance of v from the plane, positive in front.
func (pl Plane) Distance(v mgl32.Vec3) float32 {
	return pl.Normal.Dot(v.Sub(pl.Point))
}

// LinePlaneIntersection intersects the line through point with direction dir.
// ok is false if the line is parallel to the plane.
func LinePlaneIntersection(point, dir mgl32.Vec3, pl Plane) (hit mgl32.Vec3, ok bool) {
	divisor := dir.Dot(pl.Normal)
	if divisor == 0 {
		return hit, false
	}

	d := pl.Point.Sub(point).Dot(pl.Normal) / divisor

	return point.Add(dir.Mul(d)), true
}
