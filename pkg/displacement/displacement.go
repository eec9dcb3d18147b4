// Package displacement expands displacement-tagged brush faces into
// deformed triangle grids.
package displacement

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// cornerTolerance is the largest distance at which a quad corner still
// matches the declared start position.
const cornerTolerance = 0.1

// ErrNotQuad is returned for a displacement face that does not have four corners.
var ErrNotQuad = errors.New("displacement face is not a quad")

// CornerMismatchError means no corner of the quad lies at the start position.
type CornerMismatchError struct {
	Start mgl32.Vec3
}

func (e CornerMismatchError) Error() string {
	return fmt.Sprintf("no quad corner matches displacement start position %v", e.Start)
}

// Quad is the flat face a displacement is laid over.
type Quad struct {
	Corners [4]mgl32.Vec3 // loop order
	Normal  mgl32.Vec3    // unit, outward
	UAxis   geom.UVAxis
	VAxis   geom.UVAxis
}

// NewQuad checks that corners has exactly four entries.
func NewQuad(corners []mgl32.Vec3, normal mgl32.Vec3, u, v geom.UVAxis) (Quad, error) {
	if len(corners) != 4 {
		return Quad{}, errors.Wrapf(ErrNotQuad, "%d corners", len(corners))
	}

	q := Quad{Normal: normal, UAxis: u, VAxis: v}
	copy(q.Corners[:], corners)

	return q, nil
}

// Repair returns a copy of info with usable normals and distances.
//
// A zero normal becomes the face normal at distance 0. A normal pointing
// into the solid is flipped along with its distance. A non-unit normal is
// normalized and its distance scaled by the old length. The grids of info
// must already be validated.
func Repair(info vmf.DispInfo, faceNormal mgl32.Vec3) vmf.DispInfo {
	normals := make([][]mgl32.Vec3, len(info.Normals))
	distances := make([][]float32, len(info.Distances))

	for r := range info.Normals {
		normals[r] = append([]mgl32.Vec3(nil), info.Normals[r]...)
		distances[r] = append([]float32(nil), info.Distances[r]...)

		for c := range normals[r] {
			n := &normals[r][c]
			d := &distances[r][c]

			if n.LenSqr() == 0 {
				*n = faceNormal
				*d = 0
			}

			if n.Dot(faceNormal) < 0 {
				*n = n.Mul(-1)
				*d = -*d
			}

			if n.LenSqr() != 1 {
				l := n.Len()
				*n = n.Mul(1 / l)
				*d *= l
			}
		}
	}

	info.Normals = normals
	info.Distances = distances

	return info
}

// orient rotates the quad so that the corner at start comes first.
func orient(q Quad, start mgl32.Vec3) ([4]mgl32.Vec3, error) {
	best := -1

	var bestDist float32

	for i, c := range q.Corners {
		d := c.Sub(start).Len()
		if d <= cornerTolerance && (best < 0 || d < bestDist) {
			best = i
			bestDist = d
		}
	}

	var out [4]mgl32.Vec3

	if best < 0 {
		return out, CornerMismatchError{Start: start}
	}

	for i := range out {
		out[i] = q.Corners[(best+i)%4]
	}

	return out, nil
}

func lerp(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

// Tessellate expands q into a triangle list, two triangles per grid cell.
//
// The corner after the start position is the row corner, the one after it
// the opposite corner and the last the column corner. Texture coordinates
// are projected from the undisplaced grid position so the texture does not
// stretch with the terrain.
func Tessellate(q Quad, info vmf.DispInfo) ([]geom.Vertex, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	corners, err := orient(q, info.StartPosition)
	if err != nil {
		return nil, err
	}

	info = Repair(info, q.Normal)

	var (
		size  = info.Size()
		steps = float32(size - 1)
		grid  = make([]geom.Vertex, size*size)
	)

	for r := 0; r < size; r++ {
		rf := float32(r) / steps
		rowStart := lerp(corners[0], corners[1], rf)
		rowEnd := lerp(corners[3], corners[2], rf)

		for c := 0; c < size; c++ {
			base := lerp(rowStart, rowEnd, float32(c)/steps)
			n := info.Normals[r][c]

			grid[r*size+c] = geom.Vertex{
				Position: base.Add(info.Offsets[r][c]).Add(n.Mul(info.Distances[r][c] + info.Elevation)),
				Normal:   n,
				UV:       geom.Project(q.UAxis, q.VAxis, base),
				Alpha:    float32(info.Alphas[r][c]) / 255,
			}
		}
	}

	// the grid's handedness depends on the loop direction of the source face
	flip := corners[3].Sub(corners[0]).Cross(corners[1].Sub(corners[0])).Dot(q.Normal) < 0

	out := make([]geom.Vertex, 0, (size-1)*(size-1)*6)

	tri := func(a, b, c int) {
		if flip {
			b, c = c, b
		}

		out = append(out, grid[a], grid[b], grid[c])
	}

	for r := 0; r < size-1; r++ {
		for c := 0; c < size-1; c++ {
			i := r*size + c

			tri(i, i+1, i+size)
			tri(i+size, i+1, i+size+1)
		}
	}

	return out, nil
}
