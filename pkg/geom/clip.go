package geom

import (
	"github.com/pkg/errors"
)

var (
	// ErrOpenCap means the cut edges of a clip do not close into exactly one loop.
	ErrOpenCap = errors.New("cap edges do not form a single closed loop")
	// ErrNonConvexFace means a face enters and leaves the clipped half-space more than once.
	ErrNonConvexFace = errors.New("face crosses the clip plane more than twice")
)

// Clip cuts away everything in front of pl and closes the hole with a new
// face tagged payload.
//
// Vertices on the plane count as inside. A face whose remainder has fewer
// than three distinct vertices is dropped. On error p.Faces is left untouched,
// though crossing vertices may already have been appended.
func Clip[T any](p *Polyhedron[T], pl Plane, payload T) error {
	faces := make([]Face[T], 0, len(p.Faces)+1)
	capEdges := make(map[int]int)

	for fi, face := range p.Faces {
		dists := make([]float32, len(face.Loop))
		outside := 0

		for i, vi := range face.Loop {
			dists[i] = pl.Distance(p.Vertices[vi])
			if dists[i] > 0 {
				outside++
			}
		}

		switch outside {
		case 0:
			faces = append(faces, face)
			continue
		case len(face.Loop):
			continue
		}

		loop, entry, exit, err := p.split(face.Loop, dists, pl)
		if err != nil {
			return errors.Wrapf(err, "face %d", fi)
		}

		if entry != exit {
			if _, dup := capEdges[entry]; dup {
				return errors.Wrapf(ErrOpenCap, "vertex %d starts two cap edges", entry)
			}

			capEdges[entry] = exit
		}

		if len(loop) >= 3 {
			faces = append(faces, Face[T]{Payload: face.Payload, Loop: loop})
		}
	}

	if len(capEdges) > 0 {
		loop, err := stitchCap(capEdges)
		if err != nil {
			return err
		}

		if len(loop) >= 3 {
			faces = append(faces, Face[T]{Payload: payload, Loop: loop})
		}
	}

	p.Faces = faces

	return nil
}

// split trims a face that has vertices on both sides of pl. It returns the
// surviving loop and the crossing vertices where the loop enters and leaves
// the kept half-space.
func (p *Polyhedron[T]) split(loop []int, dists []float32, pl Plane) (kept []int, entry, exit int, err error) {
	n := len(loop)

	start := -1
	for i := range loop {
		if dists[(i+n-1)%n] > 0 && dists[i] <= 0 {
			start = i
			break
		}
	}

	kept = make([]int, 0, n+2)

	i := start
	for dists[i] <= 0 {
		kept = append(kept, loop[i])
		i = (i + 1) % n
	}

	end := i
	for j := end; j != start; j = (j + 1) % n {
		if dists[j] <= 0 {
			return nil, 0, 0, ErrNonConvexFace
		}
	}

	before := (start + n - 1) % n
	last := (end + n - 1) % n

	entry = p.crossing(loop[before], loop[start], dists[start], pl)
	exit = p.crossing(loop[end], loop[last], dists[last], pl)

	kept = append(append([]int{entry}, kept...), exit)

	return compactLoop(kept), entry, exit, nil
}

// crossing returns the vertex where the edge outside->inside meets pl.
// The intersection is always computed starting from the outside vertex so
// that both faces sharing the edge produce bit-identical points.
func (p *Polyhedron[T]) crossing(outside, inside int, insideDist float32, pl Plane) int {
	if insideDist == 0 {
		return inside
	}

	from := p.Vertices[outside]

	hit, ok := LinePlaneIntersection(from, p.Vertices[inside].Sub(from), pl)
	if !ok {
		// unreachable for an edge with endpoints on opposite sides
		return inside
	}

	return p.vertexIndex(hit)
}

// stitchCap walks the cap edge map from its smallest vertex back to the start.
func stitchCap(edges map[int]int) ([]int, error) {
	start := -1
	for from := range edges {
		if start < 0 || from < start {
			start = from
		}
	}

	loop := make([]int, 0, len(edges))

	for cur := start; ; {
		loop = append(loop, cur)

		next, ok := edges[cur]
		if !ok {
			return nil, errors.Wrapf(ErrOpenCap, "no cap edge leaves vertex %d", cur)
		}

		if next == start {
			break
		}

		if len(loop) == len(edges) {
			return nil, errors.Wrapf(ErrOpenCap, "walk from vertex %d does not return", start)
		}

		cur = next
	}

	if len(loop) != len(edges) {
		return nil, errors.Wrapf(ErrOpenCap, "%d of %d cap edges are off the loop", len(edges)-len(loop), len(edges))
	}

	return loop, nil
}

// compactLoop removes repeated consecutive indices, including across the wrap.
func compactLoop(loop []int) []int {
	out := make([]int, 0, len(loop))

	for _, vi := range loop {
		if len(out) > 0 && out[len(out)-1] == vi {
			continue
		}

		out = append(out, vi)
	}

	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}

	return out
}
