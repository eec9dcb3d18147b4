package brush

import (
	"bytes"
	"log"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

var (
	top    = [3]mgl32.Vec3{{-64, 64, 64}, {64, 64, 64}, {64, -64, 64}}
	bottom = [3]mgl32.Vec3{{-64, -64, -64}, {64, -64, -64}, {64, 64, -64}}
	left   = [3]mgl32.Vec3{{-64, 64, 64}, {-64, -64, 64}, {-64, -64, -64}}
	right  = [3]mgl32.Vec3{{64, 64, -64}, {64, -64, -64}, {64, -64, 64}}
	back   = [3]mgl32.Vec3{{64, 64, 64}, {-64, 64, 64}, {-64, 64, -64}}
	front  = [3]mgl32.Vec3{{64, -64, -64}, {-64, -64, -64}, {-64, -64, 64}}

	// rises from the bottom-left edge to the top-right edge
	slope = [3]mgl32.Vec3{{-64, -64, -64}, {64, 64, 64}, {64, -64, 64}}
)

func solid(id int, planes ...[3]mgl32.Vec3) vmf.Solid {
	s := vmf.Solid{ID: id}

	for i, p := range planes {
		s.Sides = append(s.Sides, vmf.Side{
			ID:       i + 1,
			Points:   p,
			Material: "DEV/DEV_MEASUREGENERIC01",
			UAxis:    geom.UVAxis{Dir: mgl32.Vec3{1, 0, 0}, Scale: 0.25},
			VAxis:    geom.UVAxis{Dir: mgl32.Vec3{0, -1, 0}, Scale: 0.25},
		})
	}

	return s
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func faceNormal(p *geom.Polyhedron[*vmf.Side], i int) mgl32.Vec3 {
	v := p.FaceVertices(i)

	return v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Normalize()
}

func faceSideIDs(b *Brush) []int {
	ids := make([]int, 0, len(b.Shape.Faces))

	for _, f := range b.Shape.Faces {
		ids = append(ids, f.Payload.ID)
	}

	return ids
}

func TestBuild_Cube(t *testing.T) {
	t.Parallel()

	b, err := Build(solid(7, top, bottom, left, right, back, front))
	require.NoError(t, err)

	assert.Equal(t, 7, b.ID)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, faceSideIDs(b))
	assert.Equal(t, 8, b.Shape.UsedVertices())
	assert.False(t, b.HasDisplacement())

	for i, f := range b.Shape.Faces {
		require.Len(t, f.Loop, 4)

		for _, v := range b.Shape.FaceVertices(i) {
			for _, c := range v {
				assert.Equal(t, float32(64), mgl32.Abs(c), "face %d vertex %v", i, v)
			}
		}

		pl, err := f.Payload.Plane()
		require.NoError(t, err)
		assert.InDelta(t, 1, faceNormal(b.Shape, i).Dot(pl.Normal), 1e-6, "face %d is not wound outward", i)
	}
}

func TestBuild_OrderInsensitive(t *testing.T) {
	t.Parallel()

	forward, err := Build(solid(1, top, bottom, left, right, back, front))
	require.NoError(t, err)

	reversed, err := Build(solid(1, front, back, right, left, bottom, top))
	require.NoError(t, err)

	corners := func(b *Brush) map[mgl32.Vec3]int {
		out := make(map[mgl32.Vec3]int)

		for i := range b.Shape.Faces {
			for _, v := range b.Shape.FaceVertices(i) {
				out[v]++
			}
		}

		return out
	}

	assert.Equal(t, corners(forward), corners(reversed))
}

func TestBuild_Wedge(t *testing.T) {
	t.Parallel()

	// the left side only touches the wedge along an edge and is dropped
	b, err := Build(solid(3, slope, bottom, left, right, back, front))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 4, 5, 6}, faceSideIDs(b))
	assert.Equal(t, 6, b.Shape.UsedVertices())

	assert.Len(t, b.Shape.Faces[0].Loop, 4)
	assert.Len(t, b.Shape.Faces[3].Loop, 3)
	assert.Len(t, b.Shape.Faces[4].Loop, 3)
}

func TestBuild_Unclosed(t *testing.T) {
	t.Parallel()

	_, err := Build(solid(9, top, bottom), WithLogger(quietLogger()))
	require.Error(t, err)

	var unclosed UnclosedBrushError
	require.True(t, errors.As(err, &unclosed))
	assert.Equal(t, 4, unclosed.Untagged)
	assert.Contains(t, err.Error(), "brush 9")
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()

	below := geom.PlaneFromNormalDistance(mgl32.Vec3{0, 0, 1}, 0)
	above := geom.PlaneFromNormalDistance(mgl32.Vec3{0, 0, -1}, -10)

	_, err := BuildFromPlanes([]HalfSpace[int]{{Plane: below, Payload: 1}, {Plane: above, Payload: 2}})
	assert.True(t, errors.Is(err, ErrEmptyBrush), "err = %v", err)
}

func TestBuild_SkipsMalformedSide(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	collinear := [3]mgl32.Vec3{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}}

	b, err := Build(solid(4, top, bottom, collinear, left, right, back, front), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 4, 5, 6, 7}, faceSideIDs(b))
	assert.Contains(t, buf.String(), "brush 4: skipping side 3: ")
	assert.Contains(t, buf.String(), "malformed plane")
}

func TestBuild_MaxExtent(t *testing.T) {
	t.Parallel()

	// a cube larger than the seed is cut down to the seed
	big := func(e float32) vmf.Solid {
		return solid(5,
			[3]mgl32.Vec3{{-e, e, e}, {e, e, e}, {e, -e, e}},
			[3]mgl32.Vec3{{-e, -e, -e}, {e, -e, -e}, {e, e, -e}},
		)
	}

	_, err := Build(big(32), WithMaxExtent(16), WithLogger(quietLogger()))
	assert.True(t, errors.As(err, new(UnclosedBrushError)))

	p, err := BuildFromPlanes([]HalfSpace[string]{
		{Plane: geom.PlaneFromNormalDistance(mgl32.Vec3{0, 0, 1}, 0), Payload: "cap"},
	}, WithMaxExtent(16))
	assert.Nil(t, p)
	assert.True(t, errors.As(err, new(UnclosedBrushError)))
}

func TestBuildFromPlanes_Tetrahedron(t *testing.T) {
	t.Parallel()

	n := mgl32.Vec3{1, 1, 1}.Normalize()

	p, err := BuildFromPlanes([]HalfSpace[string]{
		{Plane: geom.PlaneFromNormalDistance(mgl32.Vec3{-1, 0, 0}, 0), Payload: "x"},
		{Plane: geom.PlaneFromNormalDistance(mgl32.Vec3{0, -1, 0}, 0), Payload: "y"},
		{Plane: geom.PlaneFromNormalDistance(mgl32.Vec3{0, 0, -1}, 0), Payload: "z"},
		{Plane: geom.Plane{Point: mgl32.Vec3{1, 0, 0}, Normal: n}, Payload: "slant"},
	})
	require.NoError(t, err)

	require.Len(t, p.Faces, 4)
	assert.Equal(t, 4, p.UsedVertices())

	for _, f := range p.Faces {
		assert.Len(t, f.Loop, 3, "face %q", f.Payload)
	}
}

func TestBrush_HasDisplacement(t *testing.T) {
	t.Parallel()

	s := solid(2, top, bottom, left, right, back, front)
	s.Sides[0].DispInfo = &vmf.DispInfo{Power: 2}

	b, err := Build(s)
	require.NoError(t, err)
	assert.True(t, b.HasDisplacement())
}
