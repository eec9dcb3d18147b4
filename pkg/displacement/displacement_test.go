package displacement

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

var up = mgl32.Vec3{0, 0, 1}

// top face of a 128 unit cube, counter-clockwise seen from above
func topQuad() Quad {
	return Quad{
		Corners: [4]mgl32.Vec3{{64, -64, 64}, {64, 64, 64}, {-64, 64, 64}, {-64, -64, 64}},
		Normal:  up,
		UAxis:   geom.UVAxis{Dir: mgl32.Vec3{1, 0, 0}, Scale: 1},
		VAxis:   geom.UVAxis{Dir: mgl32.Vec3{0, -1, 0}, Scale: 1},
	}
}

func flatInfo(power int, normal mgl32.Vec3, dist float32, alpha uint8) vmf.DispInfo {
	d := vmf.DispInfo{Power: power, StartPosition: mgl32.Vec3{-64, -64, 64}}
	size := d.Size()

	for r := 0; r < size; r++ {
		d.Normals = append(d.Normals, make([]mgl32.Vec3, size))
		d.Distances = append(d.Distances, make([]float32, size))
		d.Offsets = append(d.Offsets, make([]mgl32.Vec3, size))
		d.Alphas = append(d.Alphas, make([]uint8, size))

		for c := 0; c < size; c++ {
			d.Normals[r][c] = normal
			d.Distances[r][c] = dist
			d.Alphas[r][c] = alpha
		}
	}

	return d
}

func triangleNormal(v []geom.Vertex) mgl32.Vec3 {
	return v[1].Position.Sub(v[0].Position).Cross(v[2].Position.Sub(v[0].Position))
}

func TestTessellate_FlatRoundTrip(t *testing.T) {
	t.Parallel()

	for _, power := range []int{2, 3, 4} {
		verts, err := Tessellate(topQuad(), flatInfo(power, up, 0, 0))
		require.NoError(t, err)

		cells := 1 << power
		require.Len(t, verts, cells*cells*6)

		var area float32

		for i := 0; i < len(verts); i += 3 {
			n := triangleNormal(verts[i : i+3])
			area += n.Len() / 2

			assert.Greater(t, n.Dot(up), float32(0), "triangle %d faces inward", i/3)
		}

		assert.InDelta(t, 128*128, area, 1e-2)

		seen := make(map[mgl32.Vec3]bool)

		for _, v := range verts {
			assert.Equal(t, float32(64), v.Position.Z())
			assert.LessOrEqual(t, mgl32.Abs(v.Position.X()), float32(64))
			assert.LessOrEqual(t, mgl32.Abs(v.Position.Y()), float32(64))
			assert.Equal(t, up, v.Normal)
			assert.Equal(t, float32(0), v.Alpha)

			seen[v.Position] = true
		}

		for _, c := range topQuad().Corners {
			assert.True(t, seen[c], "corner %v missing", c)
		}
	}
}

func TestTessellate_GridOrientation(t *testing.T) {
	t.Parallel()

	verts, err := Tessellate(topQuad(), flatInfo(2, up, 0, 0))
	require.NoError(t, err)

	// first cell: (0,0) is the start corner, rows advance towards the next
	// loop corner and columns towards the previous one
	assert.Equal(t, mgl32.Vec3{-64, -64, 64}, verts[0].Position)

	cell := map[mgl32.Vec3]bool{}
	for _, v := range verts[:6] {
		cell[v.Position] = true
	}

	assert.Equal(t, map[mgl32.Vec3]bool{
		{-64, -64, 64}: true,
		{-32, -64, 64}: true,
		{-64, -32, 64}: true,
		{-32, -32, 64}: true,
	}, cell)
}

func TestTessellate_Displaced(t *testing.T) {
	t.Parallel()

	info := flatInfo(2, up, 8, 255)
	info.Elevation = 2
	info.Offsets[0][0] = mgl32.Vec3{1, 1, 1}

	verts, err := Tessellate(topQuad(), info)
	require.NoError(t, err)

	assert.Equal(t, mgl32.Vec3{-63, -63, 75}, verts[0].Position)
	assert.Equal(t, mgl32.Vec2{-64, 64}, verts[0].UV)

	for _, v := range verts[1:] {
		if v.Position == verts[0].Position {
			continue
		}

		assert.Equal(t, float32(74), v.Position.Z())
		assert.Equal(t, float32(1), v.Alpha)
		assert.Equal(t, geom.Project(topQuad().UAxis, topQuad().VAxis, v.Position.Sub(up.Mul(10))), v.UV)
	}
}

func TestTessellate_ReversedLoop(t *testing.T) {
	t.Parallel()

	q := topQuad()
	q.Corners = [4]mgl32.Vec3{q.Corners[3], q.Corners[2], q.Corners[1], q.Corners[0]}

	verts, err := Tessellate(q, flatInfo(2, up, 0, 0))
	require.NoError(t, err)

	for i := 0; i < len(verts); i += 3 {
		assert.Greater(t, triangleNormal(verts[i:i+3]).Dot(up), float32(0))
	}
}

func TestTessellate_StartTolerance(t *testing.T) {
	t.Parallel()

	info := flatInfo(2, up, 0, 0)
	info.StartPosition = mgl32.Vec3{-64.05, -64, 64.02}

	verts, err := Tessellate(topQuad(), info)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{-64, -64, 64}, verts[0].Position)

	info.StartPosition = mgl32.Vec3{0, 0, 64}

	_, err = Tessellate(topQuad(), info)

	var mismatch CornerMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, mgl32.Vec3{0, 0, 64}, mismatch.Start)
}

func TestTessellate_InvalidGrid(t *testing.T) {
	t.Parallel()

	info := flatInfo(2, up, 0, 0)
	info.Distances[2] = info.Distances[2][:3]

	_, err := Tessellate(topQuad(), info)
	assert.True(t, errors.As(err, new(vmf.GridSizeError)))
}

func TestNewQuad(t *testing.T) {
	t.Parallel()

	_, err := NewQuad([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, up, geom.UVAxis{}, geom.UVAxis{})
	assert.True(t, errors.Is(err, ErrNotQuad))

	tq := topQuad()
	q, err := NewQuad(tq.Corners[:], up, tq.UAxis, tq.VAxis)
	require.NoError(t, err)
	assert.Equal(t, tq, q)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		normal   mgl32.Vec3
		dist     float32
		wantNorm mgl32.Vec3
		wantDist float32
	}{
		{name: "valid", normal: up, dist: 5, wantNorm: up, wantDist: 5},
		{name: "zero normal", normal: mgl32.Vec3{}, dist: 5, wantNorm: up, wantDist: 0},
		{name: "inward", normal: mgl32.Vec3{0, 0, -1}, dist: 5, wantNorm: up, wantDist: -5},
		{name: "not unit", normal: mgl32.Vec3{0, 0, 2}, dist: 3, wantNorm: up, wantDist: 6},
		{name: "inward and not unit", normal: mgl32.Vec3{0, 0, -4}, dist: 3, wantNorm: up, wantDist: -12},
		{name: "tilted", normal: mgl32.Vec3{0, 3, 4}, dist: 1, wantNorm: mgl32.Vec3{0, 0.6, 0.8}, wantDist: 5},
	}
	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := flatInfo(2, tt.normal, tt.dist, 0)

			repaired := Repair(info, up)

			for r := range repaired.Normals {
				for c := range repaired.Normals[r] {
					assert.InDelta(t, 0, repaired.Normals[r][c].Sub(tt.wantNorm).Len(), 1e-6)
					assert.InDelta(t, tt.wantDist, repaired.Distances[r][c], 1e-5)
				}
			}

			// the input is left untouched
			assert.Equal(t, tt.normal, info.Normals[1][1])
			assert.Equal(t, tt.dist, info.Distances[1][1])
		})
	}
}
