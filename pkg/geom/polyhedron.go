// Package geom implements half-space clipping of convex polyhedra and the
// texture projection shared by brush and displacement meshing.
package geom

import "github.com/go-gl/mathgl/mgl32"

// Face is one polygon of a Polyhedron.
// Loop indexes Polyhedron.Vertices, counter-clockwise when seen from outside.
type Face[T any] struct {
	Payload T
	Loop    []int
}

// Polyhedron is a convex solid made of a shared vertex list and tagged faces.
// Vertices are only ever appended, so after clipping some may be unreferenced.
type Polyhedron[T any] struct {
	Vertices []mgl32.Vec3
	Faces    []Face[T]
}

// NewCube returns the axis-aligned cube spanning ±halfExtent on every axis,
// all six faces tagged with payload.
func NewCube[T any](halfExtent float32, payload T) *Polyhedron[T] {
	e := halfExtent

	return &Polyhedron[T]{
		Vertices: []mgl32.Vec3{
			{-e, -e, e},
			{-e, e, e},
			{-e, -e, -e},
			{-e, e, -e},
			{e, -e, e},
			{e, e, e},
			{e, -e, -e},
			{e, e, -e},
		},
		Faces: []Face[T]{
			{Payload: payload, Loop: []int{0, 1, 3, 2}}, // -x
			{Payload: payload, Loop: []int{2, 3, 7, 6}}, // -z
			{Payload: payload, Loop: []int{6, 7, 5, 4}}, // +x
			{Payload: payload, Loop: []int{4, 5, 1, 0}}, // +z
			{Payload: payload, Loop: []int{2, 6, 4, 0}}, // -y
			{Payload: payload, Loop: []int{7, 3, 1, 5}}, // +y
		},
	}
}

// FaceVertices returns the positions of face i in loop order.
func (p *Polyhedron[T]) FaceVertices(i int) []mgl32.Vec3 {
	loop := p.Faces[i].Loop
	out := make([]mgl32.Vec3, len(loop))

	for j, vi := range loop {
		out[j] = p.Vertices[vi]
	}

	return out
}

// UsedVertices returns the number of distinct vertices referenced by faces.
func (p *Polyhedron[T]) UsedVertices() int {
	seen := make(map[int]struct{}, len(p.Vertices))

	for _, f := range p.Faces {
		for _, vi := range f.Loop {
			seen[vi] = struct{}{}
		}
	}

	return len(seen)
}

// vertexIndex returns the index of v, appending it if no vertex has exactly this value.
func (p *Polyhedron[T]) vertexIndex(v mgl32.Vec3) int {
	for i, existing := range p.Vertices {
		if existing == v {
			return i
		}
	}

	p.Vertices = append(p.Vertices, v)

	return len(p.Vertices) - 1
}
