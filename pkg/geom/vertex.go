package geom

import "github.com/go-gl/mathgl/mgl32"

// Vertex is a fully attributed mesh vertex.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Alpha    float32 // 0..1, 1 for non-displacement faces
}
