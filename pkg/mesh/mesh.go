// Package mesh turns built brushes into per-material triangle buffers.
package mesh

import (
	"log"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/saiko-tech/brushmesh/pkg/brush"
	"github.com/saiko-tech/brushmesh/pkg/displacement"
	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// Surface is a triangle list sharing one material.
type Surface struct {
	Material string
	Vertices []geom.Vertex // three per triangle, counter-clockwise from outside
}

// BrushMesh is the renderable geometry of one brush.
type BrushMesh struct {
	BrushID  int
	Surfaces []Surface
}

// TriangleCount returns the number of triangles over all surfaces.
func (m *BrushMesh) TriangleCount() int {
	var n int

	for _, s := range m.Surfaces {
		n += len(s.Vertices) / 3
	}

	return n
}

// IsToolMaterial reports whether material lives under tools/, e.g. TOOLS/TOOLSNODRAW.
func IsToolMaterial(material string) bool {
	return strings.HasPrefix(strings.ToLower(strings.ReplaceAll(material, `\`, "/")), "tools/")
}

type options struct {
	tools       bool
	hiddenFaces bool
	isTool      func(material string) bool
	logger      *log.Logger
}

// Option configures meshing.
type Option func(*options)

// WithTools keeps faces with tool materials, which are dropped by default.
func WithTools(keep bool) Option {
	return func(o *options) {
		o.tools = keep
	}
}

// WithHiddenFaces keeps the plain faces of brushes that carry displacements.
// The engine does not draw them.
func WithHiddenFaces(keep bool) Option {
	return func(o *options) {
		o.hiddenFaces = keep
	}
}

// WithToolFilter replaces IsToolMaterial, e.g. with a check against the
// material's shader.
func WithToolFilter(isTool func(material string) bool) Option {
	return func(o *options) {
		o.isTool = isTool
	}
}

// WithLogger sets the logger for displacement fallbacks.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// FromBrush triangulates every visible face of b.
// A displacement that cannot be expanded is logged and drawn as its flat face.
func FromBrush(b *brush.Brush, opts ...Option) *BrushMesh {
	o := options{
		isTool: IsToolMaterial,
		logger: log.Default(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	out := &BrushMesh{BrushID: b.ID}
	bySurface := make(map[string]int)
	hasDisp := b.HasDisplacement()

	for i, f := range b.Shape.Faces {
		side := f.Payload

		if hasDisp && side.DispInfo == nil && !o.hiddenFaces {
			continue
		}

		if !o.tools && o.isTool(side.Material) {
			continue
		}

		corners := b.Shape.FaceVertices(i)
		normal := faceNormal(side, corners)

		var verts []geom.Vertex

		if side.DispInfo != nil {
			var err error

			verts, err = tessellate(side, corners, normal)
			if err != nil {
				o.logger.Printf("brush %d: side %d: drawing flat face: %v", b.ID, side.ID, err)
			}
		}

		if verts == nil {
			verts = fan(side, corners, normal)
		}

		si, ok := bySurface[side.Material]
		if !ok {
			si = len(out.Surfaces)
			bySurface[side.Material] = si
			out.Surfaces = append(out.Surfaces, Surface{Material: side.Material})
		}

		out.Surfaces[si].Vertices = append(out.Surfaces[si].Vertices, verts...)
	}

	return out
}

func faceNormal(side *vmf.Side, corners []mgl32.Vec3) mgl32.Vec3 {
	if pl, err := side.Plane(); err == nil {
		return pl.Normal
	}

	return corners[1].Sub(corners[0]).Cross(corners[2].Sub(corners[0])).Normalize()
}

func tessellate(side *vmf.Side, corners []mgl32.Vec3, normal mgl32.Vec3) ([]geom.Vertex, error) {
	q, err := displacement.NewQuad(corners, normal, side.UAxis, side.VAxis)
	if err != nil {
		return nil, err
	}

	return displacement.Tessellate(q, *side.DispInfo)
}

// fan splits a convex loop into triangles around its first vertex.
func fan(side *vmf.Side, corners []mgl32.Vec3, normal mgl32.Vec3) []geom.Vertex {
	out := make([]geom.Vertex, 0, 3*(len(corners)-2))

	vertex := func(p mgl32.Vec3) geom.Vertex {
		return geom.Vertex{
			Position: p,
			Normal:   normal,
			UV:       geom.Project(side.UAxis, side.VAxis, p),
			Alpha:    1,
		}
	}

	for i := 1; i+1 < len(corners); i++ {
		out = append(out, vertex(corners[0]), vertex(corners[i]), vertex(corners[i+1]))
	}

	return out
}
