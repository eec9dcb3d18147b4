package mesh

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// toGLTF converts from the map's Z-up space to glTF's Y-up space.
func toGLTF(v mgl32.Vec3) [3]float32 {
	return [3]float32{v[0], v[2], -v[1]}
}

// Document builds a glTF document with one node and mesh per brush and one
// primitive per surface. Materials are shared by name.
func Document(meshes []*BrushMesh) *gltf.Document {
	doc := gltf.NewDocument()
	materials := make(map[string]int)

	for _, m := range meshes {
		if len(m.Surfaces) == 0 {
			continue
		}

		gm := &gltf.Mesh{Name: fmt.Sprintf("brush_%d", m.BrushID)}

		for _, s := range m.Surfaces {
			mi, ok := materials[s.Material]
			if !ok {
				mi = len(doc.Materials)
				materials[s.Material] = mi
				doc.Materials = append(doc.Materials, &gltf.Material{Name: s.Material})
			}

			var (
				positions = make([][3]float32, len(s.Vertices))
				normals   = make([][3]float32, len(s.Vertices))
				uvs       = make([][2]float32, len(s.Vertices))
				colors    = make([][4]uint8, len(s.Vertices))
			)

			for i, v := range s.Vertices {
				positions[i] = toGLTF(v.Position)
				normals[i] = toGLTF(v.Normal)
				uvs[i] = [2]float32{v.UV[0], v.UV[1]}

				a := uint8(mgl32.Clamp(v.Alpha, 0, 1)*255 + 0.5)
				colors[i] = [4]uint8{255, 255, 255, a}
			}

			gm.Primitives = append(gm.Primitives, &gltf.Primitive{
				Attributes: map[string]int{
					gltf.POSITION:   modeler.WritePosition(doc, positions),
					gltf.NORMAL:     modeler.WriteNormal(doc, normals),
					gltf.TEXCOORD_0: modeler.WriteTextureCoord(doc, uvs),
					gltf.COLOR_0:    modeler.WriteColor(doc, colors),
				},
				Mode:     gltf.PrimitiveTriangles,
				Material: gltf.Index(mi),
			})
		}

		doc.Meshes = append(doc.Meshes, gm)
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: gm.Name, Mesh: gltf.Index(len(doc.Meshes) - 1)})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}

	return doc
}

// WriteGLTF writes meshes to path, as binary glTF if the extension is .glb.
func WriteGLTF(path string, meshes []*BrushMesh) error {
	doc := Document(meshes)

	var err error

	if strings.EqualFold(filepath.Ext(path), ".glb") {
		err = gltf.SaveBinary(doc, path)
	} else {
		for _, b := range doc.Buffers {
			if b.URI == "" {
				b.EmbeddedResource()
			}
		}

		err = gltf.Save(doc, path)
	}

	return errors.Wrapf(err, "failed to write %q", path)
}
