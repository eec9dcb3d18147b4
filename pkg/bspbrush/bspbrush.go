// Package bspbrush recovers brush solids from a compiled BSP so they can be
// rebuilt and meshed like VMF solids.
package bspbrush

import (
	"archive/zip"
	"log"
	"strings"

	"github.com/galaco/bsp"
	"github.com/galaco/bsp/lumps"
	brushprim "github.com/galaco/bsp/primitives/brush"
	"github.com/galaco/bsp/primitives/brushside"
	"github.com/galaco/bsp/primitives/plane"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// NoDrawMaterial is assigned to sides without texture info.
const NoDrawMaterial = "tools/toolsnodraw"

// Texture is the surface data of one texinfo entry.
// S and T are texel axes: xyz direction in texels per unit, w offset.
type Texture struct {
	Name string
	S, T [4]float32
}

// Lumps holds the BSP lumps brush solids are recovered from.
type Lumps struct {
	Brushes    []brushprim.Brush
	BrushSides []brushside.BrushSide
	Planes     []plane.Plane
	Textures   []Texture // indexed by texinfo
}

// Map is a compiled map reduced to what meshing needs.
type Map struct {
	Solids      []vmf.Solid
	Entities    []vmf.Entity
	StaticProps []string    // model paths of the static prop dictionary
	Pakfile     *zip.Reader // embedded files, for assets.FileSystem.AddZip
}

// ReadFromFile loads the BSP at path. Malformed entity keys are logged.
func ReadFromFile(path string, logger *log.Logger) (*Map, error) {
	bspfile, err := bsp.ReadFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read bsp %q", path)
	}

	l := Lumps{
		Brushes:    bspfile.Lump(bsp.LumpBrushes).(*lumps.Brush).GetData(),
		BrushSides: bspfile.Lump(bsp.LumpBrushSides).(*lumps.BrushSide).GetData(),
		Planes:     bspfile.Lump(bsp.LumpPlanes).(*lumps.Planes).GetData(),
		Textures:   textures(bspfile),
	}

	solids, err := Solids(l)
	if err != nil {
		return nil, errors.Wrapf(err, "bsp %q", path)
	}

	return &Map{
		Solids:      solids,
		Entities:    parseEntities(bspfile.Lump(bsp.LumpEntities).(*lumps.EntData).GetData(), logger),
		StaticProps: bspfile.Lump(bsp.LumpGame).(*lumps.Game).GetData().GetStaticPropLump().DictLump.Name,
		Pakfile:     bspfile.Lump(bsp.LumpPakfile).(*lumps.Pakfile).GetData(),
	}, nil
}

func textures(bspfile *bsp.Bsp) []Texture {
	var (
		texInfos    = bspfile.Lump(bsp.LumpTexInfo).(*lumps.TexInfo).GetData()
		texDatas    = bspfile.Lump(bsp.LumpTexData).(*lumps.TexData).GetData()
		stringTable = bspfile.Lump(bsp.LumpTexDataStringTable).(*lumps.TexDataStringTable).GetData()
		stringData  = bspfile.Lump(bsp.LumpTexDataStringData).(*lumps.TexDataStringData).GetData()
	)

	out := make([]Texture, len(texInfos))

	for i, ti := range texInfos {
		out[i].S = ti.TextureVecsTexelsPerWorldUnits[0]
		out[i].T = ti.TextureVecsTexelsPerWorldUnits[1]

		if ti.TexData < 0 || int(ti.TexData) >= len(texDatas) {
			continue
		}

		id := texDatas[ti.TexData].NameStringTableID
		if id < 0 || int(id) >= len(stringTable) {
			continue
		}

		out[i].Name = stringAt(stringData, int(stringTable[id]))
	}

	return out
}

func stringAt(data string, offset int) string {
	if offset < 0 || offset >= len(data) {
		return ""
	}

	s := data[offset:]
	if end := strings.IndexByte(s, 0); end >= 0 {
		s = s[:end]
	}

	return s
}

// Solids converts every brush whose contents are visible to shots into a
// solid. Bevel sides are left out; the solid ID is the brush index.
func Solids(l Lumps) ([]vmf.Solid, error) {
	var out []vmf.Solid

	for i, b := range l.Brushes {
		if b.Contents&bsp.MASK_SHOT_HULL == 0 {
			continue
		}

		if b.FirstSide < 0 || int(b.FirstSide+b.NumSides) > len(l.BrushSides) {
			return nil, errors.Errorf("brush %d: sides %d+%d out of range", i, b.FirstSide, b.NumSides)
		}

		solid := vmf.Solid{ID: i}

		for j := b.FirstSide; j < b.FirstSide+b.NumSides; j++ {
			bs := l.BrushSides[j]
			if bs.Bevel&0xff != 0 {
				continue
			}

			if int(bs.PlaneNum) >= len(l.Planes) {
				return nil, errors.Errorf("brush %d: side %d: plane %d out of range", i, j, bs.PlaneNum)
			}

			solid.Sides = append(solid.Sides, side(int(j), l.Planes[bs.PlaneNum], texture(l.Textures, int(bs.TexInfo))))
		}

		out = append(out, solid)
	}

	return out, nil
}

func texture(textures []Texture, texInfo int) Texture {
	if texInfo < 0 || texInfo >= len(textures) {
		return Texture{Name: NoDrawMaterial}
	}

	t := textures[texInfo]
	if t.Name == "" {
		t.Name = NoDrawMaterial
	}

	return t
}

func side(id int, pl plane.Plane, t Texture) vmf.Side {
	return vmf.Side{
		ID:       id,
		Points:   planePoints(geom.PlaneFromNormalDistance(pl.Normal, pl.Distance)),
		Material: strings.ToLower(t.Name),
		UAxis:    texelAxis(t.S),
		VAxis:    texelAxis(t.T),
	}
}

// planePoints returns three points on pl in Hammer's winding, so that
// geom.PlaneFromPoints gives back pl's normal.
func planePoints(pl geom.Plane) [3]mgl32.Vec3 {
	ref := mgl32.Vec3{0, 0, 1}
	if mgl32.Abs(pl.Normal.Z()) > 0.9 {
		ref = mgl32.Vec3{1, 0, 0}
	}

	t1 := ref.Cross(pl.Normal).Normalize()
	t2 := pl.Normal.Cross(t1)

	// (p2-p0) x (p1-p0) = t1 x t2 = n
	return [3]mgl32.Vec3{pl.Point, pl.Point.Add(t2), pl.Point.Add(t1)}
}

// texelAxis maps a texinfo vector onto an axis giving u in texels:
// dot(pos, v) + w.
func texelAxis(v [4]float32) geom.UVAxis {
	dir := mgl32.Vec3{v[0], v[1], v[2]}

	lenSqr := dir.LenSqr()
	if lenSqr == 0 {
		return geom.UVAxis{Dir: mgl32.Vec3{1, 0, 0}, Scale: 1}
	}

	return geom.UVAxis{Dir: dir, Scale: 1 / lenSqr, Translation: v[3]}
}
