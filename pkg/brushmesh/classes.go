package brushmesh

import (
	"strings"

	"github.com/saiko-tech/brushmesh/pkg/fgd"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// Brush entities merged into the world by the compiler. They do not take
// the render keyvalues but are drawn like world brushes.
var worldBrushClasses = map[string]bool{
	"func_detail": true,
}

// rendered reports whether the brushes of an entity of class are drawn.
// Brush entities declaring a render mode are drawn; other brush entities
// such as triggers and area portals are not. Unknown classes are drawn.
func rendered(defs *fgd.Definitions, class string) bool {
	c, ok := defs.Class(class)
	if !ok || c.Type != fgd.SolidClass || worldBrushClasses[strings.ToLower(class)] {
		return true
	}

	_, ok = defs.Property(class, "rendermode")

	return ok
}

// checkClasses logs entities whose class the definitions do not know.
func checkClasses(entities []vmf.Entity, o options) {
	if o.defs == nil {
		return
	}

	for _, e := range entities {
		if _, ok := o.defs.Class(e.ClassName); !ok {
			o.logger.Printf("entity %d: unknown class %q", e.ID, e.ClassName)
		}
	}
}

// visibleSolids returns the world solids followed by the solids of brush
// entities that are drawn, along with the IDs of the entities left out.
func visibleSolids(doc *vmf.Map, o options) ([]vmf.Solid, []int) {
	if o.defs == nil {
		return doc.Solids(), nil
	}

	var (
		solids = append([]vmf.Solid(nil), doc.World.Solids...)
		hidden []int
	)

	for _, e := range doc.Entities {
		if len(e.Solids) == 0 {
			continue
		}

		if !rendered(o.defs, e.ClassName) {
			o.logger.Printf("skipping entity %d (%s): not rendered", e.ID, e.ClassName)
			hidden = append(hidden, e.ID)

			continue
		}

		solids = append(solids, e.Solids...)
	}

	return solids, hidden
}
