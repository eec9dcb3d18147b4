// Package brushmesh loads maps and rebuilds their brushes as triangle meshes.
//
// Every brush is built independently on a bounded pool of workers. A brush
// that fails to build is logged and recorded in Map.Failed; it never aborts
// the load of the whole map.
package brushmesh

import (
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/galaco/studiomodel"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/saiko-tech/brushmesh/pkg/assets"
	"github.com/saiko-tech/brushmesh/pkg/brush"
	"github.com/saiko-tech/brushmesh/pkg/bspbrush"
	"github.com/saiko-tech/brushmesh/pkg/mesh"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// BrushError is a brush that was left out of the map.
// Err already names the brush.
type BrushError struct {
	BrushID int
	Err     error
}

func (e BrushError) Error() string {
	return e.Err.Error()
}

func (e BrushError) Unwrap() error {
	return e.Err
}

// Map is a loaded map.
type Map struct {
	Brushes  []*brush.Brush // in solid order
	Failed   []BrushError   // sorted by brush ID
	Entities []vmf.Entity
	Props    map[string]*studiomodel.StudioModel // keyed by model path; nil without search paths
	Hidden   []int                               // IDs of brush entities left out as not drawn

	materials *assets.Resolver
	logger    *log.Logger
}

// LoadMap loads the VMF at path.
// If some models cannot be found, the map is returned along with a
// assets.MissingModelsError.
func LoadMap(path string, opts ...Option) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open map")
	}

	defer f.Close()

	return LoadMapFromReader(f, opts...)
}

// LoadMapFromReader loads a VMF document read from r.
func LoadMapFromReader(r io.Reader, opts ...Option) (*Map, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	doc, err := vmf.Parse(r, vmf.WithLogger(o.logger))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse vmf")
	}

	failed := make([]BrushError, 0, len(doc.Invalid))

	for _, inv := range doc.Invalid {
		o.logger.Printf("skipping %v", inv)
		failed = append(failed, BrushError{BrushID: inv.SolidID, Err: inv})
	}

	solids, hidden := visibleSolids(doc, o)

	m, err := newMap(solids, doc.Entities, nil, failed, o)
	if m != nil {
		m.Hidden = hidden
	}

	return m, err
}

// LoadBSP rebuilds the brushes of the compiled map at path. Files packed into
// the map are searched before the configured search paths.
func LoadBSP(path string, opts ...Option) (*Map, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	bspMap, err := bspbrush.ReadFromFile(path, o.logger)
	if err != nil {
		return nil, err
	}

	if bspMap.Pakfile != nil {
		fsys := assets.NewFileSystem()
		fsys.AddZip(bspMap.Pakfile)

		if o.fs != nil {
			fsys.Append(o.fs)
		}

		o.fs = fsys
	}

	return newMap(bspMap.Solids, bspMap.Entities, bspMap.StaticProps, nil, o)
}

func newMap(solids []vmf.Solid, entities []vmf.Entity, staticProps []string, failed []BrushError, o options) (*Map, error) {
	checkClasses(entities, o)

	brushes, buildFailed := buildAll(solids, o)

	failed = append(failed, buildFailed...)
	sort.SliceStable(failed, func(i, j int) bool {
		return failed[i].BrushID < failed[j].BrushID
	})

	m := &Map{
		Brushes:  brushes,
		Failed:   failed,
		Entities: entities,
		logger:   o.logger,
	}

	if o.fs == nil {
		return m, nil
	}

	m.materials = assets.NewResolver(o.fs, o.logger)

	models := append(append([]string(nil), staticProps...), modelPaths(entities)...)

	props, err := assets.LoadModels(o.fs, models)
	m.Props = props

	return m, err
}

func buildAll(solids []vmf.Solid, o options) ([]*brush.Brush, []BrushError) {
	var (
		built = make([]*brush.Brush, len(solids))
		errs  = make([]error, len(solids))
		g     errgroup.Group
	)

	g.SetLimit(o.workers)

	for i := range solids {
		i := i

		g.Go(func() error {
			built[i], errs[i] = buildBrush(solids[i], o)
			return nil
		})
	}

	_ = g.Wait()

	var (
		brushes = make([]*brush.Brush, 0, len(solids))
		failed  []BrushError
	)

	for i, err := range errs {
		if err != nil {
			o.logger.Printf("skipping %v", err)
			failed = append(failed, BrushError{BrushID: solids[i].ID, Err: err})

			continue
		}

		brushes = append(brushes, built[i])
	}

	return brushes, failed
}

func buildBrush(solid vmf.Solid, o options) (b *brush.Brush, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, errors.Errorf("brush %d: panic while building: %v", solid.ID, r)
		}
	}()

	return brush.Build(solid, brush.WithMaxExtent(o.maxExtent), brush.WithLogger(o.logger))
}

// modelPaths returns the studio models referenced by entities.
func modelPaths(entities []vmf.Entity) []string {
	var out []string

	for _, e := range entities {
		model := e.Properties["model"]
		if strings.HasSuffix(strings.ToLower(model), ".mdl") {
			out = append(out, model)
		}
	}

	return out
}

// Meshes triangulates every brush. With search paths configured, tool faces
// are recognised by their material's textures as well as by name.
func (m *Map) Meshes(opts ...mesh.Option) []*mesh.BrushMesh {
	base := []mesh.Option{mesh.WithLogger(m.logger)}
	if m.materials != nil {
		base = append(base, mesh.WithToolFilter(m.materials.IsTool))
	}

	opts = append(base, opts...)

	out := make([]*mesh.BrushMesh, 0, len(m.Brushes))

	for _, b := range m.Brushes {
		out = append(out, mesh.FromBrush(b, opts...))
	}

	return out
}

// Material returns the material called name from the configured search
// paths.
func (m *Map) Material(name string) (*assets.Material, error) {
	if m.materials == nil {
		return nil, errors.Wrapf(assets.ErrFileNotFound, "material %q: no search paths", name)
	}

	return m.materials.Material(name)
}

// DisplacementCount returns the number of brushes carrying displacements.
func (m *Map) DisplacementCount() int {
	var n int

	for _, b := range m.Brushes {
		if b.HasDisplacement() {
			n++
		}
	}

	return n
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
