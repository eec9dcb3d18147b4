// Package vmf decodes Hammer's VMF map format into typed brushes and entities.
package vmf

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/keyvalues"
)

// ErrMissingKey is returned when a required key is absent.
var ErrMissingKey = errors.New("missing key")

// Map is a decoded VMF document.
type Map struct {
	World    Entity
	Entities []Entity

	// Invalid holds the solids that failed to decode; they are not part of
	// World or Entities.
	Invalid []SolidError
}

// Solids returns the world solids followed by the solids of brush entities.
func (m *Map) Solids() []Solid {
	out := append([]Solid(nil), m.World.Solids...)

	for _, e := range m.Entities {
		out = append(out, e.Solids...)
	}

	return out
}

// Entity is a "world" or "entity" block.
type Entity struct {
	ID         int
	ClassName  string
	Properties map[string]string // keys lower-cased
	Solids     []Solid
}

// Vec3 parses a property of the form "x y z".
func (e Entity) Vec3(key string) (mgl32.Vec3, bool) {
	var v mgl32.Vec3

	s, ok := e.Properties[strings.ToLower(key)]
	if !ok {
		return v, false
	}

	if _, err := fmt.Sscanf(s, "%g %g %g", &v[0], &v[1], &v[2]); err != nil {
		return v, false
	}

	return v, true
}

// Solid is a brush: an ordered list of bounding sides.
type Solid struct {
	ID    int
	Sides []Side
}

// Side is one bounding plane of a solid together with its surface data.
type Side struct {
	ID              int
	Points          [3]mgl32.Vec3
	Material        string
	UAxis           geom.UVAxis
	VAxis           geom.UVAxis
	LightmapScale   int
	SmoothingGroups int
	DispInfo        *DispInfo
}

// Plane returns the outward plane through the side's three points.
func (s *Side) Plane() (geom.Plane, error) {
	return geom.PlaneFromPoints(s.Points[0], s.Points[1], s.Points[2])
}

// SolidError is a solid that could not be decoded.
type SolidError struct {
	SolidID int
	Err     error
}

func (e SolidError) Error() string {
	return fmt.Sprintf("solid %d: %v", e.SolidID, e.Err)
}

func (e SolidError) Unwrap() error {
	return e.Err
}

type options struct {
	logger *log.Logger
}

// Option configures decoding.
type Option func(*options)

// WithLogger sets the logger used for non-fatal findings such as
// non-normalized texture axes.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Parse reads and decodes a VMF document.
func Parse(r io.Reader, opts ...Option) (*Map, error) {
	root, err := keyvalues.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse vmf")
	}

	return Decode(root, opts...)
}

// Decode converts a parsed KeyValues tree into a Map.
// A malformed solid is recorded in Map.Invalid instead of failing the whole map.
func Decode(root *keyvalues.Node, opts ...Option) (*Map, error) {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	world := root.Get("world")
	if world == nil || !world.IsList() {
		return nil, errors.Wrap(ErrMissingKey, "world")
	}

	m := &Map{}
	m.World = decodeEntity(world, m, o)

	for _, n := range root.GetAll("entity") {
		if n.IsList() {
			m.Entities = append(m.Entities, decodeEntity(n, m, o))
		}
	}

	return m, nil
}

func decodeEntity(n *keyvalues.Node, m *Map, o options) Entity {
	e := Entity{Properties: make(map[string]string)}

	for _, c := range n.Children {
		if !c.IsList() {
			e.Properties[strings.ToLower(c.Key)] = c.Value
		}
	}

	e.ClassName = e.Properties["classname"]

	id, err := strconv.Atoi(e.Properties["id"])
	if err != nil {
		o.logger.Printf("entity %q: invalid id %q", e.ClassName, e.Properties["id"])
	}

	e.ID = id

	for _, s := range n.GetAll("solid") {
		if !s.IsList() {
			continue
		}

		solid, err := decodeSolid(s, o)
		if err != nil {
			m.Invalid = append(m.Invalid, SolidError{SolidID: solid.ID, Err: err})
			continue
		}

		e.Solids = append(e.Solids, solid)
	}

	return e
}

func decodeSolid(n *keyvalues.Node, o options) (Solid, error) {
	var (
		solid Solid
		err   error
	)

	solid.ID, err = intValue(n, "id")
	if err != nil {
		return solid, err
	}

	for _, s := range n.GetAll("side") {
		side, err := decodeSide(s, o)
		if err != nil {
			return solid, errors.Wrapf(err, "side %d", side.ID)
		}

		solid.Sides = append(solid.Sides, side)
	}

	return solid, nil
}

func decodeSide(n *keyvalues.Node, o options) (Side, error) {
	var (
		side Side
		err  error
	)

	if side.ID, err = intValue(n, "id"); err != nil {
		return side, err
	}

	plane, err := stringValue(n, "plane")
	if err != nil {
		return side, err
	}

	p := &side.Points
	if _, err := fmt.Sscanf(plane, "(%g %g %g) (%g %g %g) (%g %g %g)",
		&p[0][0], &p[0][1], &p[0][2],
		&p[1][0], &p[1][1], &p[1][2],
		&p[2][0], &p[2][1], &p[2][2]); err != nil {
		return side, errors.Wrapf(err, "invalid plane %q", plane)
	}

	if side.Material, err = stringValue(n, "material"); err != nil {
		return side, err
	}

	if side.UAxis, err = uvAxis(n, "uaxis"); err != nil {
		return side, err
	}

	if side.VAxis, err = uvAxis(n, "vaxis"); err != nil {
		return side, err
	}

	for _, axis := range []struct {
		name string
		geom.UVAxis
	}{{"uaxis", side.UAxis}, {"vaxis", side.VAxis}} {
		if !axis.IsUnit() {
			o.logger.Printf("side %d: %s %v is not normalized", side.ID, axis.name, axis.Dir)
		}
	}

	// optional in older map versions
	side.LightmapScale, _ = intValue(n, "lightmapscale")
	side.SmoothingGroups, _ = intValue(n, "smoothing_groups")

	if d := n.Get("dispinfo"); d != nil && d.IsList() {
		if side.DispInfo, err = decodeDispInfo(d); err != nil {
			return side, errors.Wrap(err, "dispinfo")
		}
	}

	return side, nil
}

func uvAxis(n *keyvalues.Node, key string) (geom.UVAxis, error) {
	var a geom.UVAxis

	s, err := stringValue(n, key)
	if err != nil {
		return a, err
	}

	if _, err := fmt.Sscanf(s, "[%g %g %g %g] %g", &a.Dir[0], &a.Dir[1], &a.Dir[2], &a.Translation, &a.Scale); err != nil {
		return a, errors.Wrapf(err, "invalid %s %q", key, s)
	}

	if a.Scale == 0 {
		return a, errors.Errorf("invalid %s %q: zero scale", key, s)
	}

	return a, nil
}

func stringValue(n *keyvalues.Node, key string) (string, error) {
	s, ok := n.String(key)
	if !ok {
		return "", errors.Wrap(ErrMissingKey, key)
	}

	return s, nil
}

func intValue(n *keyvalues.Node, key string) (int, error) {
	s, err := stringValue(n, key)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}

	return v, nil
}
