// Package brush builds convex solids from ordered lists of bounding planes.
package brush

import (
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/geom"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// MaxMapExtent is the default half-extent of the seed cube. It must exceed
// every coordinate of a legal brush.
const MaxMapExtent = 16384

// ErrEmptyBrush is returned when the half-spaces of a brush have no common volume.
var ErrEmptyBrush = errors.New("brush has no volume")

// UnclosedBrushError means faces of the seed cube survived all clips, so the
// half-spaces do not bound a finite solid.
type UnclosedBrushError struct {
	Untagged int
}

func (e UnclosedBrushError) Error() string {
	return fmt.Sprintf("unclosed brush: %d seed faces left after clipping", e.Untagged)
}

type options struct {
	maxExtent float32
	logger    *log.Logger
}

// Option configures brush building.
type Option func(*options)

// WithMaxExtent overrides the seed cube half-extent (default MaxMapExtent).
func WithMaxExtent(extent float32) Option {
	return func(o *options) {
		o.maxExtent = extent
	}
}

// WithLogger sets the logger for skipped faces.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxExtent: MaxMapExtent,
		logger:    log.Default(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// HalfSpace is one bounding plane of a brush and the payload its face carries.
type HalfSpace[T comparable] struct {
	Plane   geom.Plane
	Payload T
}

// BuildFromPlanes clips a seed cube against every half-space in order.
// The zero value of T marks seed faces and must not be used as a payload.
func BuildFromPlanes[T comparable](halfSpaces []HalfSpace[T], opts ...Option) (*geom.Polyhedron[T], error) {
	o := newOptions(opts)

	var untagged T

	p := geom.NewCube(o.maxExtent, untagged)

	for i, hs := range halfSpaces {
		if err := geom.Clip(p, hs.Plane, hs.Payload); err != nil {
			return nil, errors.Wrapf(err, "clipping against side %d", i)
		}
	}

	if len(p.Faces) == 0 {
		return nil, ErrEmptyBrush
	}

	var n int

	for _, f := range p.Faces {
		if f.Payload == untagged {
			n++
		}
	}

	if n > 0 {
		return nil, UnclosedBrushError{Untagged: n}
	}

	return p, nil
}

// Brush is a built VMF solid. Every face is tagged with the side it came from.
type Brush struct {
	ID    int
	Shape *geom.Polyhedron[*vmf.Side]
}

// HasDisplacement reports whether any surviving face carries a displacement.
func (b *Brush) HasDisplacement() bool {
	for _, f := range b.Shape.Faces {
		if f.Payload.DispInfo != nil {
			return true
		}
	}

	return false
}

// Build turns a solid into a Brush. Sides with collinear points are logged
// and skipped; the remaining sides must still close the brush.
func Build(solid vmf.Solid, opts ...Option) (*Brush, error) {
	o := newOptions(opts)

	halfSpaces := make([]HalfSpace[*vmf.Side], 0, len(solid.Sides))

	for i := range solid.Sides {
		side := &solid.Sides[i]

		pl, err := side.Plane()
		if err != nil {
			o.logger.Printf("brush %d: skipping side %d: %v", solid.ID, side.ID, err)
			continue
		}

		halfSpaces = append(halfSpaces, HalfSpace[*vmf.Side]{Plane: pl, Payload: side})
	}

	shape, err := BuildFromPlanes(halfSpaces, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "brush %d", solid.ID)
	}

	return &Brush{ID: solid.ID, Shape: shape}, nil
}
