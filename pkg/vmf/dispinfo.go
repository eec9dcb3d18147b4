package vmf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/keyvalues"
)

// DispInfo is the displacement block of a side. All grids are indexed
// [row][column] and are Size() x Size().
type DispInfo struct {
	Power         int
	StartPosition mgl32.Vec3
	Elevation     float32
	Subdivide     bool
	Normals       [][]mgl32.Vec3
	Distances     [][]float32
	Offsets       [][]mgl32.Vec3
	Alphas        [][]uint8
}

// Size returns the number of grid points along one edge, 2^Power+1.
func (d *DispInfo) Size() int {
	return 1<<d.Power + 1
}

// GridSizeError reports a displacement grid whose dimensions do not match its power.
type GridSizeError struct {
	Field string
	Row   int // -1 when the row count itself is wrong
	Want  int
	Got   int
}

func (e GridSizeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("%s: expected %d rows, got %d", e.Field, e.Want, e.Got)
	}

	return fmt.Sprintf("%s row%d: expected %d values, got %d", e.Field, e.Row, e.Want, e.Got)
}

// Validate checks the power and that every grid is Size() x Size().
func (d *DispInfo) Validate() error {
	if d.Power < 2 || d.Power > 4 {
		return errors.Errorf("unsupported displacement power %d", d.Power)
	}

	size := d.Size()

	check := func(field string, rows int, rowLen func(int) int) error {
		if rows != size {
			return GridSizeError{Field: field, Row: -1, Want: size, Got: rows}
		}

		for r := 0; r < rows; r++ {
			if got := rowLen(r); got != size {
				return GridSizeError{Field: field, Row: r, Want: size, Got: got}
			}
		}

		return nil
	}

	if err := check("normals", len(d.Normals), func(r int) int { return len(d.Normals[r]) }); err != nil {
		return err
	}

	if err := check("distances", len(d.Distances), func(r int) int { return len(d.Distances[r]) }); err != nil {
		return err
	}

	if err := check("offsets", len(d.Offsets), func(r int) int { return len(d.Offsets[r]) }); err != nil {
		return err
	}

	return check("alphas", len(d.Alphas), func(r int) int { return len(d.Alphas[r]) })
}

func decodeDispInfo(n *keyvalues.Node) (*DispInfo, error) {
	var (
		d   DispInfo
		err error
	)

	if d.Power, err = intValue(n, "power"); err != nil {
		return nil, err
	}

	if d.Power < 2 || d.Power > 4 {
		return nil, errors.Errorf("unsupported displacement power %d", d.Power)
	}

	start, err := stringValue(n, "startposition")
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Sscanf(start, "[%g %g %g]", &d.StartPosition[0], &d.StartPosition[1], &d.StartPosition[2]); err != nil {
		return nil, errors.Wrapf(err, "invalid startposition %q", start)
	}

	elevation, err := stringValue(n, "elevation")
	if err != nil {
		return nil, err
	}

	e, err := strconv.ParseFloat(strings.TrimSpace(elevation), 32)
	if err != nil {
		return nil, errors.Wrap(err, "invalid elevation")
	}

	d.Elevation = float32(e)

	if subdiv, ok := n.String("subdiv"); ok {
		d.Subdivide = strings.TrimSpace(subdiv) != "0"
	}

	size := d.Size()

	if d.Normals, err = vec3Grid(n.Get("normals"), "normals", size); err != nil {
		return nil, err
	}

	distances, err := floatGrid(n.Get("distances"), "distances", size)
	if err != nil {
		return nil, err
	}

	d.Distances = distances

	if offsets := n.Get("offsets"); offsets != nil {
		if d.Offsets, err = vec3Grid(offsets, "offsets", size); err != nil {
			return nil, err
		}
	} else {
		d.Offsets = make([][]mgl32.Vec3, size)
		for r := range d.Offsets {
			d.Offsets[r] = make([]mgl32.Vec3, size)
		}
	}

	// alphas are written as integers but some tools emit decimals
	alphas, err := floatGrid(n.Get("alphas"), "alphas", size)
	if err != nil {
		return nil, err
	}

	d.Alphas = make([][]uint8, size)
	for r, row := range alphas {
		d.Alphas[r] = make([]uint8, size)

		for c, a := range row {
			d.Alphas[r][c] = uint8(mgl32.Clamp(a, 0, 255))
		}
	}

	return &d, nil
}

// gridRows splits row0..row{size-1} of a grid block into fields, checking
// that each row has width values.
func gridRows(n *keyvalues.Node, field string, size, width int) ([][]string, error) {
	if n == nil || !n.IsList() {
		return nil, errors.Wrap(ErrMissingKey, field)
	}

	rows := make([][]string, size)

	for r := 0; r < size; r++ {
		s, ok := n.String("row" + strconv.Itoa(r))
		if !ok {
			return nil, GridSizeError{Field: field, Row: -1, Want: size, Got: r}
		}

		rows[r] = strings.Fields(s)
		if len(rows[r]) != width {
			return nil, GridSizeError{Field: field, Row: r, Want: width, Got: len(rows[r])}
		}
	}

	return rows, nil
}

func floatGrid(n *keyvalues.Node, field string, size int) ([][]float32, error) {
	rows, err := gridRows(n, field, size, size)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, size)

	for r, fields := range rows {
		out[r] = make([]float32, size)

		for c, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "%s row%d", field, r)
			}

			out[r][c] = float32(v)
		}
	}

	return out, nil
}

func vec3Grid(n *keyvalues.Node, field string, size int) ([][]mgl32.Vec3, error) {
	rows, err := gridRows(n, field, size, 3*size)
	if err != nil {
		return nil, err
	}

	out := make([][]mgl32.Vec3, size)

	for r, fields := range rows {
		out[r] = make([]mgl32.Vec3, size)

		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "%s row%d", field, r)
			}

			out[r][i/3][i%3] = float32(v)
		}
	}

	return out, nil
}
