package brushmesh

import (
	"log"

	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/assets"
	"github.com/saiko-tech/brushmesh/pkg/brush"
	"github.com/saiko-tech/brushmesh/pkg/fgd"
)

type options struct {
	workers   int
	logger    *log.Logger
	maxExtent float32

	fs          *assets.FileSystem
	gameInfo    string
	searchPaths []string

	fgdPath string
	defs    *fgd.Definitions
}

// Option configures map loading.
type Option func(*options)

// WithWorkers bounds the number of brushes built concurrently.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLogger sets the logger for skipped brushes, faces and materials.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxExtent overrides the seed cube half-extent, see brush.MaxMapExtent.
func WithMaxExtent(extent float32) Option {
	return func(o *options) {
		o.maxExtent = extent
	}
}

// WithFileSystem searches fsys for materials and models. Entries added by
// WithGameInfo and WithSearchPaths come after it.
func WithFileSystem(fsys *assets.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithGameInfo adds the search paths of a mod's gameinfo.txt.
func WithGameInfo(path string) Option {
	return func(o *options) {
		o.gameInfo = path
	}
}

// WithSearchPaths adds directories and VPK archives, see assets.ParseSearchPath.
// They are searched before the gameinfo.txt entries.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) {
		o.searchPaths = append(o.searchPaths, paths...)
	}
}

// WithFGD reads entity definitions from the FGD at path. Entities of unknown
// classes are logged and the brushes of brush entities that are not drawn,
// such as triggers, are left out of VMF maps.
func WithFGD(path string) Option {
	return func(o *options) {
		o.fgdPath = path
	}
}

// WithDefinitions is WithFGD for definitions already parsed.
func WithDefinitions(defs *fgd.Definitions) Option {
	return func(o *options) {
		o.defs = defs
	}
}

func newOptions(opts []Option) (options, error) {
	o := options{
		workers:   defaultWorkers(),
		logger:    log.Default(),
		maxExtent: brush.MaxMapExtent,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.workers < 1 {
		o.workers = defaultWorkers()
	}

	if o.fgdPath != "" {
		defs, err := fgd.ParseFile(o.fgdPath)
		if err != nil {
			return o, err
		}

		o.defs = defs
	}

	if len(o.searchPaths) == 0 && o.gameInfo == "" {
		return o, nil
	}

	fsys := assets.NewFileSystem()
	if o.fs != nil {
		fsys.Append(o.fs)
	}

	for _, p := range o.searchPaths {
		if err := fsys.AddSearchPath(assets.ParseSearchPath(p)); err != nil {
			return o, errors.Wrap(err, "invalid search path")
		}
	}

	if o.gameInfo != "" {
		info, err := assets.LoadGameInfo(o.gameInfo)
		if err != nil {
			return o, err
		}

		fsys.Append(info.FileSystem(o.logger))
	}

	o.fs = fsys

	return o, nil
}
