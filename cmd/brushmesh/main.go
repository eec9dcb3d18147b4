// brushmesh - rebuild the brushes of Source engine maps as glTF meshes.
//
// Usage:
//
//	brushmesh export [flags] <map.vmf> -o <out.glb|out.gltf>
//	brushmesh bsp [flags] <map.bsp> -o <out.glb|out.gltf>
//	brushmesh inspect [flags] <map.vmf|map.bsp>
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/saiko-tech/brushmesh/pkg/assets"
	"github.com/saiko-tech/brushmesh/pkg/brush"
	"github.com/saiko-tech/brushmesh/pkg/brushmesh"
	"github.com/saiko-tech/brushmesh/pkg/mesh"
)

type flags struct {
	searchPaths []string
	gameInfo    string
	fgd         string
	workers     int
	maxExtent   float32
	quiet       bool

	output      string
	tools       bool
	hiddenFaces bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "brushmesh",
		Short:        "Rebuild map brushes as triangle meshes",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVarP(&f.searchPaths, "search-path", "s", nil, "directory or VPK archive to find materials and models in (repeatable)")
	pf.StringVar(&f.gameInfo, "gameinfo", "", "gameinfo.txt whose search paths to use")
	pf.StringVar(&f.fgd, "fgd", "", "entity definitions; brush entities that are not drawn are skipped")
	pf.IntVarP(&f.workers, "workers", "j", 0, "brushes built concurrently (0 = GOMAXPROCS)")
	pf.Float32Var(&f.maxExtent, "max-extent", brush.MaxMapExtent, "half-extent of the seed cube")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "do not log skipped brushes and faces")

	root.AddCommand(
		newExportCmd(f, "export <map.vmf>", "Export the brushes of a VMF map", brushmesh.LoadMap),
		newExportCmd(f, "bsp <map.bsp>", "Export the brushes of a compiled BSP map", brushmesh.LoadBSP),
		newInspectCmd(f),
	)

	return root
}

type loader func(path string, opts ...brushmesh.Option) (*brushmesh.Map, error)

func (f *flags) logger(cmd *cobra.Command) *log.Logger {
	if f.quiet {
		return log.New(io.Discard, "", 0)
	}

	return log.New(cmd.ErrOrStderr(), "brushmesh: ", 0)
}

// load loads a map. Missing models are only reported since props are not
// part of the exported meshes.
func (f *flags) load(cmd *cobra.Command, load loader, path string) (*brushmesh.Map, error) {
	logger := f.logger(cmd)

	opts := []brushmesh.Option{
		brushmesh.WithLogger(logger),
		brushmesh.WithWorkers(f.workers),
		brushmesh.WithMaxExtent(f.maxExtent),
		brushmesh.WithSearchPaths(f.searchPaths...),
	}

	if f.gameInfo != "" {
		opts = append(opts, brushmesh.WithGameInfo(f.gameInfo))
	}

	if f.fgd != "" {
		opts = append(opts, brushmesh.WithFGD(f.fgd))
	}

	m, err := load(path, opts...)

	var missing assets.MissingModelsError
	if errors.As(err, &missing) {
		logger.Print(missing)

		return m, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %q", path)
	}

	return m, nil
}

func (f *flags) meshOptions() []mesh.Option {
	return []mesh.Option{
		mesh.WithTools(f.tools),
		mesh.WithHiddenFaces(f.hiddenFaces),
	}
}

func newExportCmd(f *flags, use, short string, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := f.load(cmd, load, args[0])
			if err != nil {
				return err
			}

			out := f.output
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".glb"
			}

			meshes := m.Meshes(f.meshOptions()...)

			if err := mesh.WriteGLTF(out, meshes); err != nil {
				return err
			}

			var tris int
			for _, bm := range meshes {
				tris += bm.TriangleCount()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d brushes, %d triangles, %d brushes skipped\n",
				out, len(m.Brushes), tris, len(m.Failed))

			return nil
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file, .glb or .gltf (default <map>.glb)")
	cmd.Flags().BoolVar(&f.tools, "tools", false, "keep faces with tool materials")
	cmd.Flags().BoolVar(&f.hiddenFaces, "hidden-faces", false, "keep the flat faces of displacement brushes")

	return cmd
}

func newInspectCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <map.vmf|map.bsp>",
		Short: "Print a per-brush report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			load := brushmesh.LoadMap
			if strings.EqualFold(filepath.Ext(args[0]), ".bsp") {
				load = brushmesh.LoadBSP
			}

			m, err := f.load(cmd, load, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			for _, bm := range m.Meshes(f.meshOptions()...) {
				fmt.Fprintf(w, "brush %d: %d surfaces, %d triangles\n", bm.BrushID, len(bm.Surfaces), bm.TriangleCount())
			}

			for _, fe := range m.Failed {
				fmt.Fprintf(w, "failed: %v\n", fe)
			}

			for _, id := range m.Hidden {
				fmt.Fprintf(w, "hidden: entity %d\n", id)
			}

			fmt.Fprintf(w, "brushes: %d built, %d failed, %d with displacements\n",
				len(m.Brushes), len(m.Failed), m.DisplacementCount())
			fmt.Fprintf(w, "entities: %d, models: %d\n", len(m.Entities), len(m.Props))

			return nil
		},
	}

	cmd.Flags().BoolVar(&f.tools, "tools", false, "count faces with tool materials")
	cmd.Flags().BoolVar(&f.hiddenFaces, "hidden-faces", false, "count the flat faces of displacement brushes")

	return cmd
}
