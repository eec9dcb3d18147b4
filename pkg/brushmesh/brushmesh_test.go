package brushmesh

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiko-tech/brushmesh/pkg/assets"
	"github.com/saiko-tech/brushmesh/pkg/brush"
	"github.com/saiko-tech/brushmesh/pkg/fgd"
	"github.com/saiko-tech/brushmesh/pkg/mesh"
	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

const (
	roomVMF          = "testdata/room.vmf"
	brushEntitiesVMF = "testdata/brush_entities.vmf"
	baseFGD          = "testdata/base.fgd"
)

func brushIDs(m *Map) []int {
	var ids []int
	for _, b := range m.Brushes {
		ids = append(ids, b.ID)
	}

	return ids
}

func surfaceTriangles(meshes []*mesh.BrushMesh) map[int]map[string]int {
	out := make(map[int]map[string]int)

	for _, bm := range meshes {
		out[bm.BrushID] = make(map[string]int)

		for _, s := range bm.Surfaces {
			out[bm.BrushID][s.Material] += len(s.Vertices) / 3
		}
	}

	return out
}

func materialDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	p := filepath.Join(dir, "materials", "custom", "nodraw_alias.vmt")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(`"LightmappedGeneric" { "$basetexture" "tools/toolsnodraw" }`), 0o644))

	return dir
}

func TestLoadMap_NonExisting(t *testing.T) {
	t.Parallel()

	m, err := LoadMap("testdata/does_not_exist.vmf")
	assert.Nil(t, m)
	assert.Error(t, err)
}

func TestLoadMap_BadFile(t *testing.T) {
	t.Parallel()

	m, err := LoadMapFromReader(strings.NewReader(`world {`))
	assert.Nil(t, m)
	assert.Error(t, err)
}

func TestLoadMap_Room(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	m, err := LoadMap(roomVMF, WithLogger(log.New(&logs, "", 0)))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 6, 5}, brushIDs(m))
	assert.Equal(t, 1, m.DisplacementCount())
	assert.Nil(t, m.Props)

	require.Len(t, m.Failed, 2)
	assert.Equal(t, 3, m.Failed[0].BrushID)
	assert.Equal(t, 4, m.Failed[1].BrushID)

	var unclosed brush.UnclosedBrushError
	require.True(t, errors.As(m.Failed[0], &unclosed))
	assert.Equal(t, 2, unclosed.Untagged)

	var solidErr vmf.SolidError
	require.True(t, errors.As(m.Failed[1], &solidErr))
	assert.Equal(t, 4, solidErr.SolidID)

	assert.Contains(t, logs.String(), "skipping brush 3: unclosed brush")
	assert.Contains(t, logs.String(), "skipping solid 4: ")

	var classes []string
	for _, e := range m.Entities {
		classes = append(classes, e.ClassName)
	}

	assert.Equal(t, []string{"func_detail", "prop_static", "info_player_start"}, classes)

	_, err = m.Material("dev/dev_measuregeneric01")
	assert.True(t, errors.Is(err, assets.ErrFileNotFound))
}

func TestLoadMap_Workers(t *testing.T) {
	t.Parallel()

	quiet := WithLogger(log.New(&bytes.Buffer{}, "", 0))

	for _, workers := range []int{-1, 0, 1, 2, 16} {
		m, err := LoadMap(roomVMF, quiet, WithWorkers(workers))
		require.NoError(t, err)

		assert.Equal(t, []int{2, 6, 5}, brushIDs(m), "workers %d", workers)
		assert.Len(t, m.Failed, 2, "workers %d", workers)
	}
}

func TestMap_Meshes(t *testing.T) {
	t.Parallel()

	m, err := LoadMap(roomVMF, WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	require.NoError(t, err)

	meshes := m.Meshes()
	require.Len(t, meshes, 3)

	assert.Equal(t, map[int]map[string]int{
		2: {"DEV/DEV_MEASUREGENERIC01": 8, "CUSTOM/NODRAW_ALIAS": 2},
		6: {"NATURE/BLENDGROUNDTOGRASS": 32},
		5: {"DEV/DEV_MEASUREGENERIC01": 12},
	}, surfaceTriangles(meshes))

	for _, v := range meshes[1].Surfaces[0].Vertices {
		assert.InDelta(t, 72, v.Position.Z(), 1e-3)
		assert.InDelta(t, 1, v.Alpha, 1e-6)
	}

	withTools := surfaceTriangles(m.Meshes(mesh.WithTools(true)))
	assert.Equal(t, 2, withTools[2]["TOOLS/TOOLSSKYBOX"])
}

func TestMap_MeshesWithSearchPaths(t *testing.T) {
	t.Parallel()

	m, err := LoadMap(roomVMF,
		WithLogger(log.New(&bytes.Buffer{}, "", 0)),
		WithSearchPaths(materialDir(t)),
	)

	var missing assets.MissingModelsError
	require.True(t, errors.As(err, &missing), "err = %v", err)
	assert.Equal(t, []string{"models/props/crate.mdl"}, missing.Models)

	require.NotNil(t, m)
	assert.NotNil(t, m.Props)
	assert.Empty(t, m.Props)

	mat, err := m.Material("custom/nodraw_alias")
	require.NoError(t, err)
	assert.True(t, mat.IsTool())

	tris := surfaceTriangles(m.Meshes())
	assert.Equal(t, map[string]int{"DEV/DEV_MEASUREGENERIC01": 8}, tris[2])
}

func TestLoadMap_InvalidSearchPath(t *testing.T) {
	t.Parallel()

	_, err := LoadMap(roomVMF, WithSearchPaths(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)

	_, err = LoadMap(roomVMF, WithGameInfo(filepath.Join(t.TempDir(), "gameinfo.txt")))
	assert.Error(t, err)
}

func TestLoadMap_FileSystem(t *testing.T) {
	t.Parallel()

	fsys := assets.NewFileSystem()
	require.NoError(t, fsys.AddDir(materialDir(t)))

	m, err := LoadMap(roomVMF, WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithFileSystem(fsys))
	assert.Error(t, err)
	require.NotNil(t, m)

	_, err = m.Material("custom/nodraw_alias")
	assert.NoError(t, err)
}

func TestLoadBSP_BadFile(t *testing.T) {
	t.Parallel()

	_, err := LoadBSP("testdata/does_not_exist.bsp")
	assert.Error(t, err)

	_, err = LoadBSP(roomVMF)
	assert.Error(t, err)
}

func TestModelPaths(t *testing.T) {
	t.Parallel()

	entities := []vmf.Entity{
		{Properties: map[string]string{"model": "models/props/crate.mdl"}},
		{Properties: map[string]string{"model": "*3"}},
		{Properties: map[string]string{"model": "Models/Tree.MDL"}},
		{Properties: map[string]string{"origin": "0 0 0"}},
	}

	assert.Equal(t, []string{"models/props/crate.mdl", "Models/Tree.MDL"}, modelPaths(entities))
}

func TestLoadMap_FGD(t *testing.T) {
	t.Parallel()

	m, err := LoadMap(brushEntitiesVMF, WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 11, 21, 31, 41}, brushIDs(m))
	assert.Empty(t, m.Hidden)

	var logs bytes.Buffer

	m, err = LoadMap(brushEntitiesVMF, WithLogger(log.New(&logs, "", 0)), WithFGD(baseFGD))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 11, 31, 41}, brushIDs(m))
	assert.Equal(t, []int{20}, m.Hidden)
	assert.Empty(t, m.Failed)

	assert.Contains(t, logs.String(), "skipping entity 20 (trigger_multiple): not rendered")
	assert.Contains(t, logs.String(), `entity 40: unknown class "func_mystery"`)
	assert.NotContains(t, logs.String(), "info_player_start")
}

func TestLoadMap_Definitions(t *testing.T) {
	t.Parallel()

	defs, err := fgd.ParseFile(baseFGD)
	require.NoError(t, err)

	m, err := LoadMap(brushEntitiesVMF, WithLogger(log.New(&bytes.Buffer{}, "", 0)), WithDefinitions(defs))
	require.NoError(t, err)
	assert.Equal(t, []int{20}, m.Hidden)

	_, err = LoadMap(brushEntitiesVMF, WithFGD(filepath.Join(t.TempDir(), "missing.fgd")))
	assert.Error(t, err)
}

func TestRendered(t *testing.T) {
	t.Parallel()

	defs, err := fgd.ParseFile(baseFGD)
	require.NoError(t, err)

	tests := []struct {
		class string
		want  bool
	}{
		{"func_brush", true},
		{"FUNC_DETAIL", true},
		{"trigger_multiple", false},
		{"info_player_start", true},
		{"func_unknown", true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, rendered(defs, tc.class), tc.class)
	}
}

func TestNewMap_KeepsStaticProps(t *testing.T) {
	t.Parallel()

	staticProps := make([]string, 1, 4)
	staticProps[0] = "models/props/a.mdl"

	o := options{
		workers:   1,
		logger:    log.New(&bytes.Buffer{}, "", 0),
		maxExtent: brush.MaxMapExtent,
		fs:        assets.NewFileSystem(),
	}

	entities := []vmf.Entity{{Properties: map[string]string{"model": "models/props/b.mdl"}}}

	_, err := newMap(nil, entities, staticProps, nil, o)

	var missing assets.MissingModelsError
	require.True(t, errors.As(err, &missing), "err = %v", err)
	assert.Equal(t, []string{"models/props/a.mdl", "models/props/b.mdl"}, missing.Models)

	assert.Equal(t, []string{"models/props/a.mdl", ""}, staticProps[:2])
}
