package assets

import (
	"fmt"
	"io"
	"strings"

	"github.com/galaco/studiomodel"
	"github.com/galaco/studiomodel/mdl"
	"github.com/galaco/studiomodel/phy"
	"github.com/galaco/studiomodel/vtx"
	"github.com/galaco/studiomodel/vvd"
	"github.com/pkg/errors"
)

// Opener opens game-relative files. *FileSystem implements it.
type Opener interface {
	Open(name string) (io.ReadCloser, error)
}

func loadModelPart[T any](fsys Opener, filePath string, reader func(io.Reader) (T, error)) (T, error) {
	var def T

	f, err := fsys.Open(filePath)
	if err != nil {
		return def, errors.Wrapf(err, "failed to open model part file %q", filePath)
	}

	defer f.Close()

	part, err := reader(f)
	if err != nil {
		return def, errors.Wrapf(err, "failed to read model part from %q", filePath)
	}

	return part, nil
}

// LoadModel loads the studio model at path, e.g. "models/props/barrel.mdl".
// The .phy collision part is optional.
func LoadModel(fsys Opener, path string) (*studiomodel.StudioModel, error) {
	base := strings.TrimSuffix(cleanName(path), ".mdl")

	mdlData, err := loadModelPart(fsys, base+".mdl", mdl.ReadFromStream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mdl")
	}

	vvdData, err := loadModelPart(fsys, base+".vvd", vvd.ReadFromStream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read vvd")
	}

	vtxData, err := loadModelPart(fsys, base+".dx90.vtx", vtx.ReadFromStream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read vtx")
	}

	phyData, err := loadModelPart(fsys, base+".phy", phy.ReadFromStream)
	if err != nil && !errors.Is(err, ErrFileNotFound) {
		return nil, errors.Wrap(err, "failed to read phy")
	}

	return &studiomodel.StudioModel{
		Filename: base,
		Mdl:      mdlData,
		Vvd:      vvdData,
		Vtx:      vtxData,
		Phy:      phyData,
	}, nil
}

// MissingModelsError lists the models LoadModels could not load.
type MissingModelsError struct {
	Models []string
}

func (m MissingModelsError) Error() string {
	return fmt.Sprintf(`missing models: ("%s")`, strings.Join(m.Models, `", "`))
}

// LoadModels loads each distinct path once. The result is keyed by the
// path as given; models that fail to load are absent from it and reported
// in a MissingModelsError alongside the partial result.
func LoadModels(fsys Opener, paths []string) (map[string]*studiomodel.StudioModel, error) {
	var (
		models  = make(map[string]*studiomodel.StudioModel, len(paths))
		missing []string
		seen    = make(map[string]bool, len(paths))
	)

	for _, p := range paths {
		if seen[p] {
			continue
		}

		seen[p] = true

		m, err := LoadModel(fsys, p)
		if err != nil {
			missing = append(missing, p)
			continue
		}

		models[p] = m
	}

	if len(missing) > 0 {
		return models, MissingModelsError{Models: missing}
	}

	return models, nil
}
