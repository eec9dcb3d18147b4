// Package assets locates game files (materials, models) on a Source
// engine search path of loose directories, VPK archives and map pakfiles.
package assets

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	vpk "github.com/galaco/vpk2"
	"github.com/pkg/errors"
)

// ErrFileNotFound is returned when no search path entry has the file.
var ErrFileNotFound = errors.New("file not found")

type source interface {
	open(name string) (io.ReadCloser, error)
}

// FileSystem resolves game-relative paths against an ordered search path.
// Lookups are case-insensitive and safe for concurrent use.
type FileSystem struct {
	sources []source
}

// NewFileSystem returns an empty FileSystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{}
}

func cleanName(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "/")
}

// AddDir appends a loose directory to the search path.
func (fsys *FileSystem) AddDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to add search path %q", dir)
	}

	if !info.IsDir() {
		return errors.Errorf("search path %q is not a directory", dir)
	}

	fsys.sources = append(fsys.sources, &dirSource{root: dir})

	return nil
}

// AddVPK appends a multi-part VPK archive, given without the "_dir.vpk" suffix.
func (fsys *FileSystem) AddVPK(base string) error {
	pak, err := vpk.Open(vpk.MultiVPK(base))
	if err != nil {
		return errors.Wrapf(err, "failed to open vpk %q", base)
	}

	fsys.sources = append(fsys.sources, &vpkSource{pak: pak})

	return nil
}

// AddSearchPath appends a directory or VPK entry.
func (fsys *FileSystem) AddSearchPath(sp SearchPath) error {
	if sp.VPK {
		return fsys.AddVPK(sp.Path)
	}

	return fsys.AddDir(sp.Path)
}

// AddZip appends a zip archive, such as the pakfile embedded in a compiled map.
func (fsys *FileSystem) AddZip(r *zip.Reader) {
	fsys.sources = append(fsys.sources, &zipSource{zip: r})
}

// Append adds the search path of other after the entries of fsys.
func (fsys *FileSystem) Append(other *FileSystem) {
	fsys.sources = append(fsys.sources, other.sources...)
}

// Open returns the first match for name along the search path.
func (fsys *FileSystem) Open(name string) (io.ReadCloser, error) {
	name = cleanName(name)

	for _, src := range fsys.sources {
		f, err := src.open(name)
		if err == nil {
			return f, nil
		}
	}

	return nil, errors.Wrapf(ErrFileNotFound, "%s not found", name)
}

// ReadFile returns the contents of name.
func (fsys *FileSystem) ReadFile(name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", name)
	}

	return b, nil
}

type dirSource struct {
	root string

	indexOnce sync.Once
	index     map[string]string
}

func (d *dirSource) open(name string) (io.ReadCloser, error) {
	path := filepath.Join(d.root, filepath.FromSlash(name))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return os.Open(path)
	}

	// try case-insensitive
	d.indexOnce.Do(func() {
		d.index = make(map[string]string)

		_ = filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
			if err != nil || e.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(d.root, path)
			if err == nil {
				d.index[strings.ToLower(filepath.ToSlash(rel))] = path
			}

			return nil
		})
	})

	path, ok := d.index[strings.ToLower(name)]
	if !ok {
		return nil, ErrFileNotFound
	}

	return os.Open(path)
}

type zipSource struct {
	zip *zip.Reader

	indexOnce sync.Once
	index     map[string]*zip.File
}

func (z *zipSource) open(name string) (io.ReadCloser, error) {
	f, err := z.zip.Open(name)
	if err == nil {
		stat, err := f.Stat()
		if err == nil && !stat.IsDir() && stat.Size() > 0 {
			return f, nil
		}

		f.Close()
	}

	// try case-insensitive
	z.indexOnce.Do(func() {
		z.index = make(map[string]*zip.File, len(z.zip.File))

		for _, f := range z.zip.File {
			z.index[strings.ToLower(f.Name)] = f
		}
	})

	zf, ok := z.index[strings.ToLower(name)]
	if !ok {
		return nil, ErrFileNotFound
	}

	return zf.Open()
}

// vpkSource reads files whole under a lock since archive parts are shared
// file handles.
type vpkSource struct {
	mu  sync.Mutex
	pak *vpk.VPK
}

func (v *vpkSource) open(name string) (io.ReadCloser, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.pak.Open(strings.ToLower(name))
	if err != nil {
		return nil, err
	}

	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.Size() == 0 {
		return nil, ErrFileNotFound
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q from vpk", name)
	}

	return io.NopCloser(bytes.NewReader(b)), nil
}
