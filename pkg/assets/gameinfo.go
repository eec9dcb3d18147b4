package assets

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/keyvalues"
)

// SearchPath is one resolved search path entry of a gameinfo.txt.
type SearchPath struct {
	Path string // a directory, or a VPK without its "_dir.vpk" suffix
	VPK  bool
}

// ParseSearchPath interprets a command line search path: names ending in
// ".vpk" are archives, anything else a directory.
func ParseSearchPath(p string) SearchPath {
	if strings.HasSuffix(strings.ToLower(p), ".vpk") {
		base := p[:len(p)-len(".vpk")]
		if strings.HasSuffix(strings.ToLower(base), "_dir") {
			base = base[:len(base)-len("_dir")]
		}

		return SearchPath{Path: base, VPK: true}
	}

	return SearchPath{Path: p}
}

// GameInfo is the subset of a mod's gameinfo.txt needed to find assets.
type GameInfo struct {
	Game        string
	SearchPaths []SearchPath
}

// LoadGameInfo reads the gameinfo.txt at path and resolves its game and mod
// search paths against the disk. Entries tagged "download" are skipped.
//
// Matching is case-insensitive per path component and "*" matches any name.
func LoadGameInfo(path string) (*GameInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gameinfo")
	}

	defer f.Close()

	root, err := keyvalues.Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}

	gi := root.Get("GameInfo")
	if gi == nil {
		return nil, errors.Errorf("%q has no GameInfo block", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve gameinfo path")
	}

	modDir := filepath.Dir(abs)
	gameDir := filepath.Dir(modDir)

	info := &GameInfo{}
	info.Game, _ = gi.String("game")

	searchPaths := gi.Lookup("FileSystem", "SearchPaths")
	if searchPaths == nil {
		return info, nil
	}

	for _, entry := range searchPaths.Children {
		if entry.IsList() || !isGameSearchPath(entry.Key) {
			continue
		}

		p := strings.ToLower(entry.Value)
		p = strings.ReplaceAll(p, "|all_source_engine_paths|", "")
		p = strings.ReplaceAll(p, "|gameinfo_path|", filepath.Base(modDir)+"/")

		if strings.HasSuffix(p, ".vpk") {
			p = strings.TrimSuffix(p, ".vpk") + "_dir.vpk"
		}

		for _, match := range matchCaseInsensitive(gameDir, p) {
			st, err := os.Stat(match)

			switch {
			case err != nil:
				continue
			case st.IsDir():
				info.SearchPaths = append(info.SearchPaths, SearchPath{Path: match})
			case strings.HasSuffix(strings.ToLower(match), "_dir.vpk"):
				info.SearchPaths = append(info.SearchPaths, SearchPath{Path: match[:len(match)-len("_dir.vpk")], VPK: true})
			}
		}
	}

	return info, nil
}

func isGameSearchPath(keys string) bool {
	var game, download bool

	for _, k := range strings.Split(strings.ToLower(keys), "+") {
		switch k {
		case "game", "mod":
			game = true
		case "download":
			download = true
		}
	}

	return game && !download
}

// matchCaseInsensitive expands rel below root one component at a time.
func matchCaseInsensitive(root, rel string) []string {
	current := []string{root}

	for _, component := range strings.Split(filepath.ToSlash(rel), "/") {
		if component == "" || component == "." {
			continue
		}

		var next []string

		for _, dir := range current {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}

			for _, e := range entries {
				if component == "*" || strings.EqualFold(e.Name(), component) {
					next = append(next, filepath.Join(dir, e.Name()))
				}
			}
		}

		current = next
	}

	return current
}

// FileSystem opens every search path in order. Archives that fail to open
// are logged and skipped.
func (g *GameInfo) FileSystem(logger *log.Logger) *FileSystem {
	fsys := NewFileSystem()

	for _, sp := range g.SearchPaths {
		if err := fsys.AddSearchPath(sp); err != nil {
			logger.Printf("skipping search path: %v", err)
		}
	}

	return fsys
}
