package assets

import (
	"io"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/saiko-tech/brushmesh/pkg/keyvalues"
)

// Shaders with a known texture layout.
const (
	ShaderLightmappedGeneric    = "lightmappedgeneric"
	ShaderUnlitGeneric          = "unlitgeneric"
	ShaderWorldVertexTransition = "worldvertextransition"

	shaderPatch = "patch"

	maxPatchDepth = 8
)

var (
	// ErrUnknownShader is returned for materials whose shader has no known texture layout.
	ErrUnknownShader = errors.New("unknown shader")
	// ErrMissingTexture is returned when a shader's required texture parameter is absent.
	ErrMissingTexture = errors.New("missing texture parameter")
)

// Material is a parsed .vmt file.
type Material struct {
	Name   string
	Shader string            // lower-cased
	Params map[string]string // keys lower-cased, e.g. "$basetexture"
}

// Textures returns the base textures the shader blends, lower-cased.
func (m *Material) Textures() []string {
	textures := []string{strings.ToLower(m.Params["$basetexture"])}

	if m.Shader == ShaderWorldVertexTransition {
		textures = append(textures, strings.ToLower(m.Params["$basetexture2"]))
	}

	return textures
}

// IsTool reports whether every texture of the material is a tool texture.
func (m *Material) IsTool() bool {
	for _, t := range m.Textures() {
		if !strings.HasPrefix(strings.ReplaceAll(t, `\`, "/"), "tools/") {
			return false
		}
	}

	return true
}

// ParseMaterial parses the .vmt read from r. include resolves #include
// macros and the base material of a Patch shader; it may be nil.
func ParseMaterial(name string, r io.Reader, include func(name string) (*Material, error)) (*Material, error) {
	return parseMaterial(name, r, include, 0)
}

func parseMaterial(name string, r io.Reader, include func(string) (*Material, error), depth int) (*Material, error) {
	opts := []keyvalues.Option{keyvalues.WithoutEscapes()}

	if include != nil {
		opts = append(opts, keyvalues.WithIncluder(func(file string) (*keyvalues.Node, error) {
			m, err := include(file)
			if err != nil {
				return nil, err
			}

			return paramsNode(m), nil
		}))
	}

	root, err := keyvalues.Parse(r, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse material %q", name)
	}

	if len(root.Children) == 0 || !root.Children[0].IsList() {
		return nil, errors.Errorf("material %q has no shader block", name)
	}

	block := root.Children[0]
	m := &Material{
		Name:   name,
		Shader: strings.ToLower(block.Key),
		Params: make(map[string]string),
	}

	if m.Shader == shaderPatch {
		return patch(m.Name, block, include, depth)
	}

	setParams(m.Params, block)

	if err := m.validate(); err != nil {
		return m, err
	}

	return m, nil
}

// patch applies the insert and replace blocks of a Patch material to its base.
func patch(name string, block *keyvalues.Node, include func(string) (*Material, error), depth int) (*Material, error) {
	if depth >= maxPatchDepth {
		return nil, errors.Errorf("material %q: patch chain too deep", name)
	}

	base, ok := block.String("include")
	if !ok || include == nil {
		return nil, errors.Errorf("material %q: patch without a resolvable include", name)
	}

	m, err := include(base)
	if err != nil && m == nil {
		return nil, errors.Wrapf(err, "material %q", name)
	}

	out := &Material{Name: name, Shader: m.Shader, Params: make(map[string]string, len(m.Params))}
	for k, v := range m.Params {
		out.Params[k] = v
	}

	for _, key := range []string{"insert", "replace"} {
		if n := block.Get(key); n != nil && n.IsList() {
			setParams(out.Params, n)
		}
	}

	return out, out.validate()
}

func setParams(params map[string]string, n *keyvalues.Node) {
	for _, c := range n.Children {
		if !c.IsList() {
			params[strings.ToLower(c.Key)] = c.Value
		}
	}
}

func paramsNode(m *Material) *keyvalues.Node {
	n := &keyvalues.Node{Children: []*keyvalues.Node{}}

	for k, v := range m.Params {
		n.Children = append(n.Children, &keyvalues.Node{Key: k, Value: v})
	}

	return n
}

func (m *Material) validate() error {
	required := []string{"$basetexture"}

	switch m.Shader {
	case ShaderLightmappedGeneric, ShaderUnlitGeneric:
	case ShaderWorldVertexTransition:
		required = append(required, "$basetexture2")
	default:
		return errors.Wrapf(ErrUnknownShader, "%q in %q", m.Shader, m.Name)
	}

	for _, p := range required {
		if m.Params[p] == "" {
			return errors.Wrapf(ErrMissingTexture, "%s in %q", p, m.Name)
		}
	}

	return nil
}

type cachedMaterial struct {
	m   *Material
	err error
}

// Resolver loads materials by name and caches the result.
// It is safe for concurrent use.
type Resolver struct {
	fs     Opener
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]cachedMaterial
}

// NewResolver returns a Resolver reading from fsys.
func NewResolver(fsys Opener, logger *log.Logger) *Resolver {
	return &Resolver{
		fs:     fsys,
		logger: logger,
		cache:  make(map[string]cachedMaterial),
	}
}

func materialPath(name string) string {
	p := strings.ToLower(cleanName(name))
	if !strings.HasPrefix(p, "materials/") {
		p = path.Join("materials", p)
	}

	if !strings.HasSuffix(p, ".vmt") {
		p += ".vmt"
	}

	return p
}

// Material returns the material called name, e.g. "concrete/concretefloor001a".
// A material with an unknown shader is returned together with an error
// wrapping ErrUnknownShader.
func (r *Resolver) Material(name string) (*Material, error) {
	return r.material(materialPath(name), 0)
}

func (r *Resolver) material(file string, depth int) (*Material, error) {
	r.mu.Lock()
	c, ok := r.cache[file]
	r.mu.Unlock()

	if ok {
		return c.m, c.err
	}

	c.m, c.err = r.load(file, depth)

	if errors.Is(c.err, ErrUnknownShader) {
		r.logger.Printf("material %q: %v", file, c.err)
	}

	r.mu.Lock()
	r.cache[file] = c
	r.mu.Unlock()

	return c.m, c.err
}

func (r *Resolver) load(file string, depth int) (*Material, error) {
	f, err := r.fs.Open(file)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	include := func(name string) (*Material, error) {
		return r.material(materialPath(name), depth+1)
	}

	return parseMaterial(strings.TrimSuffix(strings.TrimPrefix(file, "materials/"), ".vmt"), f, include, depth)
}

// IsTool reports whether faces using the material should be hidden. Names
// under tools/ always count, and so do materials whose textures all live there.
func (r *Resolver) IsTool(name string) bool {
	if strings.HasPrefix(strings.ToLower(cleanName(name)), "tools/") {
		return true
	}

	m, err := r.Material(name)

	return m != nil && err == nil && m.IsTool()
}
