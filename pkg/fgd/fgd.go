// Package fgd reads Hammer's FGD entity definition files.
package fgd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnexpectedEOF = errors.New("unexpected end of input")
	ErrSyntax        = errors.New("invalid syntax")
	ErrUnknownClass  = errors.New("unknown class type")
	ErrUnknownType   = errors.New("unknown value type")
	ErrUnknownBase   = errors.New("unknown base class")
)

// SyntaxError reports where parsing failed.
type SyntaxError struct {
	Line int
	Err  error
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e SyntaxError) Unwrap() error {
	return e.Err
}

// ClassType is the @-declaration a class was defined with.
type ClassType int

const (
	BaseClass ClassType = iota
	PointClass
	SolidClass
	NPCClass
	KeyFrameClass
	MoveClass
	FilterClass
)

var classTypes = map[string]ClassType{
	"@baseclass":     BaseClass,
	"@pointclass":    PointClass,
	"@solidclass":    SolidClass,
	"@npcclass":      NPCClass,
	"@keyframeclass": KeyFrameClass,
	"@moveclass":     MoveClass,
	"@filterclass":   FilterClass,
}

func (t ClassType) String() string {
	for name, ct := range classTypes {
		if ct == t {
			return name
		}
	}

	return fmt.Sprintf("ClassType(%d)", int(t))
}

// Helper is an editor helper of a class header such as studio("x.mdl") or
// size(-8 -8 -8, 8 8 8). Args are split on commas.
type Helper struct {
	Name string
	Args []string
}

// Choice is one entry of a choices keyvalue.
type Choice struct {
	Value string
	Name  string
}

// Flag is one bit of a flags keyvalue.
type Flag struct {
	Value   uint32
	Name    string
	Default bool
}

// Property is a typed keyvalue of a class.
type Property struct {
	Name        string
	Type        string // lower-cased, e.g. "integer" or "target_destination"
	DisplayName string
	Default     string
	Description string
	ReadOnly    bool
	Choices     []Choice
	Flags       []Flag
}

// IO is an input or output of a class.
type IO struct {
	Name        string
	Type        string
	Description string
}

// Class is one entity definition.
type Class struct {
	Type        ClassType
	Name        string
	Description string
	Bases       []string
	Helpers     []Helper
	Properties  []Property
	Inputs      []IO
	Outputs     []IO
}

// Definitions is a parsed FGD, classes keyed by lower-cased name.
type Definitions struct {
	Classes            map[string]*Class
	MapSize            [2]int
	MaterialExclusions []string
}

// Class returns the class called name, ignoring case.
func (d *Definitions) Class(name string) (*Class, bool) {
	c, ok := d.Classes[strings.ToLower(name)]
	return c, ok
}

// Property looks up a keyvalue of class name, following base classes depth
// first in declaration order.
func (d *Definitions) Property(class, key string) (Property, bool) {
	return d.property(class, key, make(map[string]bool))
}

func (d *Definitions) property(class, key string, seen map[string]bool) (Property, bool) {
	c, ok := d.Class(class)
	if !ok || seen[strings.ToLower(class)] {
		return Property{}, false
	}

	seen[strings.ToLower(class)] = true

	for _, p := range c.Properties {
		if strings.EqualFold(p.Name, key) {
			return p, true
		}
	}

	for _, b := range c.Bases {
		if p, ok := d.property(b, key, seen); ok {
			return p, true
		}
	}

	return Property{}, false
}

// Includer opens the file named by an @include directive.
type Includer func(name string) (io.ReadCloser, error)

// Option configures Parse.
type Option func(*parser)

// WithIncluder enables @include. Without it the directive is an error.
func WithIncluder(inc Includer) Option {
	return func(p *parser) {
		p.include = inc
	}
}

// Parse reads an FGD document. Every base class named by a class must be
// defined before the end of the document.
func Parse(r io.Reader, opts ...Option) (*Definitions, error) {
	d := &Definitions{Classes: make(map[string]*Class)}

	if err := parseInto(d, r, opts); err != nil {
		return nil, err
	}

	for _, c := range d.Classes {
		for _, b := range c.Bases {
			if _, ok := d.Class(b); !ok {
				return nil, errors.Wrapf(ErrUnknownBase, "%q in %q", b, c.Name)
			}
		}
	}

	return d, nil
}

func parseInto(d *Definitions, r io.Reader, opts []Option) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "failed to read fgd")
	}

	p := &parser{src: string(src), line: 1, defs: d}

	for _, opt := range opts {
		opt(p)
	}

	p.opts = opts

	return p.parseDocument()
}

// ParseFile reads the FGD at path, resolving @include relative to its
// directory.
func ParseFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open fgd")
	}

	defer f.Close()

	dir := filepath.Dir(path)

	d, err := Parse(f, WithIncluder(func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}

	return d, nil
}
