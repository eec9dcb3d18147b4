// Package keyvalues reads and writes Valve's KeyValues text format as used by
// VMF maps, VMT materials and gameinfo.txt.
package keyvalues

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnexpectedEOF   = errors.New("unexpected end of input")
	ErrUnexpectedClose = errors.New("unexpected closing brace")
	ErrUnknownMacro    = errors.New("unknown macro")
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

// Node is either a value (Children == nil) or a list of child nodes.
type Node struct {
	Key      string
	Value    string
	Children []*Node
}

// IsList reports whether n holds children rather than a value.
func (n *Node) IsList() bool {
	return n.Children != nil
}

// Get returns the first child whose key matches case-insensitively, or nil.
func (n *Node) Get(key string) *Node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}

	return nil
}

// GetAll returns every child whose key matches case-insensitively.
func (n *Node) GetAll(key string) []*Node {
	var out []*Node

	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			out = append(out, c)
		}
	}

	return out
}

// Lookup follows a path of keys through nested lists.
func (n *Node) Lookup(path ...string) *Node {
	cur := n

	for _, key := range path {
		if cur == nil || !cur.IsList() {
			return nil
		}

		cur = cur.Get(key)
	}

	return cur
}

// String returns the value of the first value child named key.
func (n *Node) String(key string) (string, bool) {
	for _, c := range n.Children {
		if !c.IsList() && strings.EqualFold(c.Key, key) {
			return c.Value, true
		}
	}

	return "", false
}

// Includer resolves the file named by an #include or #base macro.
type Includer func(name string) (*Node, error)

// Option configures Parse.
type Option func(*parser)

// WithIncluder enables #include and #base. Without it both are errors.
func WithIncluder(inc Includer) Option {
	return func(p *parser) {
		p.include = inc
	}
}

// WithoutEscapes reads backslashes literally, as the engine does for
// material files where paths like "tools\toolsnodraw" are common.
func WithoutEscapes() Option {
	return func(p *parser) {
		p.raw = true
	}
}

// Parse reads a KeyValues document. The returned root node has an empty key
// and holds the top-level entries as children.
func Parse(r io.Reader, opts ...Option) (*Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keyvalues")
	}

	return ParseString(string(src), opts...)
}

// ParseString is Parse for in-memory input.
func ParseString(src string, opts ...Option) (*Node, error) {
	p := &parser{src: src, line: 1}

	for _, opt := range opts {
		opt(p)
	}

	root := &Node{Children: []*Node{}}

	if err := p.parseList(root, false); err != nil {
		return nil, err
	}

	return root, nil
}
