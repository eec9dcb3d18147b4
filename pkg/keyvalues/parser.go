package keyvalues

import (
	"strings"

	"github.com/pkg/errors"
)

type parser struct {
	src     string
	pos     int
	line    int
	include Includer
	raw     bool
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	return p.src[p.pos]
}

func (p *parser) next() byte {
	c := p.src[p.pos]
	p.pos++

	if c == '\n' {
		p.line++
	}

	return c
}

func (p *parser) errorf(err error, format string, args ...any) error {
	return SyntaxError{Line: p.line, Err: errors.Wrapf(err, format, args...)}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// skip consumes whitespace, // line comments and /* block comments */.
func (p *parser) skip() {
	for !p.eof() {
		switch {
		case isSpace(p.peek()):
			p.next()
		case strings.HasPrefix(p.src[p.pos:], "//"):
			for !p.eof() && p.peek() != '\n' {
				p.next()
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			p.next()
			p.next()

			for !p.eof() && !strings.HasPrefix(p.src[p.pos:], "*/") {
				p.next()
			}

			if !p.eof() {
				p.next()
				p.next()
			}
		default:
			return
		}
	}
}

// skipConditional drops a trailing platform conditional such as [$WIN32].
func (p *parser) skipConditional() {
	p.skip()

	if p.eof() || p.peek() != '[' {
		return
	}

	for !p.eof() && p.peek() != ']' && p.peek() != '\n' {
		p.next()
	}

	if !p.eof() && p.peek() == ']' {
		p.next()
	}
}

func (p *parser) parseList(parent *Node, nested bool) error {
	for {
		p.skip()

		if p.eof() {
			if nested {
				return p.errorf(ErrUnexpectedEOF, "in %q", parent.Key)
			}

			return nil
		}

		if p.peek() == '}' {
			if !nested {
				return p.errorf(ErrUnexpectedClose, "at top level")
			}

			p.next()

			return nil
		}

		key, err := p.readToken()
		if err != nil {
			return err
		}

		p.skipConditional()

		if p.eof() {
			return p.errorf(ErrUnexpectedEOF, "after key %q", key)
		}

		switch p.peek() {
		case '{':
			p.next()

			child := &Node{Key: key, Children: []*Node{}}
			if err := p.parseList(child, true); err != nil {
				return err
			}

			parent.Children = append(parent.Children, child)

			continue
		case '}':
			return p.errorf(ErrUnexpectedClose, "after key %q", key)
		}

		value, err := p.readToken()
		if err != nil {
			return err
		}

		p.skipConditional()

		if strings.HasPrefix(key, "#") {
			if err := p.macro(parent, key, value); err != nil {
				return err
			}

			continue
		}

		parent.Children = append(parent.Children, &Node{Key: key, Value: value})
	}
}

func (p *parser) macro(parent *Node, name, arg string) error {
	if !strings.EqualFold(name, "#include") && !strings.EqualFold(name, "#base") {
		return p.errorf(ErrUnknownMacro, "%q", name)
	}

	if p.include == nil {
		return p.errorf(ErrUnknownMacro, "%q without an include resolver", name)
	}

	included, err := p.include(arg)
	if err != nil {
		return errors.Wrapf(err, "failed to include %q", arg)
	}

	parent.Children = append(parent.Children, included.Children...)

	return nil
}

// readToken reads a quoted or bare token. Unknown escape sequences are kept
// verbatim since material paths frequently contain backslashes.
func (p *parser) readToken() (string, error) {
	var sb strings.Builder

	quoted := p.peek() == '"'
	if quoted {
		p.next()
	}

	for {
		if p.eof() {
			if quoted {
				return "", p.errorf(ErrUnexpectedEOF, "in quoted string")
			}

			return sb.String(), nil
		}

		c := p.peek()

		switch {
		case c == '\\' && !p.raw:
			p.next()

			if p.eof() {
				return "", p.errorf(ErrUnexpectedEOF, "after escape")
			}

			switch e := p.next(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '"':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
		case c == '"':
			if quoted {
				p.next()
			}

			return sb.String(), nil
		case !quoted && (isSpace(c) || c == '{' || c == '}'):
			return sb.String(), nil
		default:
			sb.WriteByte(p.next())
		}
	}
}
