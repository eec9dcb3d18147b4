package fgd

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const maxIncludeDepth = 16

var propertyTypes = map[string]bool{
	"string": true, "integer": true, "float": true, "boolean": true, "bool": true,
	"choices": true, "flags": true, "void": true,
	"target_source": true, "target_destination": true, "target_name_or_class": true,
	"filterclass": true, "npcclass": true, "pointentityclass": true,
	"studio": true, "sprite": true, "decal": true, "material": true, "sound": true, "scene": true,
	"color255": true, "color1": true, "vector": true, "vecline": true, "origin": true,
	"angle": true, "angle_negative_pitch": true, "axis": true, "sidelist": true,
	"node_dest": true, "node_id": true, "instance_file": true, "instance_variable": true,
	"instance_parm": true, "script": true, "scriptlist": true, "particlesystem": true,
	"ehandle": true,
}

var ioTypes = map[string]bool{
	"void": true, "integer": true, "float": true, "string": true, "bool": true,
	"ehandle": true, "color255": true, "vector": true, "script": true,
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return t.text
	}
}

type parser struct {
	src     string
	pos     int
	line    int
	depth   int
	defs    *Definitions
	include Includer
	opts    []Option
}

func (p *parser) errorf(err error, format string, args ...any) error {
	return SyntaxError{Line: p.line, Err: errors.Wrapf(err, format, args...)}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isPunct(c byte) bool {
	return strings.IndexByte("()[]=:,+", c) >= 0
}

func (p *parser) skip() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case isSpace(c):
			if c == '\n' {
				p.line++
			}

			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) next() (token, error) {
	p.skip()

	if p.pos >= len(p.src) {
		return token{kind: tokEOF}, nil
	}

	c := p.src[p.pos]

	switch {
	case isPunct(c):
		p.pos++
		return token{kind: tokPunct, text: string(c)}, nil
	case c == '"':
		end := strings.IndexByte(p.src[p.pos+1:], '"')
		if end < 0 {
			return token{}, p.errorf(ErrUnexpectedEOF, "in quoted string")
		}

		s := p.src[p.pos+1 : p.pos+1+end]
		p.line += strings.Count(s, "\n")
		p.pos += end + 2

		return token{kind: tokString, text: s}, nil
	}

	start := p.pos
	for p.pos < len(p.src) && !isSpace(p.src[p.pos]) && !isPunct(p.src[p.pos]) && p.src[p.pos] != '"' {
		p.pos++
	}

	return token{kind: tokWord, text: p.src[start:p.pos]}, nil
}

func (p *parser) peek() (token, error) {
	pos, line := p.pos, p.line
	t, err := p.next()
	p.pos, p.line = pos, line

	return t, err
}

func (p *parser) expect(punct, context string) error {
	t, err := p.next()
	if err != nil {
		return err
	}

	if t.kind == tokEOF {
		return p.errorf(ErrUnexpectedEOF, "expected %q %s", punct, context)
	}

	if !t.is(punct) {
		return p.errorf(ErrSyntax, "expected %q %s, found %v", punct, context, t)
	}

	return nil
}

// accept consumes the next token if it is punct.
func (p *parser) accept(punct string) (bool, error) {
	t, err := p.peek()
	if err != nil || !t.is(punct) {
		return false, err
	}

	_, err = p.next()

	return true, err
}

// value reads a word or quoted string.
func (p *parser) value(context string) (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	switch t.kind {
	case tokWord, tokString:
		return t.text, nil
	case tokEOF:
		return "", p.errorf(ErrUnexpectedEOF, "expected a value %s", context)
	default:
		return "", p.errorf(ErrSyntax, "expected a value %s, found %v", context, t)
	}
}

// text reads a string continued by "+".
func (p *parser) text(context string) (string, error) {
	s, err := p.value(context)
	if err != nil {
		return "", err
	}

	for {
		more, err := p.accept("+")
		if err != nil || !more {
			return s, err
		}

		next, err := p.value(context)
		if err != nil {
			return "", err
		}

		s += next
	}
}

func (p *parser) parseDocument() error {
	for {
		t, err := p.next()
		if err != nil {
			return err
		}

		if t.kind == tokEOF {
			return nil
		}

		if t.kind != tokWord || !strings.HasPrefix(t.text, "@") {
			return p.errorf(ErrSyntax, "expected a declaration, found %v", t)
		}

		directive := strings.ToLower(t.text)

		if ct, ok := classTypes[directive]; ok {
			if err := p.parseClass(ct); err != nil {
				return err
			}

			continue
		}

		switch directive {
		case "@mapsize":
			err = p.parseMapSize()
		case "@include":
			err = p.parseInclude()
		case "@materialexclusion":
			err = p.parseMaterialExclusion()
		case "@autovisgroup":
			err = p.skipAutoVisGroup()
		default:
			err = p.errorf(ErrUnknownClass, "%q", t.text)
		}

		if err != nil {
			return err
		}
	}
}

func (p *parser) parseMapSize() error {
	if err := p.expect("(", "after @mapsize"); err != nil {
		return err
	}

	args, err := p.args("@mapsize")
	if err != nil {
		return err
	}

	if len(args) != 2 {
		return p.errorf(ErrSyntax, "@mapsize takes 2 arguments, found %d", len(args))
	}

	for i, a := range args {
		if p.defs.MapSize[i], err = strconv.Atoi(a); err != nil {
			return p.errorf(ErrSyntax, "@mapsize: %q is not an integer", a)
		}
	}

	return nil
}

func (p *parser) parseInclude() error {
	name, err := p.value("after @include")
	if err != nil {
		return err
	}

	if p.include == nil {
		return p.errorf(ErrSyntax, "@include %q without an include resolver", name)
	}

	if p.depth >= maxIncludeDepth {
		return p.errorf(ErrSyntax, "@include %q nested too deeply", name)
	}

	rc, err := p.include(name)
	if err != nil {
		return errors.Wrapf(err, "failed to include %q", name)
	}

	defer rc.Close()

	sub := &parser{line: 1, depth: p.depth + 1, defs: p.defs}
	for _, opt := range p.opts {
		opt(sub)
	}

	sub.opts = p.opts

	src, err := io.ReadAll(rc)
	if err != nil {
		return errors.Wrapf(err, "failed to include %q", name)
	}

	sub.src = string(src)

	return errors.Wrapf(sub.parseDocument(), "in %q", name)
}

func (p *parser) parseMaterialExclusion() error {
	if err := p.expect("[", "after @MaterialExclusion"); err != nil {
		return err
	}

	for {
		if done, err := p.accept("]"); err != nil || done {
			return err
		}

		dir, err := p.value("in @MaterialExclusion")
		if err != nil {
			return err
		}

		p.defs.MaterialExclusions = append(p.defs.MaterialExclusions, dir)
	}
}

// skipAutoVisGroup drops an editor visgroup tree: = "name" [ ... ].
func (p *parser) skipAutoVisGroup() error {
	if err := p.expect("=", "after @AutoVisGroup"); err != nil {
		return err
	}

	if _, err := p.value("after @AutoVisGroup ="); err != nil {
		return err
	}

	if err := p.expect("[", "after @AutoVisGroup name"); err != nil {
		return err
	}

	for depth := 1; depth > 0; {
		t, err := p.next()
		if err != nil {
			return err
		}

		switch {
		case t.kind == tokEOF:
			return p.errorf(ErrUnexpectedEOF, "in @AutoVisGroup")
		case t.is("["):
			depth++
		case t.is("]"):
			depth--
		}
	}

	return nil
}

// args reads comma separated helper arguments up to the closing ")".
func (p *parser) args(context string) ([]string, error) {
	var (
		out  []string
		cur  []string
		seen bool
	)

	for {
		t, err := p.next()
		if err != nil {
			return nil, err
		}

		switch {
		case t.kind == tokEOF:
			return nil, p.errorf(ErrUnexpectedEOF, "in %s arguments", context)
		case t.is(")"):
			if seen || len(cur) > 0 {
				out = append(out, strings.Join(cur, " "))
			}

			return out, nil
		case t.is(","):
			out = append(out, strings.Join(cur, " "))
			cur = nil
			seen = true
		default:
			cur = append(cur, t.text)
		}
	}
}

func (p *parser) parseClass(ct ClassType) error {
	c := &Class{Type: ct}

	for {
		t, err := p.next()
		if err != nil {
			return err
		}

		if t.is("=") {
			break
		}

		if t.kind != tokWord {
			if t.kind == tokEOF {
				return p.errorf(ErrUnexpectedEOF, "in class header")
			}

			return p.errorf(ErrSyntax, "expected a helper or \"=\" in class header, found %v", t)
		}

		h := Helper{Name: strings.ToLower(t.text)}

		paren, err := p.accept("(")
		if err != nil {
			return err
		}

		if paren {
			if h.Args, err = p.args(t.text); err != nil {
				return err
			}
		}

		if h.Name == "base" {
			c.Bases = append(c.Bases, h.Args...)
			continue
		}

		c.Helpers = append(c.Helpers, h)
	}

	name, err := p.value("as class name")
	if err != nil {
		return err
	}

	c.Name = name

	colon, err := p.accept(":")
	if err != nil {
		return err
	}

	if colon {
		if c.Description, err = p.text("as description of " + name); err != nil {
			return err
		}
	}

	if err := p.expect("[", "after class "+strconv.Quote(name)); err != nil {
		return err
	}

	if err := p.parseBody(c); err != nil {
		return err
	}

	p.defs.Classes[strings.ToLower(name)] = c

	return nil
}

func (p *parser) parseBody(c *Class) error {
	for {
		t, err := p.next()
		if err != nil {
			return err
		}

		switch {
		case t.is("]"):
			return nil
		case t.kind == tokEOF:
			return p.errorf(ErrUnexpectedEOF, "in class %q", c.Name)
		case t.kind != tokWord:
			return p.errorf(ErrSyntax, "expected a keyvalue in class %q, found %v", c.Name, t)
		}

		kind := strings.ToLower(t.text)

		next, err := p.peek()
		if err != nil {
			return err
		}

		// "input" followed by "(" is a keyvalue that happens to be named input.
		if (kind == "input" || kind == "output") && next.kind == tokWord {
			port, err := p.parseIO(c.Name)
			if err != nil {
				return err
			}

			if kind == "input" {
				c.Inputs = append(c.Inputs, port)
			} else {
				c.Outputs = append(c.Outputs, port)
			}

			continue
		}

		prop, err := p.parseProperty(c.Name, t.text)
		if err != nil {
			return err
		}

		c.Properties = append(c.Properties, prop)
	}
}

// typeName reads "(type)" and validates it against known.
func (p *parser) typeName(class, name string, known map[string]bool) (string, error) {
	context := "after " + strconv.Quote(name) + " in class " + strconv.Quote(class)

	if err := p.expect("(", context); err != nil {
		return "", err
	}

	typ, err := p.value(context)
	if err != nil {
		return "", err
	}

	if err := p.expect(")", context); err != nil {
		return "", err
	}

	typ = strings.ToLower(typ)
	if !known[typ] {
		return "", p.errorf(ErrUnknownType, "%q of %q in class %q", typ, name, class)
	}

	return typ, nil
}

func (p *parser) parseIO(class string) (IO, error) {
	name, err := p.value("as input/output name")
	if err != nil {
		return IO{}, err
	}

	port := IO{Name: name}

	if port.Type, err = p.typeName(class, name, ioTypes); err != nil {
		return IO{}, err
	}

	colon, err := p.accept(":")
	if err != nil || !colon {
		return port, err
	}

	port.Description, err = p.text("as description of " + name)

	return port, err
}

func (p *parser) parseProperty(class, name string) (Property, error) {
	prop := Property{Name: name}

	var err error
	if prop.Type, err = p.typeName(class, name, propertyTypes); err != nil {
		return Property{}, err
	}

	for {
		t, err := p.peek()
		if err != nil {
			return Property{}, err
		}

		if t.kind != tokWord || (!strings.EqualFold(t.text, "readonly") && !strings.EqualFold(t.text, "report")) {
			break
		}

		_, _ = p.next()

		if strings.EqualFold(t.text, "readonly") {
			prop.ReadOnly = true
		}
	}

	if err := p.propertyLabels(&prop); err != nil {
		return Property{}, err
	}

	switch prop.Type {
	case "choices":
		err = p.parseChoices(class, &prop)
	case "flags":
		err = p.parseFlags(class, &prop)
	}

	return prop, err
}

// propertyLabels reads the optional ": display : default : description" tail.
func (p *parser) propertyLabels(prop *Property) error {
	context := "in keyvalue " + strconv.Quote(prop.Name)

	colon, err := p.accept(":")
	if err != nil || !colon {
		return err
	}

	if prop.DisplayName, err = p.text(context); err != nil {
		return err
	}

	if colon, err = p.accept(":"); err != nil || !colon {
		return err
	}

	t, err := p.peek()
	if err != nil {
		return err
	}

	if t.kind == tokWord || t.kind == tokString {
		prop.Default, _ = p.value(context)
	}

	if colon, err = p.accept(":"); err != nil || !colon {
		return err
	}

	prop.Description, err = p.text(context)

	return err
}

func (p *parser) listStart(class string, prop *Property) error {
	context := "after " + prop.Type + " keyvalue " + strconv.Quote(prop.Name) + " in class " + strconv.Quote(class)

	if err := p.expect("=", context); err != nil {
		return err
	}

	return p.expect("[", context)
}

// skipItemDescription drops the optional trailing ": "description"" of a list item.
func (p *parser) skipItemDescription(context string) error {
	colon, err := p.accept(":")
	if err != nil || !colon {
		return err
	}

	_, err = p.text(context)

	return err
}

func (p *parser) parseChoices(class string, prop *Property) error {
	if err := p.listStart(class, prop); err != nil {
		return err
	}

	context := "in choices of " + strconv.Quote(prop.Name)

	for {
		if done, err := p.accept("]"); err != nil || done {
			return err
		}

		var (
			ch  Choice
			err error
		)

		if ch.Value, err = p.value(context); err != nil {
			return err
		}

		if err := p.expect(":", context); err != nil {
			return err
		}

		if ch.Name, err = p.text(context); err != nil {
			return err
		}

		if err := p.skipItemDescription(context); err != nil {
			return err
		}

		prop.Choices = append(prop.Choices, ch)
	}
}

func (p *parser) parseFlags(class string, prop *Property) error {
	if err := p.listStart(class, prop); err != nil {
		return err
	}

	context := "in flags of " + strconv.Quote(prop.Name)

	for {
		if done, err := p.accept("]"); err != nil || done {
			return err
		}

		raw, err := p.value(context)
		if err != nil {
			return err
		}

		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return p.errorf(ErrSyntax, "flag value %q is not an integer %s", raw, context)
		}

		f := Flag{Value: uint32(v)}

		if err := p.expect(":", context); err != nil {
			return err
		}

		if f.Name, err = p.text(context); err != nil {
			return err
		}

		if err := p.expect(":", context); err != nil {
			return err
		}

		def, err := p.value(context)
		if err != nil {
			return err
		}

		f.Default = def != "0"

		if err := p.skipItemDescription(context); err != nil {
			return err
		}

		prop.Flags = append(prop.Flags, f)
	}
}
