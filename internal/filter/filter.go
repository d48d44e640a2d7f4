// Package filter implements the LDAP-style predicates used to select service
// providers by their properties, e.g. "(&(objectclass=db.Pool)(tier>=2))".
package filter

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/bayleafwalker/bindery-scr/internal/semver"
)

// ErrMalformedFilter is returned by Compile when the input is not a valid filter.
var ErrMalformedFilter = errors.New("malformed filter")

// Properties is the property map a provider is published with.
type Properties map[string]any

type opKind int

const (
	opAnd opKind = iota
	opOr
	opNot
	opEqual
	opApprox
	opGreaterEq
	opLessEq
	opPresent
	opSubstring
)

type node struct {
	op       opKind
	attr     string
	value    string
	parts    []string
	children []*node
}

// Filter is a compiled predicate. The zero value and the empty filter match
// everything.
type Filter struct {
	raw  string
	root *node
}

// Compile parses raw into a Filter.
func Compile(raw string) (*Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return &Filter{raw: raw}, nil
	}
	p := &parser{s: raw}
	root, err := p.parseFilter()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrMalformedFilter, raw, err)
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("%w %q: trailing input at offset %d", ErrMalformedFilter, raw, p.pos)
	}
	return &Filter{raw: raw, root: root}, nil
}

func MustCompile(raw string) *Filter {
	f, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.raw
}

// Matches reports whether props satisfy the filter.
func (f *Filter) Matches(props Properties) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.match(props)
}

type parser struct {
	s   string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) parseFilter() (*node, error) {
	p.skipSpace()
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()

	var (
		n   *node
		err error
	)
	switch p.peek() {
	case '&':
		p.pos++
		n, err = p.parseList(opAnd)
	case '|':
		p.pos++
		n, err = p.parseList(opOr)
	case '!':
		p.pos++
		var child *node
		child, err = p.parseFilter()
		if err == nil {
			n = &node{op: opNot, children: []*node{child}}
		}
	default:
		n, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseList(op opKind) (*node, error) {
	n := &node{op: op}
	p.skipSpace()
	for p.peek() == '(' {
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, child)
		p.skipSpace()
	}
	if len(n.children) == 0 {
		return nil, fmt.Errorf("empty operand list at offset %d", p.pos)
	}
	return n, nil
}

func (p *parser) parseItem() (*node, error) {
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune("=~<>()", rune(p.s[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.s[start:p.pos])
	if attr == "" {
		return nil, fmt.Errorf("missing attribute at offset %d", start)
	}

	n := &node{attr: strings.ToLower(attr)}
	switch {
	case strings.HasPrefix(p.s[p.pos:], "~="):
		n.op = opApprox
		p.pos += 2
	case strings.HasPrefix(p.s[p.pos:], ">="):
		n.op = opGreaterEq
		p.pos += 2
	case strings.HasPrefix(p.s[p.pos:], "<="):
		n.op = opLessEq
		p.pos += 2
	case p.peek() == '=':
		n.op = opEqual
		p.pos++
	default:
		return nil, fmt.Errorf("missing operator at offset %d", p.pos)
	}

	parts, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	switch {
	case n.op == opEqual && len(parts) == 2 && parts[0] == "" && parts[1] == "":
		n.op = opPresent
	case n.op == opEqual && len(parts) > 1:
		n.op = opSubstring
		n.parts = parts
	case len(parts) > 1:
		return nil, fmt.Errorf("wildcard not allowed for attribute %q", attr)
	default:
		n.value = parts[0]
	}
	return n, nil
}

// parseValue reads up to the closing parenthesis and splits the value on
// unescaped '*'.
func (p *parser) parseValue() ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
	)
	for {
		if p.pos >= len(p.s) {
			return nil, errors.New("unterminated value")
		}
		c := p.s[p.pos]
		switch c {
		case ')':
			return append(parts, cur.String()), nil
		case '(':
			return nil, fmt.Errorf("unescaped '(' at offset %d", p.pos)
		case '\\':
			p.pos++
			if p.pos >= len(p.s) {
				return nil, errors.New("dangling escape")
			}
			cur.WriteByte(p.s[p.pos])
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
		p.pos++
	}
}

func (n *node) match(props Properties) bool {
	switch n.op {
	case opAnd:
		for _, c := range n.children {
			if !c.match(props) {
				return false
			}
		}
		return true
	case opOr:
		for _, c := range n.children {
			if c.match(props) {
				return true
			}
		}
		return false
	case opNot:
		return !n.children[0].match(props)
	}

	v, ok := lookup(props, n.attr)
	if !ok {
		return false
	}
	if n.op == opPresent {
		return true
	}
	return n.matchValue(v)
}

func lookup(props Properties, attr string) (any, bool) {
	if v, ok := props[attr]; ok {
		return v, true
	}
	for k, v := range props {
		if strings.EqualFold(k, attr) {
			return v, true
		}
	}
	return nil, false
}

func (n *node) matchValue(v any) bool {
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			if n.matchValue(rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}

	switch n.op {
	case opSubstring:
		return matchSubstring(fmt.Sprint(v), n.parts)
	case opApprox:
		return normalize(fmt.Sprint(v)) == normalize(n.value)
	case opEqual:
		cmp, ok := compare(v, n.value)
		return ok && cmp == 0
	case opGreaterEq:
		cmp, ok := compare(v, n.value)
		return ok && cmp >= 0
	case opLessEq:
		cmp, ok := compare(v, n.value)
		return ok && cmp <= 0
	}
	return false
}

// compare orders a property value against a literal. Booleans only support
// equality; numbers compare numerically, versions by semver precedence and
// everything else lexically.
func compare(v any, raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	switch x := v.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, false
		}
		if b == x {
			return 0, true
		}
		return 1, true
	case string:
		if a, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			if b, err := strconv.ParseFloat(raw, 64); err == nil {
				return compareFloat(a, b), true
			}
		}
		if cmp, ok := semver.CompareStrings(x, raw); ok {
			return cmp, true
		}
		return strings.Compare(x, raw), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return compareFloat(float64(rv.Int()), b), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return compareFloat(float64(rv.Uint()), b), true
	case reflect.Float32, reflect.Float64:
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return compareFloat(rv.Float(), b), true
	}
	return strings.Compare(fmt.Sprint(v), raw), true
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func matchSubstring(s string, parts []string) bool {
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := len(parts) - 1
	for _, mid := range parts[1:last] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, parts[last])
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
