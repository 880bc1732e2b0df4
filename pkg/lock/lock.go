// Package lock parses and evaluates the boolean policy expressions that
// guard channel actions.
//
// Grammar:
//
//	E → T ('|' E)?
//	T → F ('&' T)?
//	F → '!' F | '=' R | '$' R | L
//	L → '(' E ')' | R | 'flag^' NAME | 'channel:' PATTERN
//	R → '#' number
//
// An empty expression is always true.
package lock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// ErrSyntax is returned for expressions that do not parse.
var ErrSyntax = errors.New("lock: syntax error")

// Kind identifies an expression node.
type Kind int

const (
	KindAnd     Kind = iota
	KindOr           // either side
	KindNot          // negation
	KindConst        // #n: actor is n or is owned by n
	KindIs           // =#n: actor is exactly n
	KindOwner        // $#n: actor has the same owner as n
	KindPower        // flag^NAME: actor holds the power
	KindChannel      // channel:pattern: bound channel name matches
)

// Expr is a parsed lock expression.
type Expr struct {
	Kind Kind
	Ref  gamedb.DBRef
	Pow  gamedb.Power
	Text string // power name or channel pattern as written
	Sub1 *Expr
	Sub2 *Expr
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

// Parse parses a lock expression. Empty text yields a nil expression.
func Parse(text string) (*Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "#TRUE" {
		return nil, nil
	}
	p := &parser{src: text}
	e, err := p.parseE()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return e, nil
}

func (p *parser) parseE() (*Expr, error) {
	left, err := p.parseT()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.peek() == '|' {
		p.pos++
		right, err := p.parseE()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindOr, Sub1: left, Sub2: right}, nil
	}
	return left, nil
}

func (p *parser) parseT() (*Expr, error) {
	left, err := p.parseF()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.peek() == '&' {
		p.pos++
		right, err := p.parseT()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindAnd, Sub1: left, Sub2: right}, nil
	}
	return left, nil
}

func (p *parser) parseF() (*Expr, error) {
	p.skipSpaces()
	switch p.peek() {
	case '!':
		p.pos++
		sub, err := p.parseF()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindNot, Sub1: sub}, nil
	case '=':
		p.pos++
		ref, err := p.parseRef()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindIs, Ref: ref}, nil
	case '$':
		p.pos++
		ref, err := p.parseRef()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindOwner, Ref: ref}, nil
	default:
		return p.parseLiteral()
	}
}

func (p *parser) parseRef() (gamedb.DBRef, error) {
	p.skipSpaces()
	if p.peek() != '#' {
		return gamedb.Nothing, p.errorf("expected #dbref")
	}
	p.pos++
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return gamedb.Nothing, p.errorf("bad dbref %q", p.src[start:p.pos])
	}
	return gamedb.DBRef(n), nil
}

func (p *parser) parseLiteral() (*Expr, error) {
	p.skipSpaces()
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		sub, err := p.parseE()
		if err != nil {
			return nil, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return nil, p.errorf("missing )")
		}
		p.pos++
		return sub, nil
	case c == '#':
		ref, err := p.parseRef()
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: KindConst, Ref: ref}, nil
	case c == 0:
		return nil, p.errorf("unexpected end of expression")
	}

	// name ':' pattern  or  name '^' value
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("&|!()", rune(p.src[p.pos])) {
		p.pos++
	}
	token := strings.TrimSpace(p.src[start:p.pos])
	if i := strings.IndexByte(token, ':'); i > 0 && strings.EqualFold(token[:i], "channel") {
		pat := strings.TrimSpace(token[i+1:])
		if pat == "" {
			return nil, p.errorf("empty channel pattern")
		}
		return &Expr{Kind: KindChannel, Text: pat}, nil
	}
	if i := strings.IndexByte(token, '^'); i > 0 && strings.EqualFold(token[:i], "flag") {
		name := strings.TrimSpace(token[i+1:])
		pow, ok := gamedb.PowerByName(name)
		if !ok {
			return nil, p.errorf("unknown power %q", name)
		}
		return &Expr{Kind: KindPower, Pow: pow, Text: pow.String()}, nil
	}
	return nil, p.errorf("unrecognized term %q", token)
}

// String returns the canonical text form, which reparses to an equal tree.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindAnd:
		return wrapIf(e.Sub1, KindOr) + "&" + wrapIf(e.Sub2, KindOr)
	case KindOr:
		return e.Sub1.String() + "|" + e.Sub2.String()
	case KindNot:
		if e.Sub1 != nil && (e.Sub1.Kind == KindAnd || e.Sub1.Kind == KindOr) {
			return "!(" + e.Sub1.String() + ")"
		}
		return "!" + e.Sub1.String()
	case KindConst:
		return e.Ref.String()
	case KindIs:
		return "=" + e.Ref.String()
	case KindOwner:
		return "$" + e.Ref.String()
	case KindPower:
		return "flag^" + e.Text
	case KindChannel:
		return "channel:" + e.Text
	}
	return "?"
}

func wrapIf(e *Expr, k Kind) string {
	if e != nil && e.Kind == k {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Canonical parses text and returns its canonical form.
func Canonical(text string) (string, error) {
	e, err := Parse(text)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}
