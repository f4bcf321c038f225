// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tomtom215/playwatch/internal/models"
)

var (
	// ErrInvalidCondition is returned for syntax and type errors.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrUnknownParameter is returned when a condition names a parameter that does not exist.
	ErrUnknownParameter = errors.New("unknown parameter")
)

// Condition is a compiled notifier condition. The zero value matches everything.
type Condition struct {
	src  string
	root node
}

// CompileCondition parses and type-checks src. An empty or blank condition
// always matches.
//
// Grammar:
//
//	expr       = or
//	or         = and { ("or" | "||") and }
//	and        = unary { ("and" | "&&") unary }
//	unary      = ("not" | "!") unary | primary
//	primary    = "(" expr ")" | comparison
//	comparison = param [ op literal ]
//	op         = "==" | "!=" | "<" | "<=" | ">" | ">=" | "contains" | "startswith" | "endswith"
//	literal    = string | number | "true" | "false"
//
// A bare parameter must be a bool. String comparisons ignore case.
func CompileCondition(src string) (*Condition, error) {
	if strings.TrimSpace(src) == "" {
		return &Condition{src: src}, nil
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", tok)
	}
	return &Condition{src: src, root: root}, nil
}

// Match evaluates the condition against params.
func (c *Condition) Match(p *models.ActionParams) bool {
	if c == nil || c.root == nil {
		return true
	}
	return c.root.eval(p)
}

// String returns the source expression.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	return c.src
}

// ---- evaluation tree ----

type node interface {
	eval(p *models.ActionParams) bool
}

type andNode struct{ left, right node }

func (n andNode) eval(p *models.ActionParams) bool { return n.left.eval(p) && n.right.eval(p) }

type orNode struct{ left, right node }

func (n orNode) eval(p *models.ActionParams) bool { return n.left.eval(p) || n.right.eval(p) }

type notNode struct{ inner node }

func (n notNode) eval(p *models.ActionParams) bool { return !n.inner.eval(p) }

type boolParamNode struct{ spec paramSpec }

func (n boolParamNode) eval(p *models.ActionParams) bool { return n.spec.get(p).b }

type compareNode struct {
	spec paramSpec
	op   string
	lit  value
}

func (n compareNode) eval(p *models.ActionParams) bool {
	v := n.spec.get(p)
	switch v.typ {
	case TypeString:
		return compareStrings(n.op, v.s, n.lit.s)
	case TypeNumber:
		return compareNumbers(n.op, v.n, n.lit.n)
	case TypeBool:
		if n.op == "!=" {
			return v.b != n.lit.b
		}
		return v.b == n.lit.b
	}
	return false
}

func compareStrings(op, a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "contains":
		return strings.Contains(a, b)
	case "startswith":
		return strings.HasPrefix(a, b)
	case "endswith":
		return strings.HasSuffix(a, b)
	}
	return false
}

func compareNumbers(op string, a, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

// opsByType lists the operators each parameter type accepts.
var opsByType = map[ParamType]map[string]bool{
	TypeString: {"==": true, "!=": true, "contains": true, "startswith": true, "endswith": true},
	TypeNumber: {"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true},
	TypeBool:   {"==": true, "!=": true},
}

// ---- lexer ----

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokBool
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of condition"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

var keywordOps = map[string]tokKind{
	"and":        tokAnd,
	"or":         tokOr,
	"not":        tokNot,
	"contains":   tokOp,
	"startswith": tokOp,
	"endswith":   tokOp,
	"true":       tokBool,
	"false":      tokBool,
}

func lex(src string) ([]token, error) {
	var tokens []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '"' || r == '\'':
			s, next, err := lexString(rs, i)
			if err != nil {
				return nil, fmt.Errorf("condition %q: %v at %d: %w", src, err, i, ErrInvalidCondition)
			}
			tokens = append(tokens, token{kind: tokString, text: s, pos: i})
			i = next
		case unicode.IsDigit(r) || (r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i++
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			word := string(rs[start:i])
			lower := strings.ToLower(word)
			if kind, ok := keywordOps[lower]; ok {
				tokens = append(tokens, token{kind: kind, text: lower, pos: start})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})
			}
		default:
			op, n := lexSymbol(rs, i)
			if n == 0 {
				return nil, fmt.Errorf("condition %q: unexpected %q at %d: %w", src, r, i, ErrInvalidCondition)
			}
			kind := tokOp
			switch op {
			case "&&":
				kind = tokAnd
			case "||":
				kind = tokOr
			case "!":
				kind = tokNot
			}
			tokens = append(tokens, token{kind: kind, text: op, pos: i})
			i += n
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(rs)}), nil
}

func lexString(rs []rune, start int) (string, int, error) {
	quote := rs[start]
	var b strings.Builder
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			if i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
			}
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteRune(rs[i])
		}
	}
	return "", 0, errors.New("unterminated string")
}

func lexSymbol(rs []rune, i int) (string, int) {
	two := ""
	if i+1 < len(rs) {
		two = string(rs[i : i+2])
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		return two, 2
	}
	switch rs[i] {
	case '<', '>', '!':
		return string(rs[i]), 1
	case '=':
		return "==", 1
	}
	return "", 0
}

// ---- parser ----

type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return fmt.Errorf("condition %q: %s at %d: %w", p.src, fmt.Sprintf(format, args...), tok.pos, ErrInvalidCondition)
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected \")\", got %s", closing)
		}
		return inner, nil
	case tokIdent:
		return p.parseComparison(tok)
	default:
		return nil, p.errorf(tok, "expected parameter, got %s", tok)
	}
}

func (p *parser) parseComparison(ident token) (node, error) {
	name := strings.ToLower(ident.text)
	spec, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("condition %q: %q at %d: %w", p.src, ident.text, ident.pos, ErrUnknownParameter)
	}

	if p.peek().kind != tokOp {
		if spec.typ != TypeBool {
			return nil, p.errorf(ident, "%s is a %s and needs a comparison", name, spec.typ)
		}
		return boolParamNode{spec: spec}, nil
	}

	opTok := p.next()
	if !opsByType[spec.typ][opTok.text] {
		return nil, p.errorf(opTok, "operator %s does not apply to %s parameter %s", opTok.text, spec.typ, name)
	}

	litTok := p.next()
	lit, err := p.literal(litTok, spec.typ)
	if err != nil {
		return nil, err
	}
	return compareNode{spec: spec, op: opTok.text, lit: lit}, nil
}

func (p *parser) literal(tok token, want ParamType) (value, error) {
	switch tok.kind {
	case tokString:
		if want == TypeString {
			return value{typ: TypeString, s: tok.text}, nil
		}
		// Numbers written as strings ("2") are accepted for numeric parameters.
		if want == TypeNumber {
			if n, err := strconv.ParseFloat(tok.text, 64); err == nil {
				return value{typ: TypeNumber, n: n}, nil
			}
		}
	case tokNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return value{}, p.errorf(tok, "bad number %s", tok)
		}
		if want == TypeNumber {
			return value{typ: TypeNumber, n: n}, nil
		}
		// Library section ids and rating keys are strings that look like numbers.
		if want == TypeString {
			return value{typ: TypeString, s: tok.text}, nil
		}
	case tokBool:
		if want == TypeBool {
			return value{typ: TypeBool, b: tok.text == "true"}, nil
		}
	}
	return value{}, p.errorf(tok, "%s is not a %s literal", tok, want)
}
