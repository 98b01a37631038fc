package directory

import (
	"fmt"
	"strings"
	"unicode"
)

// predicate evaluates a parsed filter against a record.
type predicate func(Record) bool

// parseFilter compiles a filter string into a predicate. The grammar matches
// the builders in filter.go: eq/ne clauses joined by and/or, with parentheses.
// "and" binds tighter than "or".
func parseFilter(filter string) (predicate, error) {
	toks, err := tokenize(filter)
	if err != nil {
		return nil, err
	}
	p := &filterParser{toks: toks}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("invalid filter: unexpected %q", p.toks[p.pos].text)
	}
	return pred, nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(filter string) ([]token, error) {
	var toks []token
	runes := []rune(filter)
	for i := 0; i < len(runes); {
		switch r := runes[i]; {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			if j == len(runes) {
				return nil, fmt.Errorf("invalid filter: unterminated string")
			}
			toks = append(toks, token{tokString, string(runes[i+1 : j])})
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '(' && runes[j] != ')' && runes[j] != '"' {
				j++
			}
			toks = append(toks, token{tokWord, string(runes[i:j])})
			i = j
		}
	}
	return toks, nil
}

type filterParser struct {
	toks []token
	pos  int
}

func (p *filterParser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(rec Record) bool { return l(rec) || r(rec) }
	}
	return left, nil
}

func (p *filterParser) parseAnd() (predicate, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(rec Record) bool { return l(rec) && r(rec) }
	}
	return left, nil
}

func (p *filterParser) parsePrimary() (predicate, error) {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tokLParen {
		p.pos++
		pred, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("invalid filter: missing closing parenthesis")
		}
		p.pos++
		return pred, nil
	}
	return p.parseClause()
}

func (p *filterParser) parseClause() (predicate, error) {
	if p.pos+3 > len(p.toks) {
		return nil, fmt.Errorf("invalid filter: incomplete clause")
	}
	field := p.toks[p.pos]
	op := p.toks[p.pos+1]
	value := p.toks[p.pos+2]
	if field.kind != tokWord || op.kind != tokWord || value.kind != tokString {
		return nil, fmt.Errorf("invalid filter: malformed clause near %q", field.text)
	}
	p.pos += 3

	name, want := field.text, value.text
	switch strings.ToLower(op.text) {
	case "eq":
		return func(rec Record) bool { return fieldString(rec, name) == want }, nil
	case "ne":
		return func(rec Record) bool { return fieldString(rec, name) != want }, nil
	default:
		return nil, fmt.Errorf("invalid filter: unsupported operator %q", op.text)
	}
}

func (p *filterParser) keyword(word string) bool {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord && strings.EqualFold(p.toks[p.pos].text, word) {
		p.pos++
		return true
	}
	return false
}

func fieldString(rec Record, field string) string {
	v, ok := rec[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
