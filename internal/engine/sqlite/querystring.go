package sqlite

import (
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/query"
)

type qsKind int

const (
	qsTerm qsKind = iota
	qsPhrase
	qsAnd
	qsOr
	qsNot
	qsAll
)

// qsNode is a parsed query-string expression.
type qsNode struct {
	kind     qsKind
	field    string
	terms    []string
	fuzz     int
	children []*qsNode
}

type qsKey struct {
	query string
	op    query.Operator
}

type queryStringCache struct {
	mu    sync.Mutex
	nodes map[qsKey]*qsNode
}

func newQueryStringCache() *queryStringCache {
	return &queryStringCache{nodes: map[qsKey]*qsNode{}}
}

// parse returns the cached tree of s. Trees are shared and must not be
// modified.
func (c *queryStringCache) parse(s string, op query.Operator) *qsNode {
	key := qsKey{query: s, op: op}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[key]; ok {
		return n
	}
	n := parseQueryString(s, op)
	if len(c.nodes) > 256 {
		clear(c.nodes)
	}
	c.nodes[key] = n
	return n
}

type qsToken struct {
	kind  string // "(", ")", "AND", "OR", "NOT", "word", "phrase"
	text  string
	field string
}

func lexQueryString(s string) []qsToken {
	var toks []qsToken
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			toks = append(toks, qsToken{kind: string(r)})
			i++
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			toks = append(toks, qsToken{kind: "phrase", text: string(rs[i+1 : min(j, len(rs))])})
			i = j + 1
			// Skip a proximity suffix such as "a b"~2.
			for i < len(rs) && !unicode.IsSpace(rs[i]) && rs[i] != '(' && rs[i] != ')' {
				i++
			}
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '(' && rs[j] != ')' && rs[j] != '"' {
				j++
			}
			word := string(rs[i:j])
			i = j
			toks = append(toks, wordTokens(word, rs, &i)...)
		}
	}
	return toks
}

func wordTokens(word string, rs []rune, i *int) []qsToken {
	switch word {
	case "AND", "&&":
		return []qsToken{{kind: "AND"}}
	case "OR", "||":
		return []qsToken{{kind: "OR"}}
	case "NOT":
		return []qsToken{{kind: "NOT"}}
	}
	var prefix []qsToken
	switch {
	case strings.HasPrefix(word, "-") || strings.HasPrefix(word, "!"):
		prefix = []qsToken{{kind: "NOT"}}
		word = word[1:]
	case strings.HasPrefix(word, "+"):
		word = word[1:]
	}
	field := ""
	if f, rest, ok := strings.Cut(word, ":"); ok && f != "" {
		field, word = f, rest
		if word == "" && *i < len(rs) && rs[*i] == '"' {
			j := *i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			phrase := string(rs[*i+1 : min(j, len(rs))])
			*i = j + 1
			return append(prefix, qsToken{kind: "phrase", text: phrase, field: field})
		}
	}
	if word == "" {
		return prefix
	}
	return append(prefix, qsToken{kind: "word", text: word, field: field})
}

type qsParser struct {
	toks []qsToken
	pos  int
	// implicit joins adjacent clauses that have no operator between them.
	implicit qsKind
}

func (p *qsParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos].kind
}

// parseQueryString parses leniently: unbalanced parentheses are tolerated
// and adjacency means op (OR by default), except before NOT where it means
// AND.
func parseQueryString(s string, op query.Operator) *qsNode {
	p := &qsParser{toks: lexQueryString(s), implicit: qsOr}
	if op == query.OperatorAnd {
		p.implicit = qsAnd
	}
	n := p.parseOr()
	if n == nil {
		return &qsNode{kind: qsAll}
	}
	return n
}

func (p *qsParser) parseOr() *qsNode {
	left := p.parseAnd()
	for {
		kind := p.implicit
		switch p.peek() {
		case "OR":
			p.pos++
			kind = qsOr
		case "", ")":
			return left
		case "AND":
			p.pos++
			continue
		}
		right := p.parseAnd()
		if right == nil {
			return left
		}
		left = join(kind, left, right)
	}
}

func (p *qsParser) parseAnd() *qsNode {
	left := p.parseUnary()
	for {
		switch p.peek() {
		case "AND":
			p.pos++
		case "NOT":
		default:
			return left
		}
		right := p.parseUnary()
		if right == nil {
			return left
		}
		left = join(qsAnd, left, right)
	}
}

func (p *qsParser) parseUnary() *qsNode {
	switch p.peek() {
	case "NOT":
		p.pos++
		child := p.parseUnary()
		if child == nil {
			return nil
		}
		return &qsNode{kind: qsNot, children: []*qsNode{child}}
	case "(":
		p.pos++
		n := p.parseOr()
		if p.peek() == ")" {
			p.pos++
		}
		return n
	case "word":
		t := p.toks[p.pos]
		p.pos++
		return termNode(t.field, t.text)
	case "phrase":
		t := p.toks[p.pos]
		p.pos++
		terms := tokenize(t.text)
		if len(terms) == 0 {
			return nil
		}
		return &qsNode{kind: qsPhrase, field: t.field, terms: terms}
	case ")":
		p.pos++
		return p.parseUnary()
	}
	return nil
}

func termNode(field, word string) *qsNode {
	fuzz := 0
	if base, suffix, ok := strings.Cut(word, "~"); ok {
		word = base
		fuzz = 2
		if n, err := strconv.Atoi(suffix); err == nil {
			fuzz = min(max(n, 0), 2)
		}
	}
	word = strings.ToLower(word)
	if strings.ContainsAny(word, "*?") {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '*' || r == '?' {
				return r
			}
			return -1
		}, word)
		if cleaned == "" {
			return nil
		}
		return &qsNode{kind: qsTerm, field: field, terms: []string{cleaned}}
	}
	terms := tokenize(word)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return &qsNode{kind: qsTerm, field: field, terms: terms, fuzz: fuzz}
	}
	return &qsNode{kind: qsPhrase, field: field, terms: terms}
}

func join(kind qsKind, left, right *qsNode) *qsNode {
	if left == nil {
		return right
	}
	if left.kind == kind {
		left.children = append(left.children, right)
		return left
	}
	return &qsNode{kind: kind, children: []*qsNode{left, right}}
}
