package lock

import "strings"

// --------------------------------------------------------------------------
// If header conditions
// --------------------------------------------------------------------------

// ConditionToken is one parenthesized state test of an If header.
// Token is stored without angle brackets, ETag verbatim (quotes included).
type ConditionToken struct {
	Positive bool
	Token    string
	ETag     string
}

// Condition groups the state tests that apply to one resource.
// The tokens of a condition are alternatives; all conditions of a header must hold.
// An empty URI refers to the request target.
type Condition struct {
	URI    string
	Tokens []ConditionToken
}

// ParseIfHeader parses the value of an If request header.
//
// The header is scanned for groups of the form
//
//	[<uri> ]( [Not ][<token>][ ][[etag]] )
//
// Text that does not form a group is skipped. A group without a URI extends
// the previous condition; if there is none it opens a condition with an empty URI.
// A group with a URI always opens a new condition.
func ParseIfHeader(header string) []Condition {
	var conditions []Condition
	p := ifParser{s: header}

	for p.pos < len(p.s) {
		uri, tok, next, ok := p.matchAt(p.pos)
		if !ok {
			p.pos++
			continue
		}
		p.pos = next

		if uri == "" && len(conditions) > 0 {
			last := &conditions[len(conditions)-1]
			last.Tokens = append(last.Tokens, tok)
			continue
		}
		conditions = append(conditions, Condition{URI: uri, Tokens: []ConditionToken{tok}})
	}
	return conditions
}

type ifParser struct {
	s   string
	pos int
}

// matchAt tries to match one (optionally URI-tagged) group starting exactly at i.
// It returns the group, its URI and the position right after it.
func (p *ifParser) matchAt(i int) (string, ConditionToken, int, bool) {
	switch p.s[i] {
	case '(':
		tok, next, ok := p.group(i)
		return "", tok, next, ok
	case '<':
		// The tagged URI is matched lazily: try every closing '>' in order until
		// the group following it matches. The URI never spans a line break.
		for end := i + 1; end < len(p.s) && p.s[end] != '\n'; end++ {
			if p.s[end] != '>' {
				continue
			}
			if end+2 >= len(p.s) || !isSpace(p.s[end+1]) || p.s[end+2] != '(' {
				continue
			}
			if tok, next, ok := p.group(end + 2); ok {
				return p.s[i+1 : end], tok, next, true
			}
		}
	}
	return "", ConditionToken{}, 0, false
}

// group matches "(" [Not<ws>] [<token>] [<ws>] [[etag]] ")" starting at i.
func (p *ifParser) group(i int) (ConditionToken, int, bool) {
	s := p.s
	tok := ConditionToken{Positive: true}
	if i >= len(s) || s[i] != '(' {
		return tok, 0, false
	}
	i++

	if i+4 <= len(s) && strings.EqualFold(s[i:i+3], "not") && isSpace(s[i+3]) {
		tok.Positive = false
		i += 4
	}

	if i < len(s) && s[i] == '<' {
		if end := strings.IndexByte(s[i+1:], '>'); end >= 0 {
			tok.Token = s[i+1 : i+1+end]
			i += end + 2
		}
	}

	if i < len(s) && isSpace(s[i]) {
		i++
	}

	if i < len(s) && s[i] == '[' {
		if end := strings.IndexByte(s[i+1:], ']'); end >= 0 {
			tok.ETag = s[i+1 : i+1+end]
			i += end + 2
		}
	}

	if i >= len(s) || s[i] != ')' {
		return tok, 0, false
	}
	return tok, i + 1, true
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
