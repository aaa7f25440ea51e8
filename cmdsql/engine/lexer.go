package engine

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokComment
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) significant() bool {
	return t.kind != tokSpace && t.kind != tokComment
}

func (t token) is(punct string) bool {
	return t.kind == tokPunct && t.text == punct
}

func (t token) keyword() string {
	if t.kind != tokIdent {
		return ""
	}
	return strings.ToUpper(t.text)
}

// name returns the identifier with quoting removed.
func (t token) name() string {
	switch t.kind {
	case tokIdent:
		return t.text
	case tokQuotedIdent:
		inner := t.text[1 : len(t.text)-1]
		switch t.text[0] {
		case '"':
			return strings.ReplaceAll(inner, `""`, `"`)
		case '`':
			return strings.ReplaceAll(inner, "``", "`")
		}
		return inner
	}
	return ""
}

// stringValue unquotes a single-quoted SQL string.
func (t token) stringValue() string {
	return strings.ReplaceAll(t.text[1:len(t.text)-1], "''", "'")
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lex splits sql into tokens whose texts concatenate back to sql.
func lex(sql string) ([]token, error) {
	var tokens []token
	src := []rune(sql)

	for i := 0; i < len(src); {
		start := i
		r := src[i]

		switch {
		case unicode.IsSpace(r):
			for i < len(src) && unicode.IsSpace(src[i]) {
				i++
			}
			tokens = append(tokens, token{tokSpace, string(src[start:i])})

		case r == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			tokens = append(tokens, token{tokComment, string(src[start:i])})

		case r == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				i++
			}
			if i+1 >= len(src) {
				return nil, fmt.Errorf("unterminated comment at offset %d", start)
			}
			i += 2
			tokens = append(tokens, token{tokComment, string(src[start:i])})

		case r == '\'':
			j, err := scanQuoted(src, i, '\'')
			if err != nil {
				return nil, err
			}
			i = j
			tokens = append(tokens, token{tokString, string(src[start:i])})

		case r == '"' || r == '`':
			j, err := scanQuoted(src, i, r)
			if err != nil {
				return nil, err
			}
			i = j
			tokens = append(tokens, token{tokQuotedIdent, string(src[start:i])})

		case r == '[':
			for i < len(src) && src[i] != ']' {
				i++
			}
			if i == len(src) {
				return nil, fmt.Errorf("unterminated identifier at offset %d", start)
			}
			i++
			tokens = append(tokens, token{tokQuotedIdent, string(src[start:i])})

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(src) && unicode.IsDigit(src[i+1])):
			for i < len(src) && (unicode.IsDigit(src[i]) || src[i] == '.' || src[i] == 'e' || src[i] == 'E' ||
				((src[i] == '+' || src[i] == '-') && (src[i-1] == 'e' || src[i-1] == 'E'))) {
				i++
			}
			tokens = append(tokens, token{tokNumber, string(src[start:i])})

		case isIdentStart(r):
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{tokIdent, string(src[start:i])})

		default:
			i++
			tokens = append(tokens, token{tokPunct, string(r)})
		}
	}
	return tokens, nil
}

// scanQuoted returns the index just past the closing quote. A doubled
// quote inside the literal is an escaped quote.
func scanQuoted(src []rune, i int, quote rune) (int, error) {
	start := i
	i++
	for i < len(src) {
		if src[i] == quote {
			if i+1 < len(src) && src[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, fmt.Errorf("unterminated quoted text at offset %d", start)
}
