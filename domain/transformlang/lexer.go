package transformlang

import (
	"fmt"
	"strings"
	"unicode"

	pkgerrors "fluxstore/pkg/errors"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenKeyword
	tokenOperator
	tokenPunct
)

var keywords = map[string]bool{
	"let":    true,
	"return": true,
	"if":     true,
	"then":   true,
	"else":   true,
	"and":    true,
	"or":     true,
	"not":    true,
	"true":   true,
	"false":  true,
	"null":   true,
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// lex splits source text into tokens. Identifiers are letters, digits and
// underscores starting with a letter or underscore; strings are
// double-quoted with backslash escapes.
func lex(source string) ([]token, error) {
	var tokens []token
	runes := []rune(source)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			text := string(runes[start:i])
			if strings.Count(text, ".") > 1 {
				return nil, pkgerrors.NewValidation(fmt.Sprintf("malformed number %q at position %d", text, start))
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: start})

		case r == '"':
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				if runes[i] == '\\' && i+1 < len(runes) {
					switch runes[i+1] {
					case 'n':
						sb.WriteRune('\n')
					case 't':
						sb.WriteRune('\t')
					default:
						sb.WriteRune(runes[i+1])
					}
					i += 2
					continue
				}
				if runes[i] == '"' {
					closed = true
					i++
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, pkgerrors.NewValidation(fmt.Sprintf("unterminated string at position %d", start))
			}
			tokens = append(tokens, token{kind: tokenString, text: sb.String(), pos: start})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			text := string(runes[start:i])
			kind := tokenIdent
			if keywords[text] {
				kind = tokenKeyword
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})

		case r == '<' || r == '>' || r == '!':
			start := i
			i++
			text := string(r)
			if i < len(runes) && runes[i] == '=' {
				text += "="
				i++
			}
			if text == "!" {
				return nil, pkgerrors.NewValidation(fmt.Sprintf("unexpected character '!' at position %d", start))
			}
			tokens = append(tokens, token{kind: tokenOperator, text: text, pos: start})

		case strings.ContainsRune("+-*/^=", r):
			tokens = append(tokens, token{kind: tokenOperator, text: string(r), pos: i})
			i++

		case strings.ContainsRune("().,;", r):
			tokens = append(tokens, token{kind: tokenPunct, text: string(r), pos: i})
			i++

		default:
			return nil, pkgerrors.NewValidation(fmt.Sprintf("unexpected character %q at position %d", string(r), i))
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(runes)})
	return tokens, nil
}
