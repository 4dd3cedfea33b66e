// Package mathconv converts between native ($, $$) and canonical (\( \), \[ \])
// math delimiters in cursor-split markdown.
package mathconv

import (
	"iter"
	"regexp"
	"slices"

	"github.com/hpungsan/fern/internal/errors"
)

// Kind identifies a token produced by the lexer or injected by the tokenizer.
type Kind int

const (
	KindText Kind = iota
	KindDollarSingle
	KindDollarDouble
	KindNewline
	KindCursor // boundary between prefix and suffix, never produced by Lex
	KindEnd    // zero-length terminator, never produced by Lex
)

// Token is a lexical unit. Text is only set for KindText and is non-empty
// for lexer output.
type Token struct {
	Kind Kind
	Text string
}

// Literal returns the source text the token stands for.
func (t Token) Literal() string {
	switch t.Kind {
	case KindDollarSingle:
		return "$"
	case KindDollarDouble:
		return "$$"
	case KindNewline:
		return "\n"
	case KindText:
		return t.Text
	default:
		return ""
	}
}

var (
	dollarSingle = Token{Kind: KindDollarSingle}
	dollarDouble = Token{Kind: KindDollarDouble}
	newline      = Token{Kind: KindNewline}
	cursorMarker = Token{Kind: KindCursor}
	endMarker    = Token{Kind: KindEnd}
)

// markerPattern matches the longest marker at each position; RE2 alternation
// is leftmost-first so $$ wins over $.
var markerPattern = regexp.MustCompile(`\$\$|\$|\n`)

// Tokens lexes s lazily. The sequence can be ranged over any number of times.
func Tokens(s string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		i := 0
		for _, m := range markerPattern.FindAllStringIndex(s, -1) {
			if i != m[0] {
				if !yield(Token{Kind: KindText, Text: s[i:m[0]]}) {
					return
				}
			}
			i = m[1]
			if !yield(classify(s[m[0]:m[1]], m[0])) {
				return
			}
		}
		if i < len(s) {
			yield(Token{Kind: KindText, Text: s[i:]})
		}
	}
}

// Lex splits s into text runs and $, $$ and newline markers. Concatenating the
// literals of the result reproduces s.
func Lex(s string) []Token {
	return slices.Collect(Tokens(s))
}

// Tokenize lexes both halves and joins them around a cursor marker, followed by
// an end marker so the converter always sees a terminating event.
func Tokenize(prefix, suffix string) []Token {
	tokens := Lex(prefix)
	tokens = append(tokens, cursorMarker)
	tokens = append(tokens, Lex(suffix)...)
	return append(tokens, endMarker)
}

// classify maps a marker match to its token. The pattern only matches the
// three markers, anything else is a defect.
func classify(match string, offset int) Token {
	switch match {
	case "$$":
		return dollarDouble
	case "$":
		return dollarSingle
	case "\n":
		return newline
	default:
		panic(errors.NewLexicalImpossibility(match, offset))
	}
}
