package mathconv

import (
	"strings"

	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/errors"
)

// Canonical delimiters.
const (
	InlineOpen  = `\(`
	InlineClose = `\)`
	BlockOpen   = `\[`
	BlockClose  = `\]`
)

type state int

const (
	stateNormal state = iota
	stateOpenSingle
	stateOpenDouble
)

// scanner carries the converter state through one pass over the token stream.
type scanner struct {
	tokens []Token
	state  state

	// anchor is the index of the opening delimiter of the open span.
	anchor int
	// splitAt is the index of a $$ whose first $ closed a single span; only
	// its second $ is still unemitted.
	splitAt int
	// pending is the first token not yet written to the output.
	pending int

	inSuffix bool
	prefix   strings.Builder
	suffix   strings.Builder
}

// Convert rewrites native math delimiters in s to canonical ones.
//
// Closed $...$ spans become \(...\) and $$...$$ spans become \[...\]. An
// unclosed $ span that the cursor sits in is opened with \( but left unclosed;
// one that ends before the cursor is kept verbatim. An unclosed $$ span is
// kept verbatim.
func Convert(s document.Split) document.Split {
	sc := &scanner{
		tokens:  Tokenize(s.Prefix, s.Suffix),
		splitAt: -1,
	}
	for i, tok := range sc.tokens {
		sc.step(i, tok)
	}
	sc.commit("", sc.pending, len(sc.tokens), "")
	return document.Split{Prefix: sc.prefix.String(), Suffix: sc.suffix.String()}
}

func (sc *scanner) step(i int, tok Token) {
	switch sc.state {
	case stateNormal:
		switch tok.Kind {
		case KindDollarSingle:
			sc.open(i, stateOpenSingle)
		case KindDollarDouble:
			sc.open(i, stateOpenDouble)
		}

	case stateOpenSingle:
		switch tok.Kind {
		case KindDollarSingle:
			sc.commit(InlineOpen, sc.anchor+1, i, InlineClose)
			sc.state = stateNormal
			sc.pending = i + 1
		case KindDollarDouble:
			// $a$$b$ is two adjacent spans: the first $ closes, the second opens.
			sc.commit(InlineOpen, sc.anchor+1, i, InlineClose)
			sc.anchor = i
			sc.splitAt = i
			sc.pending = i
		case KindNewline, KindEnd:
			if sc.containsCursor(sc.anchor+1, i) {
				sc.commit(InlineOpen, sc.anchor+1, i+1, "")
				sc.pending = i + 1
			}
			// Otherwise the dangling $ and its span stay pending and are
			// flushed verbatim.
			sc.state = stateNormal
		}

	case stateOpenDouble:
		if tok.Kind == KindDollarDouble {
			sc.commit(BlockOpen, sc.anchor+1, i, BlockClose)
			sc.state = stateNormal
			sc.pending = i + 1
		}

	default:
		panic(errors.NewInternal(nil))
	}
}

// open flushes everything pending before the delimiter at i and opens a span.
func (sc *scanner) open(i int, next state) {
	sc.commit("", sc.pending, i, "")
	sc.state = next
	sc.anchor = i
	sc.pending = i
}

// commit writes opening, tokens[from:to] and closing to the output. Passing
// the cursor marker switches the output to the suffix for good.
func (sc *scanner) commit(opening string, from, to int, closing string) {
	sc.emit(opening)
	for k := from; k < to; k++ {
		tok := sc.tokens[k]
		if tok.Kind == KindCursor {
			sc.inSuffix = true
			continue
		}
		if k == sc.splitAt {
			sc.emit("$")
			continue
		}
		sc.emit(tok.Literal())
	}
	sc.emit(closing)
}

func (sc *scanner) emit(s string) {
	if sc.inSuffix {
		sc.suffix.WriteString(s)
	} else {
		sc.prefix.WriteString(s)
	}
}

func (sc *scanner) containsCursor(from, to int) bool {
	for k := from; k < to; k++ {
		if sc.tokens[k].Kind == KindCursor {
			return true
		}
	}
	return false
}
