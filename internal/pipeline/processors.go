package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/mathconv"
)

// PreProcessor transforms the text around the cursor before dispatch.
type PreProcessor interface {
	Process(split document.Split, c blockctx.Context) document.Split
	// RemovesCursor reports that the cursor position is not a valid
	// completion point for this processor.
	RemovesCursor(split document.Split) bool
}

// PostProcessor transforms a completion. split is the final pre-processed
// text the completion was generated for.
type PostProcessor interface {
	Process(split document.Split, completion string, c blockctx.Context) string
}

// DataviewRemover strips dataview query blocks, which are generated content
// and only confuse the model.
type DataviewRemover struct{}

var (
	dataviewBlock = regexp.MustCompile("(?ms)^[ \t]*```dataview(?:js)?[^\n]*\n.*?^[ \t]*```[ \t]*(?:\n|\\z)")
	dataviewOpen  = regexp.MustCompile("(?m)^[ \t]*```dataview(?:js)?")
)

func (DataviewRemover) Process(split document.Split, _ blockctx.Context) document.Split {
	return document.Split{
		Prefix: dataviewBlock.ReplaceAllLiteralString(split.Prefix, ""),
		Suffix: dataviewBlock.ReplaceAllLiteralString(split.Suffix, ""),
	}
}

// RemovesCursor is true when the cursor sits inside a dataview block.
func (DataviewRemover) RemovesCursor(split document.Split) bool {
	rest := dataviewBlock.ReplaceAllLiteralString(split.Prefix, "")
	return dataviewOpen.MatchString(rest)
}

// MathConverter rewrites native math delimiters to canonical ones. Code
// blocks are left alone: a `$` there is shell or template syntax.
type MathConverter struct{}

func (MathConverter) Process(split document.Split, c blockctx.Context) document.Split {
	if c == blockctx.CodeBlock {
		return split
	}
	return mathconv.Convert(split)
}

func (MathConverter) RemovesCursor(document.Split) bool { return false }

// LengthLimiter keeps the last PrefixLimit characters of the prefix and the
// first SuffixLimit characters of the suffix.
type LengthLimiter struct {
	PrefixLimit int
	SuffixLimit int
}

func (l LengthLimiter) Process(split document.Split, _ blockctx.Context) document.Split {
	return document.Split{
		Prefix: lastRunes(split.Prefix, l.PrefixLimit),
		Suffix: firstRunes(split.Suffix, l.SuffixLimit),
	}
}

func (LengthLimiter) RemovesCursor(document.Split) bool { return false }

func lastRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := len(s)
	for range n {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

func firstRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

// RemoveMathIndicators strips block delimiters the model repeats when the
// cursor is already inside a math block.
type RemoveMathIndicators struct{}

var (
	leadingBlockDelim  = regexp.MustCompile(`^\s*(?:\$\$|\\\[)`)
	trailingBlockDelim = regexp.MustCompile(`(?:\$\$|\\\])\s*$`)
)

func (RemoveMathIndicators) Process(_ document.Split, completion string, c blockctx.Context) string {
	switch c {
	case blockctx.MathBlock:
		completion = leadingBlockDelim.ReplaceAllLiteralString(completion, "")
		return trailingBlockDelim.ReplaceAllLiteralString(completion, "")
	case blockctx.MathBlockOpen:
		// The block still has to be closed, so only the opener is a duplicate.
		return leadingBlockDelim.ReplaceAllLiteralString(completion, "")
	default:
		return completion
	}
}

// RemoveCodeIndicators strips code fences the model repeats when the cursor
// is already inside a code block.
type RemoveCodeIndicators struct{}

var (
	leadingFence  = regexp.MustCompile("^\\s*```[^\n]*\n?")
	trailingFence = regexp.MustCompile("\n?```\\s*$")
)

func (RemoveCodeIndicators) Process(_ document.Split, completion string, c blockctx.Context) string {
	if c != blockctx.CodeBlock {
		return completion
	}
	completion = leadingFence.ReplaceAllLiteralString(completion, "")
	return trailingFence.ReplaceAllLiteralString(completion, "")
}

// MathReverter maps canonical math delimiters in the completion back to
// native syntax.
type MathReverter struct{}

func (MathReverter) Process(split document.Split, completion string, c blockctx.Context) string {
	return mathconv.Reverse(completion, split, c)
}

// RemoveOverlap drops words at the start of the completion that repeat the end
// of the prefix, and words at the end that repeat the start of the suffix.
type RemoveOverlap struct{}

func (RemoveOverlap) Process(split document.Split, completion string, _ blockctx.Context) string {
	completion = completion[prefixOverlap(split.Prefix, completion):]
	return completion[:len(completion)-suffixOverlap(completion, split.Suffix)]
}

// prefixOverlap returns the length of the longest completion head that the
// prefix ends with, counting only overlaps that start and end on word
// boundaries and contain a non-space character.
func prefixOverlap(prefix, completion string) int {
	for k := min(len(prefix), len(completion)); k > 0; k-- {
		head := completion[:k]
		if !strings.HasSuffix(prefix, head) || strings.TrimSpace(head) == "" {
			continue
		}
		start := len(prefix) - k
		if start > 0 && !wordBoundary(prefix[:start], head) {
			continue
		}
		if k < len(completion) && !wordBoundary(head, completion[k:]) {
			continue
		}
		return k
	}
	return 0
}

// suffixOverlap is prefixOverlap mirrored: the longest completion tail that
// the suffix starts with.
func suffixOverlap(completion, suffix string) int {
	for k := min(len(suffix), len(completion)); k > 0; k-- {
		tail := completion[len(completion)-k:]
		if !strings.HasPrefix(suffix, tail) || strings.TrimSpace(tail) == "" {
			continue
		}
		if k < len(suffix) && !wordBoundary(tail, suffix[k:]) {
			continue
		}
		if k < len(completion) && !wordBoundary(completion[:len(completion)-k], tail) {
			continue
		}
		return k
	}
	return 0
}

// wordBoundary reports whether a word boundary lies between left and right.
func wordBoundary(left, right string) bool {
	l, _ := utf8.DecodeLastRuneInString(left)
	r, _ := utf8.DecodeRuneInString(right)
	return !isWordRune(l) || !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// RemoveWhitespace avoids doubled whitespace where the completion meets the
// prefix or the suffix.
type RemoveWhitespace struct{}

func (RemoveWhitespace) Process(split document.Split, completion string, _ blockctx.Context) string {
	switch {
	case strings.HasSuffix(split.Prefix, "\n"):
		completion = strings.TrimLeft(completion, "\n")
	case strings.HasSuffix(split.Prefix, " "), strings.HasSuffix(split.Prefix, "\t"):
		completion = strings.TrimLeft(completion, " \t")
	}
	switch {
	case strings.HasPrefix(split.Suffix, "\n"):
		completion = strings.TrimRight(completion, " \t\n")
	case strings.HasPrefix(split.Suffix, " "), strings.HasPrefix(split.Suffix, "\t"):
		completion = strings.TrimRight(completion, " \t")
	}
	return completion
}
