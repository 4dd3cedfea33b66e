package mathconv

import (
	"regexp"
	"strings"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
)

var (
	// Inline math is not recognized by the host when the delimiter touches
	// whitespace on the inside, so the whitespace goes with the delimiter.
	inlinePattern = regexp.MustCompile(`\\\(\s*|\s*\\\)`)
	blockPattern  = regexp.MustCompile(`\\\[|\\\]`)
)

// Reverse maps canonical delimiters in a completion back to native syntax.
// split is the prefix/suffix the completion was generated for, after
// conversion; c is the context of the original cursor position. Completions
// inside code or math blocks keep their delimiters.
func Reverse(completion string, split document.Split, c blockctx.Context) string {
	if strings.HasSuffix(split.Prefix, InlineOpen) && strings.HasPrefix(completion, InlineOpen) {
		completion = completion[len(InlineOpen):]
	}
	if c == blockctx.CodeBlock || c == blockctx.MathBlock {
		return completion
	}
	completion = inlinePattern.ReplaceAllLiteralString(completion, "$")
	return blockPattern.ReplaceAllLiteralString(completion, "$$")
}
