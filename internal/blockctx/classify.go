package blockctx

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// fencePattern matches fenced code block delimiters (``` or ~~~) at the start of a line,
// allowing the 0-3 spaces of indentation CommonMark permits.
var fencePattern = regexp.MustCompile("(?m)^[ ]{0,3}(`{3,}|~{3,})")

// Line-level fallbacks for blocks goldmark does not materialize yet,
// e.g. a list item that has only its marker typed.
var (
	taskLinePattern      = regexp.MustCompile(`^\s*([-*+]|[0-9]+\.) \[.\]\s`)
	unorderedLinePattern = regexp.MustCompile(`^\s*[-*+][\t ]`)
	numberedLinePattern  = regexp.MustCompile(`^\s*[0-9]+\.[\t ]`)
	headingLinePattern   = regexp.MustCompile(`^#{1,6}[\t ]`)
	quoteLinePattern     = regexp.MustCompile(`^\s*>`)
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.TaskList))

// Classify returns the context of the cursor located between prefix and suffix.
// It is pure and has no side effects.
func Classify(prefix, suffix string) Context {
	if openFence(prefix) {
		return CodeBlock
	}
	if c, ok := mathContext(prefix, suffix); ok {
		return c
	}
	if c, ok := structuralContext(prefix, suffix); ok {
		return c
	}
	return lineContext(currentLine(prefix))
}

// openFence reports whether prefix ends inside a fenced code block.
// A closing fence must use the same character and be at least as long as the opening one.
func openFence(prefix string) bool {
	matches := fencePattern.FindAllStringSubmatchIndex(prefix, -1)

	var openChar byte
	var openLen int
	inFence := false

	for _, match := range matches {
		fenceChars := prefix[match[2]:match[3]]
		char := fenceChars[0]
		fenceLen := len(fenceChars)

		if !inFence {
			openChar = char
			openLen = fenceLen
			inFence = true
		} else if char == openChar && fenceLen >= openLen {
			inFence = false
		}
	}
	return inFence
}

// mathContext detects display blocks ($$ ... $$) and inline spans ($ ... $)
// that the cursor is inside of.
func mathContext(prefix, suffix string) (Context, bool) {
	if strings.Count(prefix, "$$")%2 == 1 {
		if strings.Contains(suffix, "$$") {
			return MathBlock, true
		}
		return MathBlockOpen, true
	}

	line := strings.ReplaceAll(currentLine(prefix), "$$", "")
	if strings.Count(line, "$")%2 == 1 {
		rest := suffix
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if strings.Contains(strings.ReplaceAll(rest, "$$", ""), "$") {
			return MathBlock, true
		}
		return MathBlockOpen, true
	}
	return Text, false
}

// structuralContext parses the document and walks up from the block that
// contains the cursor.
func structuralContext(prefix, suffix string) (Context, bool) {
	src := []byte(prefix + suffix)
	pos := len(prefix)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var leaf ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			if covers(lines.At(i), pos, src) {
				leaf = n
			}
		}
		return ast.WalkContinue, nil
	})
	if leaf == nil {
		return Text, false
	}

	for n := leaf; n != nil; n = n.Parent() {
		switch n.Kind() {
		case ast.KindHeading:
			return Heading, true
		case ast.KindFencedCodeBlock:
			return CodeBlock, true
		case ast.KindListItem:
			if hasTaskCheckBox(n) {
				return TaskList, true
			}
			if list, ok := n.Parent().(*ast.List); ok && list.IsOrdered() {
				return NumberedList, true
			}
			return UnorderedList, true
		case ast.KindBlockquote:
			return BlockQuotes, true
		}
	}
	return Text, false
}

// covers reports whether pos falls on seg. A position right after a newline
// belongs to the next line.
func covers(seg text.Segment, pos int, src []byte) bool {
	if pos < seg.Start || pos > seg.Stop {
		return false
	}
	if pos == seg.Stop && pos > 0 && src[pos-1] == '\n' {
		return false
	}
	return true
}

func hasTaskCheckBox(item ast.Node) bool {
	block := item.FirstChild()
	if block == nil {
		return false
	}
	first := block.FirstChild()
	return first != nil && first.Kind() == extast.KindTaskCheckBox
}

func lineContext(line string) Context {
	switch {
	case taskLinePattern.MatchString(line):
		return TaskList
	case unorderedLinePattern.MatchString(line):
		return UnorderedList
	case numberedLinePattern.MatchString(line):
		return NumberedList
	case headingLinePattern.MatchString(line):
		return Heading
	case quoteLinePattern.MatchString(line):
		return BlockQuotes
	default:
		return Text
	}
}

func currentLine(prefix string) string {
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		return prefix[i+1:]
	}
	return prefix
}
