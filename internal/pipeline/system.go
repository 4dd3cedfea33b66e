package pipeline

import "github.com/hpungsan/fern/internal/blockctx"

var contextGuidance = map[blockctx.Context]string{
	blockctx.Text:          "The text is located in a paragraph. Your answer must complete this paragraph or sentence in a way that fits the surrounding text without overlapping with it. It must be in the same language as the paragraph.",
	blockctx.Heading:       "The text is located in the Markdown heading. Your answer must complete this title in a way that fits the content of this paragraph and be in the same language as the paragraph.",
	blockctx.BlockQuotes:   "The text is located within a quote. Your answer must complete this quote in a way that fits the context of the paragraph.",
	blockctx.UnorderedList: "The text is located in an unordered list. Your answer must include one or more list items that fit with the surrounding list without overlapping with it.",
	blockctx.NumberedList:  "The text is located in a numbered list. Your answer must include one or more list items that fit the sequence and context of the surrounding list without overlapping with it.",
	blockctx.CodeBlock:     "The text is located in a code block. Your answer must complete this code block in the same programming language and support the surrounding code and text outside of the code block.",
	blockctx.MathBlock:     "The text is located in a math block. Your answer must only contain LaTeX code that captures the math discussed in the surrounding text. No text or explanation, only LaTeX math code.",
	blockctx.MathBlockOpen: "The text is located in an opened math block. Your answer must only contain LaTeX code that captures the math discussed in the surrounding text. No text or explanation, only LaTeX math code, then close the block.",
	blockctx.TaskList:      "The text is located in a task list. Your answer must include one or more (sub)tasks that are logical given the other tasks and the surrounding text.",
}

// SystemMessage appends the guidance for context c to base.
func SystemMessage(base string, c blockctx.Context) string {
	guidance, ok := contextGuidance[c]
	if !ok {
		return base
	}
	return base + "\n\n" + guidance
}
