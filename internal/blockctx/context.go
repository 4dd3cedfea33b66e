// Package blockctx classifies the markdown block that surrounds the cursor.
package blockctx

// Context is the kind of markdown block the cursor sits in.
type Context int

const (
	Text Context = iota
	Heading
	BlockQuotes
	UnorderedList
	NumberedList
	TaskList
	CodeBlock
	MathBlock
	MathBlockOpen
)

var contextNames = map[Context]string{
	Text:          "Text",
	Heading:       "Heading",
	BlockQuotes:   "BlockQuotes",
	UnorderedList: "UnorderedList",
	NumberedList:  "NumberedList",
	TaskList:      "TaskList",
	CodeBlock:     "CodeBlock",
	MathBlock:     "MathBlock",
	MathBlockOpen: "MathBlockOpen",
}

// String returns the context name.
func (c Context) String() string {
	if name, ok := contextNames[c]; ok {
		return name
	}
	return "Text"
}

// IsMath reports whether the cursor is inside a math block, closed or not.
func (c Context) IsMath() bool {
	return c == MathBlock || c == MathBlockOpen
}

// Parse maps a context name back to its value.
func Parse(name string) (Context, bool) {
	for c, n := range contextNames {
		if n == name {
			return c, true
		}
	}
	return Text, false
}

// All returns every context in declaration order.
func All() []Context {
	return []Context{
		Text, Heading, BlockQuotes, UnorderedList, NumberedList,
		TaskList, CodeBlock, MathBlock, MathBlockOpen,
	}
}
