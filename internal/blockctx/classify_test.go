package blockctx

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		suffix string
		want   Context
	}{
		{"plain paragraph", "Just some text", "", Text},
		{"closed inline math", "The $x$ value ", "", Text},
		{"open fence", "```go\nfunc main() {\n", "\n", CodeBlock},
		{"tilde fence", "~~~\nls -la ", "", CodeBlock},
		{"closed fence", "```go\nx := 1\n```\n", "", Text},
		{"display math closed", "$$\nx + ", "\n$$", MathBlock},
		{"display math open", "$$\nx + ", "", MathBlockOpen},
		{"inline math open at end", "$", "", MathBlockOpen},
		{"inline math open before newline", "$P(x) = ", "\n", MathBlockOpen},
		{"inline math closed after cursor", "where $P(x) = ", "$ holds", MathBlock},
		{"heading", "# Title ", "", Heading},
		{"heading level three", "### Notes on ", "\n\nbody", Heading},
		{"unordered list", "- first\n- sec", "ond\n", UnorderedList},
		{"unordered marker only", "Intro\n\n- ", "", UnorderedList},
		{"numbered list", "1. one\n2. tw", "", NumberedList},
		{"numbered marker only", "1. one\n2. ", "", NumberedList},
		{"task list", "- [ ] buy milk", "", TaskList},
		{"task list done", "- [x] ship it\n- [ ] ", "", TaskList},
		{"quote", "> quoted ", "", BlockQuotes},
		{"quote lazy continuation", "> first line\ncontinued", "", BlockQuotes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.prefix, tt.suffix)
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %s, want %s", tt.prefix, tt.suffix, got, tt.want)
			}
		})
	}
}

func TestClassify_SentenceIsNotNumbered(t *testing.T) {
	if got := Classify("Hello. ", ""); got != Text {
		t.Errorf("Classify() = %s, want Text", got)
	}
}

func TestContext_StringAndParse(t *testing.T) {
	for _, c := range All() {
		parsed, ok := Parse(c.String())
		if !ok {
			t.Fatalf("Parse(%q) not ok", c.String())
		}
		if parsed != c {
			t.Errorf("Parse(%q) = %s, want %s", c.String(), parsed, c)
		}
	}

	if _, ok := Parse("Nope"); ok {
		t.Error("Parse(Nope) ok = true, want false")
	}
	if Context(42).String() != "Text" {
		t.Errorf("Context(42).String() = %q, want Text", Context(42).String())
	}
}

func TestContext_IsMath(t *testing.T) {
	if !MathBlock.IsMath() || !MathBlockOpen.IsMath() {
		t.Error("math contexts should report IsMath")
	}
	if CodeBlock.IsMath() {
		t.Error("CodeBlock.IsMath() = true, want false")
	}
}
