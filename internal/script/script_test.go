package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
)

func TestProcess_TransformsCompletion(t *testing.T) {
	p, err := LoadString("upper", `
function process(prefix, suffix, completion, context)
  if context == "CodeBlock" then
    return completion
  end
  return string.upper(completion)
end
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	split := document.New("a ", " b")
	if got := p.Process(split, "hello", blockctx.Text); got != "HELLO" {
		t.Errorf("Process(Text) = %q, want HELLO", got)
	}
	if got := p.Process(split, "hello", blockctx.CodeBlock); got != "hello" {
		t.Errorf("Process(CodeBlock) = %q, want hello", got)
	}
}

func TestProcess_SeesPrefixAndSuffix(t *testing.T) {
	p, err := LoadString("join", `
function process(prefix, suffix, completion, context)
  return prefix .. "|" .. completion .. "|" .. suffix
end
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	got := p.Process(document.New("P", "S"), "C", blockctx.Text)
	if got != "P|C|S" {
		t.Errorf("Process() = %q, want P|C|S", got)
	}
}

func TestProcess_NilKeepsCompletion(t *testing.T) {
	p, err := LoadString("nil", `function process() return nil end`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	if got := p.Process(document.Split{}, "keep", blockctx.Text); got != "keep" {
		t.Errorf("Process() = %q, want keep", got)
	}
}

func TestProcess_ErrorFallsBack(t *testing.T) {
	p, err := LoadString("boom", `function process() error("boom") end`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Run(document.Split{}, "x", blockctx.Text); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Run() error = %v, want boom", err)
	}
	if got := p.Process(document.Split{}, "x", blockctx.Text); got != "x" {
		t.Errorf("Process() = %q, want fallback x", got)
	}
}

func TestProcess_WrongReturnType(t *testing.T) {
	p, err := LoadString("num", `function process() return 42 end`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Run(document.Split{}, "x", blockctx.Text); err == nil {
		t.Error("Run() should fail on non-string return")
	}
}

func TestProcess_Timeout(t *testing.T) {
	p, err := LoadString("loop", `function process() while true do end end`, WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	defer p.Close()

	start := time.Now()
	if _, err := p.Run(document.Split{}, "x", blockctx.Text); err == nil {
		t.Error("Run() should fail on timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, want it interrupted", elapsed)
	}
}

func TestLoad_Sandbox(t *testing.T) {
	for _, src := range []string{
		`function process() return io.read() end`,
		`function process() return os.getenv("HOME") end`,
	} {
		p, err := LoadString("sandbox", src)
		if err != nil {
			t.Fatalf("LoadString() error = %v", err)
		}
		if _, err := p.Run(document.Split{}, "x", blockctx.Text); err == nil {
			t.Errorf("Run(%q) should fail without io/os", src)
		}
		p.Close()
	}

	if _, err := LoadString("dofile", `dofile("/etc/passwd")`); err == nil {
		t.Error("LoadString() should fail when calling dofile")
	}
}

func TestLoad_MissingHook(t *testing.T) {
	if _, err := LoadString("empty", `x = 1`); err == nil {
		t.Error("LoadString() should fail without a process function")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hook.lua")
	if err := os.WriteFile(path, []byte(`function process(p, s, c) return c .. "!" end`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer p.Close()

	if got := p.Process(document.Split{}, "hi", blockctx.Text); got != "hi!" {
		t.Errorf("Process() = %q, want hi!", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
