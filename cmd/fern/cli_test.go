package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/fern/internal/backend"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/ops"
)

// setupTestEnv wires a temporary database and a fake backend that answers
// every completion request with completion.
func setupTestEnv(t *testing.T, completion string) *env {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			enc := json.NewEncoder(w)
			enc.Encode(backend.Chunk{Response: completion})
			enc.Encode(backend.Chunk{Done: true})
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"test-model:latest"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Host = srv.URL
	cfg.Model = "test-model"

	e, err := newEnv(database, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newEnv: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// captureStdout runs fn with stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w

	runErr := fn()

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout
	return buf.String(), runErr
}

// withStdin runs fn with content piped to stdin.
func withStdin(t *testing.T, content string, fn func()) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	go func() {
		_, _ = w.WriteString(content)
		w.Close()
	}()

	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()
	fn()
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "large number", input: "365d", expected: 365},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "wrong suffix", input: "7h", expectError: true},
		{name: "negative", input: "-1d", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

// TestCLIComplete tests the complete command with text from stdin.
func TestCLIComplete(t *testing.T) {
	e := setupTestEnv(t, `\(E = mc^2\) is famous`)
	app := newCLIApp(e)

	var out string
	var err error
	withStdin(t, "Einstein wrote <|>\n", func() {
		out, err = captureStdout(t, func() error {
			return app.Run([]string{"fern", "complete"})
		})
	})
	if err != nil {
		t.Fatalf("complete command failed: %v", err)
	}

	var output ops.CompleteOutput
	if err := json.Unmarshal([]byte(out), &output); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if output.Context != "Text" {
		t.Errorf("context = %q, want Text", output.Context)
	}
	if output.Completion != "$E = mc^2$ is famous" {
		t.Errorf("completion = %q, want %q", output.Completion, "$E = mc^2$ is famous")
	}
	if output.SuggestionID == "" {
		t.Error("expected suggestion to be recorded")
	}
}

// TestCLIConvert tests the convert command in both directions.
func TestCLIConvert(t *testing.T) {
	app := newCLIApp(nil)

	t.Run("forward with flags", func(t *testing.T) {
		out, err := captureStdout(t, func() error {
			return app.Run([]string{"fern", "convert", "--prefix", "a $x", "--suffix", "$ b"})
		})
		if err != nil {
			t.Fatalf("convert command failed: %v", err)
		}

		var output ops.ConvertOutput
		if err := json.Unmarshal([]byte(out), &output); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if output.Prefix != `a \(x` || output.Suffix != `\) b` {
			t.Errorf("convert = %+v", output)
		}
	})

	t.Run("reverse from stdin", func(t *testing.T) {
		var out string
		var err error
		withStdin(t, `\[E = mc^2\]`+"\n", func() {
			out, err = captureStdout(t, func() error {
				return app.Run([]string{"fern", "convert", "--reverse"})
			})
		})
		if err != nil {
			t.Fatalf("convert --reverse failed: %v", err)
		}

		var output ops.RevertOutput
		if err := json.Unmarshal([]byte(out), &output); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if output.Completion != "$$E = mc^2$$" {
			t.Errorf("completion = %q, want $$E = mc^2$$", output.Completion)
		}
	})
}

// TestCLIClassify tests the classify command.
func TestCLIClassify(t *testing.T) {
	e := setupTestEnv(t, "x")
	app := newCLIApp(e)

	out, err := captureStdout(t, func() error {
		return app.Run([]string{"fern", "classify", "--prompt", "--prefix", "### Notes on ", "--suffix", "\n\nbody"})
	})
	if err != nil {
		t.Fatalf("classify command failed: %v", err)
	}

	var output ops.ClassifyOutput
	if err := json.Unmarshal([]byte(out), &output); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if output.Context != "Heading" {
		t.Errorf("context = %q, want Heading", output.Context)
	}
	if !strings.HasPrefix(output.SystemMessage, e.cfg.SystemMessage) {
		t.Errorf("system_message = %q", output.SystemMessage)
	}
}

// TestCLIHistoryAndPurge tests history and purge after a completion.
func TestCLIHistoryAndPurge(t *testing.T) {
	e := setupTestEnv(t, "world")
	app := newCLIApp(e)

	if _, err := ops.Complete(context.Background(), e.machine, ops.CompleteInput{TextInput: ops.TextInput{Prefix: "Hello "}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	out, err := captureStdout(t, func() error {
		return app.Run([]string{"fern", "history"})
	})
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	var history ops.HistoryOutput
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].Completion != "world" {
		t.Errorf("history items = %+v", history.Items)
	}

	out, err = captureStdout(t, func() error {
		return app.Run([]string{"fern", "purge"})
	})
	if err != nil {
		t.Fatalf("purge command failed: %v", err)
	}
	var purged ops.PurgeOutput
	if err := json.Unmarshal([]byte(out), &purged); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if purged.Purged != 1 {
		t.Errorf("purged = %d, want 1", purged.Purged)
	}
}

// TestCLIExportImport tests export, import, fetch, and delete.
func TestCLIExportImport(t *testing.T) {
	e := setupTestEnv(t, "world")
	e.cfg.AllowUnsafePaths = true
	app := newCLIApp(e)

	completed, err := ops.Complete(context.Background(), e.machine, ops.CompleteInput{TextInput: ops.TextInput{Prefix: "Hello "}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	path := filepath.Join(t.TempDir(), "history.jsonl")
	out, err := captureStdout(t, func() error {
		return app.Run([]string{"fern", "export", "--path", path})
	})
	if err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	var exported ops.ExportOutput
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if exported.Count != 1 || exported.Path != path {
		t.Errorf("export = %+v", exported)
	}

	_, err = captureStdout(t, func() error {
		return app.Run([]string{"fern", "delete", completed.SuggestionID})
	})
	if err != nil {
		t.Fatalf("delete command failed: %v", err)
	}
	if _, err := captureStdout(t, func() error {
		return app.Run([]string{"fern", "fetch", completed.SuggestionID})
	}); err == nil {
		t.Error("fetch after delete: expected error, got nil")
	}

	out, err = captureStdout(t, func() error {
		return app.Run([]string{"fern", "import", "--path", path})
	})
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	var imported ops.ImportOutput
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if imported.Imported != 1 {
		t.Errorf("import = %+v, want 1 imported", imported)
	}

	out, err = captureStdout(t, func() error {
		return app.Run([]string{"fern", "fetch", completed.SuggestionID})
	})
	if err != nil {
		t.Fatalf("fetch command failed: %v", err)
	}
	var fetched ops.FetchOutput
	if err := json.Unmarshal([]byte(out), &fetched); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if fetched.Completion != "world" || fetched.Prefix != "Hello " {
		t.Errorf("fetch = %+v", fetched)
	}
}

// TestCLICheck tests the check command.
func TestCLICheck(t *testing.T) {
	e := setupTestEnv(t, "x")
	app := newCLIApp(e)

	out, err := captureStdout(t, func() error {
		return app.Run([]string{"fern", "check"})
	})
	if err != nil {
		t.Fatalf("check command failed: %v", err)
	}
	if !strings.Contains(out, `"model_available": true`) {
		t.Errorf("output = %s", out)
	}

	_, err = captureStdout(t, func() error {
		return app.Run([]string{"fern", "check", "--model", "absent"})
	})
	if err == nil {
		t.Error("expected error for a missing model, got nil")
	}
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	e := setupTestEnv(t, "x")
	app := newCLIApp(e)

	t.Run("unknown history context returns error", func(t *testing.T) {
		err := app.Run([]string{"fern", "history", "--context=Bogus"})
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("invalid duration format returns error", func(t *testing.T) {
		err := app.Run([]string{"fern", "purge", "--older-than=invalid"})
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("unknown reverse context returns error", func(t *testing.T) {
		var err error
		withStdin(t, "x", func() {
			err = app.Run([]string{"fern", "convert", "--reverse", "--context=Nope"})
		})
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"fern"}, expected: false},
		{name: "complete command", args: []string{"fern", "complete"}, expected: true},
		{name: "repl command", args: []string{"fern", "repl"}, expected: true},
		{name: "serve command", args: []string{"fern", "serve"}, expected: true},
		{name: "help flag", args: []string{"fern", "--help"}, expected: true},
		{name: "short version flag", args: []string{"fern", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"fern", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"fern"}, expected: false},
		{name: "help flag", args: []string{"fern", "--help"}, expected: true},
		{name: "short help flag", args: []string{"fern", "-h"}, expected: true},
		{name: "version flag", args: []string{"fern", "--version"}, expected: true},
		{name: "help subcommand", args: []string{"fern", "help"}, expected: true},
		{name: "complete command is not help", args: []string{"fern", "complete"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	t.Run("within limit keeps inner whitespace", func(t *testing.T) {
		var result string
		var err error
		withStdin(t, "  indented <|>\n", func() {
			result, err = readStdin(1000)
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "  indented <|>" {
			t.Errorf("expected %q, got %q", "  indented <|>", result)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		var err error
		withStdin(t, strings.Repeat("x", 100), func() {
			_, err = readStdin(50)
		})
		if err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})
}
