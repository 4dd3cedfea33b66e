package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/ops"
)

const (
	replPrompt  = "fern> "
	historyFile = ".fern/repl_history"
)

const replHelp = `Type text with <|> at the cursor; \n inserts a newline.
  :accept          accept the current suggestion
  :cancel          cancel or dismiss
  :status          show the session state
  :context <text>  classify without predicting
  :convert <text>  show the converted prefix and suffix
  :quit            exit`

// replSession remembers the last request so an accepted suggestion can be
// shown in place.
type replSession struct {
	e    *env
	out  io.Writer
	last document.Split
}

func runREPL(ctx context.Context, e *env, out io.Writer) error {
	fmt.Fprintln(out, "fern repl. Type :help for commands.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	var histPath string
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	s := &replSession{e: e, out: out}
	for {
		line, err := ln.Prompt(replPrompt)
		if stderrors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if stderrors.Is(err, liner.ErrPromptAborted) {
			s.e.machine.CancelKey()
			continue
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		if s.handle(ctx, line) {
			return nil
		}
	}
}

// handle runs one REPL line and reports whether the session should end.
func (s *replSession) handle(ctx context.Context, line string) (quit bool) {
	if cmd, arg, ok := command(line); ok {
		switch cmd {
		case ":quit", ":q":
			return true
		case ":help":
			fmt.Fprintln(s.out, replHelp)
		case ":accept":
			s.accept()
		case ":cancel":
			out := ops.Cancel(s.e.machine)
			fmt.Fprintln(s.out, out.Status)
		case ":status":
			fmt.Fprintln(s.out, s.e.machine.StatusText())
		case ":context":
			out, err := ops.Classify(ops.ClassifyInput{TextInput: ops.TextInput{Text: unescape(arg)}})
			if err != nil {
				fmt.Fprintln(s.out, "error:", err)
				return false
			}
			fmt.Fprintln(s.out, out.Context)
		case ":convert":
			out, err := ops.Convert(ops.ConvertInput{TextInput: ops.TextInput{Text: unescape(arg)}})
			if err != nil {
				fmt.Fprintln(s.out, "error:", err)
				return false
			}
			fmt.Fprintf(s.out, "prefix: %q\nsuffix: %q\n", out.Prefix, out.Suffix)
		default:
			fmt.Fprintln(s.out, "unknown command. Type :help for commands.")
		}
		return false
	}

	s.complete(ctx, unescape(line))
	return false
}

func (s *replSession) complete(ctx context.Context, text string) {
	input := ops.TextInput{Text: text}
	split, err := input.Split()
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	s.last = split

	out, err := ops.Complete(ctx, s.e.machine, ops.CompleteInput{TextInput: input})
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	switch {
	case out.Notice != "":
		fmt.Fprintln(s.out, out.Notice)
	case out.Completion == "":
		fmt.Fprintf(s.out, "[%s] (no suggestion)\n", out.Context)
	default:
		fmt.Fprintf(s.out, "[%s] %s\n", out.Context, out.Completion)
	}
}

func (s *replSession) accept() {
	var acc ops.Acceptor
	if s.e.database != nil {
		acc = db.NewStore(s.e.database)
	}
	out, err := ops.Accept(s.e.machine, acc)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintln(s.out, s.last.Prefix+out.Completion+s.last.Suffix)
}

// command splits a ":cmd arg" line.
func command(line string) (cmd, arg string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ":") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(trimmed, " ")
	return strings.ToLower(cmd), arg, true
}

// unescape turns the two-character sequences \n and \t into their control
// characters and \\ into a backslash.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
			continue
		}
		i++
	}
	return b.String()
}
