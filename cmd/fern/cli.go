package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/ops"
	"github.com/hpungsan/fern/internal/web"
)

// newCLIApp creates the CLI application with all commands. e is nil when
// only help or version output is needed.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "fern",
		Usage:   "Fill-in-the-middle completion for markdown notes",
		Version: Version,
		Commands: []*cli.Command{
			completeCmd(e),
			convertCmd(),
			classifyCmd(e),
			historyCmd(e),
			fetchCmd(e),
			deleteCmd(e),
			purgeCmd(e),
			exportCmd(e),
			importCmd(e),
			checkCmd(e),
			serveCmd(e),
			replCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// textFlags address the cursor the same way for every command that reads text.
func textFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Text before the cursor"},
		&cli.StringFlag{Name: "suffix", Aliases: []string{"s"}, Usage: "Text after the cursor"},
		&cli.StringFlag{Name: "marker", Value: "<|>", Usage: "Cursor marker in text read from stdin"},
	}
}

// textInput builds the cursor input from flags, or from stdin when neither
// --prefix nor --suffix is given.
func textInput(c *cli.Context) (ops.TextInput, error) {
	if c.IsSet("prefix") || c.IsSet("suffix") {
		return ops.TextInput{Prefix: c.String("prefix"), Suffix: c.String("suffix")}, nil
	}
	if !stdinHasData() {
		return ops.TextInput{}, errors.NewInvalidRequest("text must be piped via stdin or given with --prefix/--suffix")
	}
	text, err := readStdin(maxStdinBytes)
	if err != nil {
		return ops.TextInput{}, errors.NewInternal(err)
	}
	return ops.TextInput{Text: text, Marker: c.String("marker")}, nil
}

// completeCmd creates the complete command.
func completeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "complete",
		Usage: "Predict a completion at the cursor (reads marked text from stdin)",
		Flags: textFlags(),
		Action: func(c *cli.Context) error {
			input, err := textInput(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Complete(c.Context, e.machine, ops.CompleteInput{TextInput: input})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// convertCmd creates the convert command.
func convertCmd() *cli.Command {
	flags := append(textFlags(),
		&cli.BoolFlag{Name: "reverse", Aliases: []string{"r"}, Usage: "Map canonical delimiters in a completion (stdin) back to native"},
		&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "Block context for --reverse (default Text)"},
	)
	return &cli.Command{
		Name:  "convert",
		Usage: "Rewrite $ and $$ math delimiters around the cursor",
		Flags: flags,
		Action: func(c *cli.Context) error {
			if c.Bool("reverse") {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("completion must be piped via stdin"))
				}
				completion, err := readStdin(maxStdinBytes)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				output, err := ops.Revert(ops.RevertInput{
					Completion: completion,
					Prefix:     c.String("prefix"),
					Context:    c.String("context"),
				})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			input, err := textInput(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Convert(ops.ConvertInput{TextInput: input})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd(e *env) *cli.Command {
	flags := append(textFlags(),
		&cli.BoolFlag{Name: "prompt", Usage: "Include the system prompt sent for the context"},
	)
	return &cli.Command{
		Name:  "classify",
		Usage: "Report the markdown block context at the cursor",
		Flags: flags,
		Action: func(c *cli.Context) error {
			input, err := textInput(c)
			if err != nil {
				return outputError(err)
			}

			in := ops.ClassifyInput{TextInput: input}
			if c.Bool("prompt") {
				in.SystemMessage = e.cfg.SystemMessage
			}
			output, err := ops.Classify(in)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List stored suggestions, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "Filter by block context"},
			&cli.BoolFlag{Name: "accepted", Aliases: []string{"a"}, Usage: "Only accepted suggestions"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Max items"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(e.database, ops.HistoryInput{
				Context:      c.String("context"),
				AcceptedOnly: c.Bool("accepted"),
				Limit:        c.Int("limit"),
				Offset:       c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Show one stored suggestion with its prefix and suffix",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(e.database, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete one stored suggestion",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(e.database, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write stored suggestions to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "Output path (default ~/.fern/exports/<context>-<timestamp>.jsonl)"},
			&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "Filter by block context"},
			&cli.BoolFlag{Name: "accepted", Aliases: []string{"a"}, Usage: "Only accepted suggestions"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, e.database, e.cfg, ops.ExportInput{
				Path:         c.String("path"),
				Context:      c.String("context"),
				AcceptedOnly: c.Bool("accepted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Load suggestions from a JSONL export file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Required: true, Usage: "Input path"},
			&cli.StringFlag{Name: "mode", Value: string(ops.ImportModeError), Usage: "On ID collision: error, replace, or rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(e.database, e.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete stored suggestions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge suggestions created more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := ops.Purge(e.database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// checkCmd creates the check command.
func checkCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check that the backend is reachable and serves the configured model",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model to look for (default from config)"},
		},
		Action: func(c *cli.Context) error {
			model := e.cfg.Model
			if c.IsSet("model") {
				model = c.String("model")
			}

			output, err := ops.Check(c.Context, e.client, ops.CheckInput{Host: e.client.Host(), Model: model})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(output); err != nil {
				return err
			}
			if !output.Reachable || (model != "" && !output.ModelAvailable) {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			h := web.NewHandlers(e.database, e.cfg, e.machine, e.client)
			srv := web.NewServer(h, c.String("bind"), c.Int("port"))
			return web.Run(srv, e.logger)
		},
	}
}

// replCmd creates the repl command.
func replCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "repl",
		Usage: "Interactive completion playground",
		Action: func(c *cli.Context) error {
			return runREPL(c.Context, e, os.Stdout)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var fernErr *errors.FernError
	if stderrors.As(err, &fernErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", fernErr.Code, fernErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// maxStdinBytes bounds text read from stdin.
const maxStdinBytes = 4 << 20

// readStdin reads up to limit bytes from stdin. A single trailing newline is
// dropped; other whitespace is significant around the cursor.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
