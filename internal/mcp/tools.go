package mcp

import "github.com/mark3labs/mcp-go/mcp"

// textArgs are shared by every tool that addresses the text around the cursor.
func textArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("prefix", mcp.Description("Text before the cursor")),
		mcp.WithString("suffix", mcp.Description("Text after the cursor")),
		mcp.WithString("text", mcp.Description("Whole text with a cursor marker; exclusive with prefix/suffix")),
		mcp.WithString("marker", mcp.Description(`Cursor marker inside text (default "<|>")`)),
	}
}

var completeToolDef = mcp.NewTool("fern_complete",
	append([]mcp.ToolOption{
		mcp.WithDescription("Predict a completion at the cursor. Supersedes any prediction in flight and waits for the result."),
	}, textArgs()...)...,
)

var acceptToolDef = mcp.NewTool("fern_accept",
	mcp.WithDescription("Accept the current suggestion and record it in history."),
)

var cancelToolDef = mcp.NewTool("fern_cancel",
	mcp.WithDescription("Cancel the prediction in flight or dismiss the current suggestion."),
)

var statusToolDef = mcp.NewTool("fern_status",
	mcp.WithDescription("Report the session state (idle, predicting, suggesting)."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var convertToolDef = mcp.NewTool("fern_convert",
	append([]mcp.ToolOption{
		mcp.WithDescription(`Rewrite $ and $$ math delimiters around the cursor to \( \) and \[ \].`),
		mcp.WithReadOnlyHintAnnotation(true),
	}, textArgs()...)...,
)

var revertToolDef = mcp.NewTool("fern_revert",
	mcp.WithDescription(`Map \( \) and \[ \] in a completion back to $ and $$.`),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("completion", mcp.Required(), mcp.Description("Completion text")),
	mcp.WithString("prefix", mcp.Description("Converted prefix the completion was generated for")),
	mcp.WithString("context", mcp.Description("Block context name (default Text)")),
)

var classifyToolDef = mcp.NewTool("fern_classify",
	append([]mcp.ToolOption{
		mcp.WithDescription("Report the markdown block context at the cursor and the system prompt used for it."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, textArgs()...)...,
)

var historyToolDef = mcp.NewTool("fern_history",
	mcp.WithDescription("List stored suggestions, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("context", mcp.Description("Only suggestions made in this block context")),
	mcp.WithBoolean("accepted_only", mcp.Description("Only accepted suggestions")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var purgeToolDef = mcp.NewTool("fern_purge",
	mcp.WithDescription("Permanently delete stored suggestions."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("older_than_days", mcp.Description("Only suggestions created more than N days ago")),
)

var checkToolDef = mcp.NewTool("fern_check",
	mcp.WithDescription("Check that the backend is reachable and serves the configured model."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var fetchToolDef = mcp.NewTool("fern_fetch",
	mcp.WithDescription("Fetch one stored suggestion with the prefix and suffix it was predicted for."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Suggestion ID (ULID)")),
)

var deleteToolDef = mcp.NewTool("fern_delete",
	mcp.WithDescription("Permanently delete one stored suggestion."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Suggestion ID (ULID)")),
)

var exportToolDef = mcp.NewTool("fern_export",
	mcp.WithDescription("Write stored suggestions to a JSONL file, oldest first."),
	mcp.WithString("path", mcp.Description("Output .jsonl path (default ~/.fern/exports/<context>-<timestamp>.jsonl)")),
	mcp.WithString("context", mcp.Description("Only suggestions made in this block context")),
	mcp.WithBoolean("accepted_only", mcp.Description("Only accepted suggestions")),
)

var importToolDef = mcp.NewTool("fern_import",
	mcp.WithDescription("Load suggestions from a JSONL file written by fern_export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Input .jsonl path")),
	mcp.WithString("mode", mcp.Description("On ID collision: error (default, atomic), replace, or rename")),
)
