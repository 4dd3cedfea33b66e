package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/db"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/lifecycle"
	"github.com/hpungsan/fern/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	database *sql.DB
	cfg      *config.Config
	machine  *lifecycle.Machine
	models   ops.ModelLister
}

// NewHandlers creates a new Handlers instance. All tool calls share the one
// prediction session held by machine.
func NewHandlers(database *sql.DB, cfg *config.Config, machine *lifecycle.Machine, models ops.ModelLister) *Handlers {
	return &Handlers{database: database, cfg: cfg, machine: machine, models: models}
}

// Request types for each tool

// TextRequest represents the cursor arguments shared by several tools.
type TextRequest struct {
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Text   string `json:"text,omitempty"`
	Marker string `json:"marker,omitempty"`
}

func (r TextRequest) input() ops.TextInput {
	return ops.TextInput{Prefix: r.Prefix, Suffix: r.Suffix, Text: r.Text, Marker: r.Marker}
}

// RevertRequest represents the arguments for fern_revert.
type RevertRequest struct {
	Completion string `json:"completion"`
	Prefix     string `json:"prefix,omitempty"`
	Context    string `json:"context,omitempty"`
}

// HistoryRequest represents the arguments for fern_history.
type HistoryRequest struct {
	Context      string `json:"context,omitempty"`
	AcceptedOnly bool   `json:"accepted_only,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// PurgeRequest represents the arguments for fern_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// IDRequest represents the arguments for fern_fetch and fern_delete.
type IDRequest struct {
	ID string `json:"id"`
}

// ExportRequest represents the arguments for fern_export.
type ExportRequest struct {
	Path         string `json:"path,omitempty"`
	Context      string `json:"context,omitempty"`
	AcceptedOnly bool   `json:"accepted_only,omitempty"`
}

// ImportRequest represents the arguments for fern_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Handler implementations

// HandleComplete handles the fern_complete tool call.
func (h *Handlers) HandleComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Complete(ctx, h.machine, ops.CompleteInput{TextInput: input.input()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAccept handles the fern_accept tool call.
func (h *Handlers) HandleAccept(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var acc ops.Acceptor
	if h.database != nil {
		acc = db.NewStore(h.database)
	}

	result, err := ops.Accept(h.machine, acc)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCancel handles the fern_cancel tool call.
func (h *Handlers) HandleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.Cancel(h.machine))
}

// HandleStatus handles the fern_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(ops.Status(h.machine))
}

// HandleConvert handles the fern_convert tool call.
func (h *Handlers) HandleConvert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Convert(ops.ConvertInput{TextInput: input.input()})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRevert handles the fern_revert tool call.
func (h *Handlers) HandleRevert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RevertRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Revert(ops.RevertInput{
		Completion: input.Completion,
		Prefix:     input.Prefix,
		Context:    input.Context,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClassify handles the fern_classify tool call.
func (h *Handlers) HandleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Classify(ops.ClassifyInput{
		TextInput:     input.input(),
		SystemMessage: h.cfg.SystemMessage,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistory handles the fern_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(h.database, ops.HistoryInput{
		Context:      input.Context,
		AcceptedOnly: input.AcceptedOnly,
		Limit:        input.Limit,
		Offset:       input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the fern_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(h.database, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCheck handles the fern_check tool call.
func (h *Handlers) HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Check(ctx, h.models, ops.CheckInput{Host: h.cfg.Host, Model: h.cfg.Model})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the fern_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(h.database, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the fern_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(h.database, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the fern_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.database, h.cfg, ops.ExportInput{
		Path:         input.Path,
		Context:      input.Context,
		AcceptedOnly: input.AcceptedOnly,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the fern_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(h.database, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var fernErr *errors.FernError
	if stderrors.As(err, &fernErr) {
		errorObj := map[string]any{
			"code":    fernErr.Code,
			"message": fernErr.Message,
			"status":  fernErr.Status,
		}
		// Keep wrapper context such as "items[2]: ..." in the message.
		if err != error(fernErr) {
			errorObj["message"] = err.Error()
		}
		if fernErr.Code != errors.ErrInternal && fernErr.Details != nil {
			errorObj["details"] = fernErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
