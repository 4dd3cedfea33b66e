package mcp

import (
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/fern/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"fern_complete": {
		def:     completeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleComplete },
	},
	"fern_accept": {
		def:     acceptToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAccept },
	},
	"fern_cancel": {
		def:     cancelToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCancel },
	},
	"fern_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"fern_convert": {
		def:     convertToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConvert },
	},
	"fern_revert": {
		def:     revertToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRevert },
	},
	"fern_classify": {
		def:     classifyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClassify },
	},
	"fern_history": {
		def:     historyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"fern_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
	"fern_check": {
		def:     checkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCheck },
	},
	"fern_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"fern_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"fern_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"fern_import": {
		def:     importToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImport },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Fern tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(h *Handlers, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"fern",
		version,
		server.WithToolCapabilities(true),
	)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(h *Handlers, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(h, cfg, version))
}
