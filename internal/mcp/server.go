package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("repcoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("repcoach live workout server. Inspect the current session, recent repetitions and exercise thresholds, or switch the active exercise."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolGetRecentReps, Handler: h.getRecentReps},
		server.ServerTool{Tool: toolSetExercise, Handler: h.setExercise},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resSession, Handler: h.sessionResource},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resSession = mcp.NewResource(
	"repcoach://session",
	"Live Session",
	mcp.WithResourceDescription("Active exercise, per-track phase and rep counts, and the latest coaching message"),
	mcp.WithMIMEType("application/json"),
)
