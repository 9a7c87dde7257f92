package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(src SessionSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("LiftLog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("LiftLog workout session server. Inspect and drive the live workout session: start, pause, resume, log sets, finish, and browse finished workout history."),
	)

	h := &handlers{src: src, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetActiveSession, Handler: h.getActiveSession},
		server.ServerTool{Tool: toolStartWorkout, Handler: h.startWorkout},
		server.ServerTool{Tool: toolPauseWorkout, Handler: h.pauseWorkout},
		server.ServerTool{Tool: toolResumeWorkout, Handler: h.resumeWorkout},
		server.ServerTool{Tool: toolLogSet, Handler: h.logSet},
		server.ServerTool{Tool: toolToggleSet, Handler: h.toggleSet},
		server.ServerTool{Tool: toolFinishWorkout, Handler: h.finishWorkout},
		server.ServerTool{Tool: toolDiscardWorkout, Handler: h.discardWorkout},
		server.ServerTool{Tool: toolGetWorkoutHistory, Handler: h.getWorkoutHistory},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resActiveSession, Handler: h.activeSession},
		server.ServerResource{Resource: resRecentHistory, Handler: h.recentHistory},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	src SessionSource
	log *slog.Logger
}

// --- Resource definitions ---

var resActiveSession = mcp.NewResource(
	"liftlog://active_session",
	"Active Session",
	mcp.WithResourceDescription("The live workout session: workout identity, exercises with sets, elapsed time, and pause state. Null when no workout is active."),
	mcp.WithMIMEType("application/json"),
)

var resRecentHistory = mcp.NewResource(
	"liftlog://recent_history",
	"Recent History",
	mcp.WithResourceDescription("Finished workouts from the last 30 days"),
	mcp.WithMIMEType("application/json"),
)

// --- Resource handlers ---

func (h *handlers) activeSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sess, err := h.src.GetActiveSession(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(map[string]any{"session": sess})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) recentHistory(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	records, err := h.src.QueryHistory(ctx, start, end)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
