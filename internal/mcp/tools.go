package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 1000
)

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List every configured exercise with its tracks, angle sources, flex thresholds (degrees), minimum rep duration and rest time (seconds). The entry named 'default' applies to unknown exercises."),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get the live session: active exercise, whether it is a known exercise, frames processed, total reps, each track's phase (EXTENDED/FLEXED) and rep count, and the latest coaching message."),
)

var toolGetRecentReps = mcp.NewTool("get_recent_reps",
	mcp.WithDescription("Get the most recent completed repetitions, oldest first. Each rep has duration, hip vertical range, minimum knee and elbow angles, maximum torso lean and average tracking confidence."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of reps to return. Defaults to 20.")),
)

var toolSetExercise = mcp.NewTool("set_exercise",
	mcp.WithDescription("Switch the active exercise. Unknown names are accepted and use the default thresholds. Rep counts of other exercises are kept."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name (e.g. squat, pushup, bicep_curl, lunge, mountain_climber)")),
)

// --- Tool handlers ---

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := h.ds.Exercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(list)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := h.ds.Snapshot(ctx)
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(snap)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRecentReps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultRecentLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	limit = min(limit, maxRecentLimit)

	recent, err := h.ds.RecentReps(ctx, limit)
	if err != nil {
		h.log.Error("mcp get_recent_reps", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(recent)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) setExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil || strings.TrimSpace(exercise) == "" {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}

	sel, err := h.ds.SetExercise(ctx, strings.TrimSpace(exercise))
	if err != nil {
		h.log.Error("mcp set_exercise", "error", err)
		return mcp.NewToolResultError("update failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sel)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
