package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 30 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -30)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("Get the live workout session: workout identity, exercises with sets, elapsed seconds, and pause state. Returns null when no workout is active."),
)

var toolStartWorkout = mcp.NewTool("start_workout",
	mcp.WithDescription("Start a workout session for the given workout. If a session for the same workout survived a daemon restart it is resumed instead of restarted."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout identifier from the workout backend")),
	mcp.WithString("name", mcp.Description("Workout name; used as fallback when the backend has no record")),
)

var toolPauseWorkout = mcp.NewTool("pause_workout",
	mcp.WithDescription("Pause the live session's stopwatch. A no-op when already paused."),
)

var toolResumeWorkout = mcp.NewTool("resume_workout",
	mcp.WithDescription("Resume a paused session. The time spent paused is excluded from the workout's elapsed time."),
)

var toolLogSet = mcp.NewTool("log_set",
	mcp.WithDescription("Record the result of a set: update its reps and/or weight and mark it completed."),
	mcp.WithString("set_id", mcp.Required(), mcp.Description("Set identifier from the active session")),
	mcp.WithNumber("reps", mcp.Description("Repetitions performed")),
	mcp.WithNumber("weight_kg", mcp.Description("Weight used, in kilograms")),
)

var toolToggleSet = mcp.NewTool("toggle_set",
	mcp.WithDescription("Flip a set's completion state. Returns the new state."),
	mcp.WithString("set_id", mcp.Required(), mcp.Description("Set identifier from the active session")),
)

var toolFinishWorkout = mcp.NewTool("finish_workout",
	mcp.WithDescription("Finish the live session and archive it. Returns the archived record with its human-readable duration."),
)

var toolDiscardWorkout = mcp.NewTool("discard_workout",
	mcp.WithDescription("Abandon the live session without archiving anything."),
)

var toolGetWorkoutHistory = mcp.NewTool("get_workout_history",
	mcp.WithDescription("Query finished workouts in a time range. Returns summaries with durations and elapsed/paused seconds."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) getActiveSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.src.GetActiveSession(ctx)
	if err != nil {
		h.log.Error("mcp get_active_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{"session": sess})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) startWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workoutID, err := req.RequireString("workout_id")
	if err != nil {
		return mcp.NewToolResultError("workout_id parameter is required"), nil
	}
	name := req.GetString("name", "")

	sess, err := h.src.StartWorkout(ctx, workoutID, name)
	if err != nil {
		h.log.Error("mcp start_workout", "error", err)
		return mcp.NewToolResultError("start failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sess)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) pauseWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.src.PauseWorkout(ctx)
	if err != nil {
		h.log.Error("mcp pause_workout", "error", err)
		return mcp.NewToolResultError("pause failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sess)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) resumeWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.src.ResumeWorkout(ctx)
	if err != nil {
		h.log.Error("mcp resume_workout", "error", err)
		return mcp.NewToolResultError("resume failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sess)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) logSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	setID, err := req.RequireString("set_id")
	if err != nil {
		return mcp.NewToolResultError("set_id parameter is required"), nil
	}

	var upd session.SetUpdate
	if reps := req.GetInt("reps", -1); reps >= 0 {
		upd.Reps = &reps
	}
	if weight := req.GetFloat("weight_kg", -1); weight >= 0 {
		upd.WeightKg = &weight
	}
	if upd.Reps != nil || upd.WeightKg != nil {
		if err := h.src.UpdateSet(ctx, setID, upd); err != nil {
			h.log.Error("mcp log_set update", "error", err)
			return mcp.NewToolResultError("update failed: " + err.Error()), nil
		}
	}

	// Only toggle when the set is not already completed, so logging a set
	// twice cannot un-complete it.
	completed, toggled, err := h.ensureCompleted(ctx, setID)
	if err != nil {
		h.log.Error("mcp log_set complete", "error", err)
		return mcp.NewToolResultError("complete failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"setId":     setID,
		"completed": completed,
		"toggled":   toggled,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// ensureCompleted marks the set completed, toggling only when needed.
func (h *handlers) ensureCompleted(ctx context.Context, setID string) (completed, toggled bool, err error) {
	sess, err := h.src.GetActiveSession(ctx)
	if err != nil {
		return false, false, err
	}
	if sess != nil {
		if set, ok := findSet(sess, setID); ok && set.Completed {
			return true, false, nil
		}
	}
	completed, err = h.src.ToggleSet(ctx, setID)
	return completed, true, err
}

func findSet(sess *models.Session, setID string) (*models.Set, bool) {
	for i := range sess.Exercises {
		for j := range sess.Exercises[i].Sets {
			if sess.Exercises[i].Sets[j].ID == setID {
				return &sess.Exercises[i].Sets[j], true
			}
		}
	}
	return nil, false
}

func (h *handlers) toggleSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	setID, err := req.RequireString("set_id")
	if err != nil {
		return mcp.NewToolResultError("set_id parameter is required"), nil
	}

	completed, err := h.src.ToggleSet(ctx, setID)
	if err != nil {
		h.log.Error("mcp toggle_set", "error", err)
		return mcp.NewToolResultError("toggle failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{"setId": setID, "completed": completed})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) finishWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	finished, err := h.src.FinishWorkout(ctx)
	if err != nil {
		h.log.Error("mcp finish_workout", "error", err)
		return mcp.NewToolResultError("finish failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(finished)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) discardWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.src.DiscardWorkout(ctx); err != nil {
		h.log.Error("mcp discard_workout", "error", err)
		return mcp.NewToolResultError("discard failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText("workout discarded"), nil
}

func (h *handlers) getWorkoutHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	records, err := h.src.QueryHistory(ctx, start, end)
	if err != nil {
		h.log.Error("mcp get_workout_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(records)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
