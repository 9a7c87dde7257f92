package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/history"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
)

// SessionSource abstracts the running LiftLog daemon for MCP tools. The
// MCP binary runs as its own process (stdio transport), so the only
// implementation talks to the daemon's REST API.
type SessionSource interface {
	GetActiveSession(ctx context.Context) (*models.Session, error)
	StartWorkout(ctx context.Context, workoutID, name string) (*models.Session, error)
	PauseWorkout(ctx context.Context) (*models.Session, error)
	ResumeWorkout(ctx context.Context) (*models.Session, error)
	FinishWorkout(ctx context.Context) (*FinishResult, error)
	DiscardWorkout(ctx context.Context) error
	UpdateSet(ctx context.Context, setID string, upd session.SetUpdate) error
	ToggleSet(ctx context.Context, setID string) (bool, error)
	QueryHistory(ctx context.Context, start, end time.Time) ([]history.Record, error)
}

// FinishResult is the daemon's response to finishing a workout.
type FinishResult struct {
	RecordID string                  `json:"recordId"`
	Workout  *models.FinishedWorkout `json:"workout"`
}
