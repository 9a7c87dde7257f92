package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated identifiers for entities the remote
// API has not acknowledged yet. Such entities must never be the target of a
// remote update or delete.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh client-local identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id is a client-local identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// SetType classifies a set within an exercise.
type SetType string

const (
	SetTypeNormal  SetType = "normal"
	SetTypeWarmup  SetType = "warmup"
	SetTypeDropSet SetType = "dropset"
	SetTypeFailure SetType = "failure"
)

// Valid reports whether t is one of the known set classifications.
func (t SetType) Valid() bool {
	switch t {
	case SetTypeNormal, SetTypeWarmup, SetTypeDropSet, SetTypeFailure:
		return true
	}
	return false
}

// Set is one repetition block inside an exercise.
type Set struct {
	ID              string  `json:"id"`
	Position        int     `json:"position"`
	Type            SetType `json:"type"`
	Reps            int     `json:"reps"`
	WeightKg        float64 `json:"weight_kg"`
	RestTimeSeconds int     `json:"rest_time_seconds"`
	Completed       bool    `json:"completed"`
}

// Exercise is one movement inside a session, with its ordered sets.
type Exercise struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id,omitempty"`
	Name       string `json:"name"`
	Notes      string `json:"notes,omitempty"`
	Position   int    `json:"position"`
	Sets       []Set  `json:"sets"`
}

// WorkoutRef identifies the routine a session is performing.
type WorkoutRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
}

// Session is the single live in-progress workout aggregate. At most one
// exists per process; starting a new workout replaces it.
type Session struct {
	Workout            WorkoutRef      `json:"workout"`
	Exercises          []Exercise      `json:"exercises"`
	StartTime          time.Time       `json:"start_time"`
	ElapsedSeconds     int             `json:"elapsed_seconds"`
	IsPaused           bool            `json:"is_paused"`
	LastPausedAt       time.Time       `json:"last_paused_at,omitzero"`
	TotalPausedSeconds int             `json:"total_paused_seconds"`
	CompletedSets      map[string]bool `json:"-"`
}

// Clone returns a deep copy of the session so published snapshots never
// alias manager-internal state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Exercises = CloneExercises(s.Exercises)
	out.CompletedSets = make(map[string]bool, len(s.CompletedSets))
	for id, done := range s.CompletedSets {
		out.CompletedSets[id] = done
	}
	return &out
}

// CloneExercises deep-copies an exercise list including the nested sets.
func CloneExercises(exercises []Exercise) []Exercise {
	out := make([]Exercise, len(exercises))
	for i, ex := range exercises {
		out[i] = ex
		out[i].Sets = append([]Set(nil), ex.Sets...)
	}
	return out
}

// FindSet locates a set by identifier anywhere in the exercise tree.
// Lookup is by ID, not index, since positions change under reorders.
func (s *Session) FindSet(setID string) (*Set, bool) {
	for i := range s.Exercises {
		for j := range s.Exercises[i].Sets {
			if s.Exercises[i].Sets[j].ID == setID {
				return &s.Exercises[i].Sets[j], true
			}
		}
	}
	return nil, false
}

// FindExercise locates an exercise by identifier.
func (s *Session) FindExercise(exerciseID string) (*Exercise, bool) {
	for i := range s.Exercises {
		if s.Exercises[i].ID == exerciseID {
			return &s.Exercises[i], true
		}
	}
	return nil, false
}

// FinishedWorkout is the historical record produced when a session ends.
type FinishedWorkout struct {
	WorkoutID      string     `json:"workout_id"`
	Name           string     `json:"name"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Duration       string     `json:"duration"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	PausedSeconds  int        `json:"paused_seconds"`
	Exercises      []Exercise `json:"exercises"`
}
