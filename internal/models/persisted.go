package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CompletedSetPair is one completion-map entry in its serialized form.
// Maps do not round-trip reliably across storage boundaries, so the map is
// always flattened to an explicit pair list before writing.
type CompletedSetPair struct {
	SetID     string `json:"set_id"`
	Completed bool   `json:"completed"`
}

// PersistedSession is the wire form of a Session written under the
// well-known storage key.
type PersistedSession struct {
	Workout            WorkoutRef         `json:"workout"`
	WorkoutID          string             `json:"workoutId"`
	Exercises          []Exercise         `json:"exercises"`
	StartTime          time.Time          `json:"startTime"`
	ElapsedTimeSeconds int                `json:"elapsedTimeSeconds"`
	IsPaused           bool               `json:"isPaused"`
	CompletedSets      []CompletedSetPair `json:"completedSets"`
	LastPausedAt       int64              `json:"lastPausedAt,omitempty"` // epoch millis, only while paused
	TotalPausedSeconds int                `json:"totalPausedSeconds"`
	LastSaved          time.Time          `json:"lastSaved"`
}

// ToPersisted converts the session to its wire form, stamping now as the
// save time.
func (s *Session) ToPersisted(now time.Time) *PersistedSession {
	p := &PersistedSession{
		Workout:            s.Workout,
		WorkoutID:          s.Workout.ID,
		Exercises:          CloneExercises(s.Exercises),
		StartTime:          s.StartTime,
		ElapsedTimeSeconds: s.ElapsedSeconds,
		IsPaused:           s.IsPaused,
		TotalPausedSeconds: s.TotalPausedSeconds,
		LastSaved:          now,
	}
	if s.IsPaused && !s.LastPausedAt.IsZero() {
		p.LastPausedAt = s.LastPausedAt.UnixMilli()
	}
	p.CompletedSets = make([]CompletedSetPair, 0, len(s.CompletedSets))
	for id, done := range s.CompletedSets {
		p.CompletedSets = append(p.CompletedSets, CompletedSetPair{SetID: id, Completed: done})
	}
	return p
}

// ToSession reconstructs the in-memory session, rebuilding the completion
// map from its pair list.
func (p *PersistedSession) ToSession() *Session {
	s := &Session{
		Workout:            p.Workout,
		Exercises:          CloneExercises(p.Exercises),
		StartTime:          p.StartTime,
		ElapsedSeconds:     p.ElapsedTimeSeconds,
		IsPaused:           p.IsPaused,
		TotalPausedSeconds: p.TotalPausedSeconds,
		CompletedSets:      make(map[string]bool, len(p.CompletedSets)),
	}
	if s.Workout.ID == "" {
		s.Workout.ID = p.WorkoutID
	}
	if p.IsPaused && p.LastPausedAt > 0 {
		s.LastPausedAt = time.UnixMilli(p.LastPausedAt)
	}
	for _, pair := range p.CompletedSets {
		s.CompletedSets[pair.SetID] = pair.Completed
	}
	return s
}

// EncodePersistedSession serializes the wire form to the string stored
// under the well-known key.
func EncodePersistedSession(p *PersistedSession) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	return string(data), nil
}

// DecodePersistedSession parses a stored value. A payload without a workout
// identifier is rejected; callers treat any error as "no saved session".
func DecodePersistedSession(raw string) (*PersistedSession, error) {
	var p PersistedSession
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if p.WorkoutID == "" && p.Workout.ID == "" {
		return nil, fmt.Errorf("decoding session: missing workout id")
	}
	return &p, nil
}
