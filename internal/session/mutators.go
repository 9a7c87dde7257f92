package session

import (
	"context"
	"fmt"

	"github.com/claude/liftlog/internal/models"
)

// AddExercise appends a new exercise (with one default set) to the live
// session. For a server-known workout the exercise is created remotely
// first and the server-assigned identifiers are adopted; for a temporary
// workout everything stays client-local under temp IDs.
//
// The session is re-read under the lock after the remote round-trip, so a
// concurrent edit that landed while the call was in flight is never lost,
// and a session finished or replaced in the meantime is never resurrected.
func (m *Manager) AddExercise(ctx context.Context, templateID, name string) (*models.Exercise, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	workoutID := m.current.Workout.ID
	generation := m.generation
	m.mu.Unlock()

	ex := models.Exercise{
		ID:         models.NewTempID(),
		TemplateID: templateID,
		Name:       name,
		Sets: []models.Set{{
			ID:   models.NewTempID(),
			Type: models.SetTypeNormal,
		}},
	}

	if !models.IsTempID(workoutID) {
		created, err := m.api.CreateExercise(ctx, workoutID, ex)
		if err != nil {
			return nil, fmt.Errorf("adding exercise: %w", err)
		}
		ex = *created
	}

	m.mu.Lock()
	if m.current == nil || m.generation != generation {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	ex.Position = len(m.current.Exercises)
	for i := range ex.Sets {
		ex.Sets[i].Position = i
	}
	m.current.Exercises = append(m.current.Exercises, ex)
	result := ex
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	return &result, nil
}

// AddSet appends a set with the next order position to the given exercise.
// The set is client-local until the remote backend acknowledges it.
func (m *Manager) AddSet(ctx context.Context, exerciseID string) (*models.Set, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	ex, ok := m.current.FindExercise(exerciseID)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("adding set: exercise %s not in session", exerciseID)
	}
	set := models.Set{
		ID:       models.NewTempID(),
		Position: len(ex.Sets),
		Type:     models.SetTypeNormal,
	}
	ex.Sets = append(ex.Sets, set)
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	return &set, nil
}

// RemoveExercise deletes an exercise from the session and renumbers the
// remaining exercises. An exercise the remote API never acknowledged (temp
// ID) triggers no remote delete. A remote delete failure is reported but
// the local removal stands; callers may re-fetch if they need ground truth.
func (m *Manager) RemoveExercise(ctx context.Context, exerciseID string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	found := false
	exercises := m.current.Exercises[:0]
	for _, ex := range m.current.Exercises {
		if ex.ID == exerciseID {
			found = true
			continue
		}
		exercises = append(exercises, ex)
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("removing exercise: %s not in session", exerciseID)
	}
	for i := range exercises {
		exercises[i].Position = i
	}
	m.current.Exercises = exercises
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)

	if models.IsTempID(exerciseID) {
		return nil
	}
	if err := m.api.DeleteExercise(ctx, exerciseID); err != nil {
		return fmt.Errorf("removing exercise remotely: %w", err)
	}
	return nil
}

// RemoveSet deletes a set (located by ID anywhere in the exercise tree) and
// renumbers its siblings. Temp-ID sets trigger no remote delete.
func (m *Manager) RemoveSet(ctx context.Context, setID string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	found := false
	for i := range m.current.Exercises {
		ex := &m.current.Exercises[i]
		for j := range ex.Sets {
			if ex.Sets[j].ID == setID {
				ex.Sets = append(ex.Sets[:j], ex.Sets[j+1:]...)
				for k := range ex.Sets {
					ex.Sets[k].Position = k
				}
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return fmt.Errorf("removing set: %s not in session", setID)
	}
	delete(m.current.CompletedSets, setID)
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)

	if models.IsTempID(setID) {
		return nil
	}
	if err := m.api.DeleteSet(ctx, setID); err != nil {
		return fmt.Errorf("removing set remotely: %w", err)
	}
	return nil
}

// SetUpdate is a partial update of a set's editable fields. Nil fields are
// left unchanged.
type SetUpdate struct {
	Reps            *int            `json:"reps,omitempty"`
	WeightKg        *float64        `json:"weight_kg,omitempty"`
	Type            *models.SetType `json:"type,omitempty"`
	RestTimeSeconds *int            `json:"rest_time_seconds,omitempty"`
}

// UpdateSet applies a partial update to a set, matched by identifier (never
// by index, since positions change under reorders), and persists
// immediately.
func (m *Manager) UpdateSet(ctx context.Context, setID string, upd SetUpdate) error {
	if upd.Type != nil && !upd.Type.Valid() {
		return fmt.Errorf("updating set: invalid set type %q", *upd.Type)
	}

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	set, ok := m.current.FindSet(setID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("updating set: %s not in session", setID)
	}
	if upd.Reps != nil {
		set.Reps = *upd.Reps
	}
	if upd.WeightKg != nil {
		set.WeightKg = *upd.WeightKg
	}
	if upd.Type != nil {
		set.Type = *upd.Type
	}
	if upd.RestTimeSeconds != nil {
		set.RestTimeSeconds = *upd.RestTimeSeconds
	}
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	return nil
}

// ToggleSetCompletion flips a set's completion flag, keeping the embedded
// flag and the completion map consistent. The map is the authoritative
// source when overrides are re-applied to freshly fetched exercise data.
// Returns the new completion state.
func (m *Manager) ToggleSetCompletion(ctx context.Context, setID string) (bool, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return false, ErrNoActiveSession
	}
	set, ok := m.current.FindSet(setID)
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("toggling set: %s not in session", setID)
	}
	set.Completed = !set.Completed
	completed := set.Completed
	m.current.CompletedSets[setID] = completed
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	return completed, nil
}

// MoveExercise moves the exercise at index from to index to and rewrites
// every exercise's order position to its new array index. The reorder is
// atomic under the manager lock: no observer ever sees duplicate or missing
// positions.
func (m *Manager) MoveExercise(ctx context.Context, from, to int) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	n := len(m.current.Exercises)
	if from < 0 || from >= n || to < 0 || to >= n {
		m.mu.Unlock()
		return fmt.Errorf("moving exercise: index out of range (from=%d to=%d len=%d)", from, to, n)
	}
	exercises := m.current.Exercises
	moved := exercises[from]
	exercises = append(exercises[:from], exercises[from+1:]...)
	exercises = append(exercises[:to], append([]models.Exercise{moved}, exercises[to:]...)...)
	for i := range exercises {
		exercises[i].Position = i
	}
	m.current.Exercises = exercises
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	return nil
}
