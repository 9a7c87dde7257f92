package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/claude/liftlog/internal/api"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Current()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartWorkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkoutID string `json:"workoutId"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.WorkoutID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workoutId required"})
		return
	}

	if _, err := s.manager.StartWorkout(r.Context(), models.WorkoutRef{ID: req.WorkoutID, Name: req.Name}); err != nil {
		s.writeError(w, "start workout", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handlePauseWorkout(w http.ResponseWriter, r *http.Request) {
	s.manager.PauseWorkout(r.Context())
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleResumeWorkout(w http.ResponseWriter, r *http.Request) {
	s.manager.ResumeWorkout(r.Context())
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleFinishWorkout(w http.ResponseWriter, r *http.Request) {
	finished, err := s.manager.FinishWorkout(r.Context())
	if err != nil {
		s.writeError(w, "finish workout", err)
		return
	}

	recordID, err := s.archive.InsertFinishedWorkout(r.Context(), finished)
	if err != nil {
		// The session is already cleared, so the snapshot in this response
		// is the only remaining copy: return it so the caller can retry
		// archival instead of losing the workout.
		s.log.Error("archive finished workout", "error", err, "workout_id", finished.WorkoutID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"workout": finished,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recordId": recordID,
		"workout":  finished,
	})
}

func (s *Server) handleDiscardWorkout(w http.ResponseWriter, r *http.Request) {
	s.manager.DiscardWorkout(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.State != session.VisibilityVisible && req.State != session.VisibilityHidden {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "state must be visible or hidden"})
		return
	}

	s.manager.HandleVisibility(r.Context(), req.State)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"templateId"`
		Name       string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	exercise, err := s.manager.AddExercise(r.Context(), req.TemplateID, req.Name)
	if err != nil {
		s.writeError(w, "add exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, exercise)
}

func (s *Server) handleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RemoveExercise(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, "remove exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleMoveExercise(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := s.manager.MoveExercise(r.Context(), req.From, req.To); err != nil {
		s.writeError(w, "move exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	set, err := s.manager.AddSet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "add set", err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RemoveSet(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, "remove set", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	var update session.SetUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := s.manager.UpdateSet(r.Context(), chi.URLParam(r, "id"), update); err != nil {
		s.writeError(w, "update set", err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleToggleSet(w http.ResponseWriter, r *http.Request) {
	completed, err := s.manager.ToggleSetCompletion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "toggle set", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"completed": completed})
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	records, err := s.archive.QueryFinishedWorkouts(r.Context(), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record ID"})
		return
	}

	record, err := s.archive.GetFinishedWorkout(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, api.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 30 days
		end = time.Now()
		start = end.AddDate(0, 0, -30)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
