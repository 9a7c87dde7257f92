package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/liftlog/internal/history"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// HistoryStore is the slice of the archive the handlers need. *history.DB
// satisfies it; tests use an in-memory fake.
type HistoryStore interface {
	InsertFinishedWorkout(ctx context.Context, fw *models.FinishedWorkout) (uuid.UUID, error)
	QueryFinishedWorkouts(ctx context.Context, start, end time.Time) ([]history.Record, error)
	GetFinishedWorkout(ctx context.Context, id uuid.UUID) (*history.Record, error)
}

var _ HistoryStore = (*history.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	manager *session.Manager
	archive HistoryStore
	hub     *Hub
	log     *slog.Logger
	apiKey  string
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(manager *session.Manager, archive HistoryStore, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		manager: manager,
		archive: archive,
		hub:     NewHub(manager, log),
		log:     log,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the websocket broadcast loop; it stops when ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Live session reads (no auth — snapshots only)
	s.router.Get("/api/v1/session/ws", s.hub.HandleWebSocket)
	s.router.Get("/api/v1/session", s.handleGetSession)

	// Session operations (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/session/start", s.handleStartWorkout)
		r.Post("/api/v1/session/pause", s.handlePauseWorkout)
		r.Post("/api/v1/session/resume", s.handleResumeWorkout)
		r.Post("/api/v1/session/finish", s.handleFinishWorkout)
		r.Post("/api/v1/session/discard", s.handleDiscardWorkout)
		r.Post("/api/v1/session/visibility", s.handleVisibility)

		r.Post("/api/v1/session/exercises", s.handleAddExercise)
		r.Post("/api/v1/session/exercises/move", s.handleMoveExercise)
		r.Delete("/api/v1/session/exercises/{id}", s.handleRemoveExercise)
		r.Post("/api/v1/session/exercises/{id}/sets", s.handleAddSet)
		r.Delete("/api/v1/session/sets/{id}", s.handleRemoveSet)
		r.Patch("/api/v1/session/sets/{id}", s.handleUpdateSet)
		r.Post("/api/v1/session/sets/{id}/toggle", s.handleToggleSet)
	})

	// Archive
	s.router.Get("/api/v1/history", s.handleQueryHistory)
	s.router.Get("/api/v1/history/{id}", s.handleGetHistory)
}
