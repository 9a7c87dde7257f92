// Package session owns the single live workout session: its lifecycle,
// the elapsed-time stopwatch, edits to the exercise/set tree, durable
// persistence, and consistency with other processes attached to the same
// state store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/statestore"
)

// Well-known storage keys. SessionKey holds the serialized live session,
// VisibilityKey the last reported client visibility token.
const (
	SessionKey    = "liftlog.active_session"
	VisibilityKey = "liftlog.visibility"
)

// Visibility tokens reported by the presentation layer.
const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

// ErrNoActiveSession is returned by operations that need a live session
// when none exists (or when it was replaced while the operation was in
// flight).
var ErrNoActiveSession = errors.New("session: no active workout")

// autosaveInterval is the safety-net save cadence; explicit saves already
// happen after every mutation.
const autosaveInterval = 30 * time.Second

// WorkoutAPI is the slice of the remote backend the manager consumes.
// *api.Client satisfies it. Sets are created client-side with temp IDs,
// so no remote set-create appears here.
type WorkoutAPI interface {
	GetWorkout(ctx context.Context, workoutID string) (*models.WorkoutRef, error)
	GetWorkoutExercises(ctx context.Context, workoutID string) ([]models.Exercise, error)
	CreateExercise(ctx context.Context, workoutID string, ex models.Exercise) (*models.Exercise, error)
	DeleteExercise(ctx context.Context, exerciseID string) error
	DeleteSet(ctx context.Context, setID string) error
}

// Manager is the active-session state machine. All state transitions run
// under one mutex; every published snapshot is a deep copy, so subscribers
// and late-arriving remote results can never alias live state.
type Manager struct {
	store statestore.Store
	api   WorkoutAPI
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	current *models.Session
	// generation increments whenever the session is replaced or cleared.
	// In-flight remote calls capture it before releasing the lock and
	// re-check it before applying their result.
	generation uint64
	timerOn    bool

	subscribers map[int]chan *models.Session
	nextSubID   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager bound to a state store and a remote API.
func NewManager(store statestore.Store, workoutAPI WorkoutAPI, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		api:         workoutAPI,
		log:         log,
		now:         time.Now,
		subscribers: make(map[int]chan *models.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the background loops: the 1 Hz stopwatch tick, the
// periodic auto-save, and the store watcher that adopts foreign writes.
// All three stop when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	events, err := m.store.Watch(ctx)
	if err != nil {
		return err
	}

	go m.tickLoop(ctx)
	go m.autosaveLoop(ctx)
	go m.watchLoop(ctx, events)
	return nil
}

// Shutdown performs a final save of the live session, if any.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	payload := m.encodeLocked()
	m.mu.Unlock()
	m.writePayload(ctx, payload)
}

// Current returns a deep copy of the live session, or nil when none exists.
func (m *Manager) Current() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// TimerRunning reports whether the stopwatch is accruing time.
func (m *Manager) TimerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerOn
}

// Subscribe registers a latest-value observer of the session stream. The
// channel carries deep-copied snapshots (nil means "no session"); a slow
// receiver coalesces intermediate values rather than blocking the manager.
// The returned func cancels the subscription.
func (m *Manager) Subscribe() (<-chan *models.Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan *models.Session, 1)
	m.subscribers[id] = ch
	// Prime with the current value so new observers need no separate read.
	ch <- m.current.Clone()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked fans the current snapshot to all subscribers, replacing any
// undelivered previous value (latest-value semantics).
func (m *Manager) publishLocked() {
	for _, ch := range m.subscribers {
		snap := m.current.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// --- stopwatch ---

func (m *Manager) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick advances the stopwatch by one second. It is a no-op unless the timer
// is on and an unpaused session exists.
func (m *Manager) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.timerOn || m.current == nil || m.current.IsPaused {
		return
	}
	m.current.ElapsedSeconds++
	m.publishLocked()
}

// startTimerLocked arms the stopwatch. The tick goroutine is shared, so
// arming an already armed timer cannot double the tick rate.
func (m *Manager) startTimerLocked() { m.timerOn = true }

// stopTimerLocked disarms the stopwatch. Safe to call when already stopped.
func (m *Manager) stopTimerLocked() { m.timerOn = false }

// --- lifecycle ---

// StartWorkout begins (or resumes after a restart) the session for the
// given workout. A persisted session for the same workout is reused
// verbatim with no remote calls; otherwise the workout and its exercises
// are fetched and a fresh session is published. Returns the resulting
// workout identity and start time.
func (m *Manager) StartWorkout(ctx context.Context, ref models.WorkoutRef) (*models.WorkoutRef, error) {
	if restored := m.restoreIfMatching(ctx, ref.ID); restored != nil {
		return restored, nil
	}

	workout := ref
	var exercises []models.Exercise
	if models.IsTempID(ref.ID) {
		// A not-yet-persisted workout has nothing to fetch; start empty.
		exercises = nil
	} else {
		fetched, err := m.api.GetWorkout(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		workout.Name = fetched.Name
		exercises, err = m.api.GetWorkoutExercises(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
	}

	start := ref.StartTime
	if start.IsZero() {
		start = m.now()
	}
	workout.StartTime = start

	sess := &models.Session{
		Workout:       workout,
		Exercises:     exercises,
		StartTime:     start,
		CompletedSets: make(map[string]bool),
	}

	m.mu.Lock()
	m.current = sess
	m.generation++
	m.startTimerLocked()
	m.publishLocked()
	payload := m.encodeLocked()
	result := sess.Workout
	m.mu.Unlock()

	m.writePayload(ctx, payload)
	m.log.Info("workout started", "workout_id", result.ID, "name", result.Name)
	return &result, nil
}

// restoreIfMatching loads the persisted session and adopts it when it
// belongs to the requested workout. Guards against duplicating a session
// that survived an app restart.
func (m *Manager) restoreIfMatching(ctx context.Context, workoutID string) *models.WorkoutRef {
	persisted, err := m.loadPersisted(ctx)
	if err != nil || persisted == nil {
		return nil
	}
	id := persisted.WorkoutID
	if id == "" {
		id = persisted.Workout.ID
	}
	if id != workoutID {
		return nil
	}
	sess := m.adoptPersisted(ctx, persisted)
	ref := sess.Workout
	return &ref
}

// FinishWorkout ends the session: completion overrides are folded into the
// exercise snapshots, the human-readable duration is computed, the session
// is cleared and its persisted state removed. The finished record is
// returned for archival.
func (m *Manager) FinishWorkout(ctx context.Context) (*models.FinishedWorkout, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveSession
	}

	sess := m.current
	exercises := models.CloneExercises(sess.Exercises)
	for i := range exercises {
		for j := range exercises[i].Sets {
			if done, ok := sess.CompletedSets[exercises[i].Sets[j].ID]; ok {
				exercises[i].Sets[j].Completed = done
			}
		}
	}

	finished := &models.FinishedWorkout{
		WorkoutID:      sess.Workout.ID,
		Name:           sess.Workout.Name,
		StartTime:      sess.StartTime,
		EndTime:        m.now(),
		Duration:       FormatDuration(sess.ElapsedSeconds),
		ElapsedSeconds: sess.ElapsedSeconds,
		PausedSeconds:  sess.TotalPausedSeconds,
		Exercises:      exercises,
	}

	m.current = nil
	m.generation++
	m.stopTimerLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.clearPersisted(ctx)
	m.log.Info("workout finished", "workout_id", finished.WorkoutID, "duration", finished.Duration)
	return finished, nil
}

// DiscardWorkout clears the session and its persisted state without
// producing a historical record. Discarding with no session is benign.
func (m *Manager) DiscardWorkout(ctx context.Context) {
	m.mu.Lock()
	hadSession := m.current != nil
	m.current = nil
	m.generation++
	m.stopTimerLocked()
	m.publishLocked()
	m.mu.Unlock()

	m.clearPersisted(ctx)
	if hadSession {
		m.log.Info("workout discarded")
	}
}

// PauseWorkout freezes the stopwatch and records the pause timestamp.
// A no-op when no session exists or it is already paused.
func (m *Manager) PauseWorkout(ctx context.Context) {
	m.mu.Lock()
	if m.current == nil || m.current.IsPaused {
		m.mu.Unlock()
		return
	}
	m.current.IsPaused = true
	m.current.LastPausedAt = m.now()
	m.stopTimerLocked()
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
}

// ResumeWorkout unfreezes the stopwatch. The paused interval is measured
// with the wall clock, not tick counts, so time spent suspended (process
// asleep, no ticks firing) is still accounted for.
func (m *Manager) ResumeWorkout(ctx context.Context) {
	m.mu.Lock()
	if m.current == nil || !m.current.IsPaused {
		m.mu.Unlock()
		return
	}
	if !m.current.LastPausedAt.IsZero() {
		pausedFor := m.now().Sub(m.current.LastPausedAt)
		if pausedFor > 0 {
			m.current.TotalPausedSeconds += int(pausedFor.Seconds())
		}
	}
	m.current.LastPausedAt = time.Time{}
	m.current.IsPaused = false
	m.startTimerLocked()
	m.publishLocked()
	payload := m.encodeLocked()
	m.mu.Unlock()

	m.writePayload(ctx, payload)
}

// HandleVisibility records the client visibility token and force-pauses an
// active session when the client goes hidden. Becoming visible again never
// auto-resumes; that is the user's call.
func (m *Manager) HandleVisibility(ctx context.Context, state string) {
	if state != VisibilityVisible && state != VisibilityHidden {
		return
	}
	if err := m.store.Set(ctx, VisibilityKey, state); err != nil {
		m.log.Warn("saving visibility state failed", "error", err)
	}
	if state == VisibilityHidden {
		m.PauseWorkout(ctx)
	}
}
