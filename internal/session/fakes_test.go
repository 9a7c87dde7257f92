package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/statestore"
)

// fakeClock is a controllable wall clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeAPI is an in-memory remote workout backend. It records delete calls
// so tests can assert that temp-ID entities never reach the wire.
type fakeAPI struct {
	mu               sync.Mutex
	workouts         map[string]models.WorkoutRef
	exercises        map[string][]models.Exercise
	nextID           int
	deletedExercises []string
	deletedSets      []string
	createErr        error
	deleteErr        error
	// onCreateExercise runs mid-call, outside the manager lock, letting
	// tests interleave concurrent edits with an in-flight remote call.
	onCreateExercise func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		workouts:  make(map[string]models.WorkoutRef),
		exercises: make(map[string][]models.Exercise),
	}
}

func (f *fakeAPI) addWorkout(id, name string, exercises ...models.Exercise) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workouts[id] = models.WorkoutRef{ID: id, Name: name}
	f.exercises[id] = exercises
}

func (f *fakeAPI) GetWorkout(_ context.Context, workoutID string) (*models.WorkoutRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workouts[workoutID]
	if !ok {
		return nil, fmt.Errorf("workout %s: %w", workoutID, errNotFoundForTest)
	}
	return &w, nil
}

func (f *fakeAPI) GetWorkoutExercises(_ context.Context, workoutID string) ([]models.Exercise, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workouts[workoutID]; !ok {
		return nil, fmt.Errorf("workout %s exercises: %w", workoutID, errNotFoundForTest)
	}
	return models.CloneExercises(f.exercises[workoutID]), nil
}

func (f *fakeAPI) CreateExercise(_ context.Context, workoutID string, ex models.Exercise) (*models.Exercise, error) {
	hook := f.takeHook()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	created := ex
	created.ID = fmt.Sprintf("ex-%d", f.nextID)
	created.Sets = append([]models.Set(nil), ex.Sets...)
	for i := range created.Sets {
		created.Sets[i].ID = fmt.Sprintf("set-%d-%d", f.nextID, i)
	}
	return &created, nil
}

func (f *fakeAPI) takeHook() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	hook := f.onCreateExercise
	f.onCreateExercise = nil
	return hook
}

func (f *fakeAPI) DeleteExercise(_ context.Context, exerciseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedExercises = append(f.deletedExercises, exerciseID)
	return nil
}

func (f *fakeAPI) DeleteSet(_ context.Context, setID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedSets = append(f.deletedSets, setID)
	return nil
}

var errNotFoundForTest = fmt.Errorf("not found")

// testLogger returns a slog.Logger that writes through t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

// newTestManager wires a manager to an in-memory store, a fake backend,
// and a fake clock. Background loops are not started; ticks and watch
// events are driven explicitly by the tests.
func newTestManager(t *testing.T) (*Manager, *fakeAPI, *statestore.Memory, *fakeClock) {
	t.Helper()
	store := statestore.NewMemory()
	backend := newFakeAPI()
	clk := newFakeClock()
	m := NewManager(store, backend, testLogger(t), WithClock(clk.Now))
	return m, backend, store, clk
}

// testWriter routes manager logs through t.Log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// benchPressWorkout builds a two-exercise remote workout used across tests.
func benchPressWorkout(backend *fakeAPI) models.WorkoutRef {
	backend.addWorkout("w1", "Push Day",
		models.Exercise{
			ID: "ex-bench", Name: "Bench Press", Position: 0,
			Sets: []models.Set{
				{ID: "set-b1", Position: 0, Type: models.SetTypeWarmup, Reps: 10, WeightKg: 40},
				{ID: "set-b2", Position: 1, Type: models.SetTypeNormal, Reps: 8, WeightKg: 70},
			},
		},
		models.Exercise{
			ID: "ex-ohp", Name: "Overhead Press", Position: 1,
			Sets: []models.Set{
				{ID: "set-o1", Position: 0, Type: models.SetTypeNormal, Reps: 8, WeightKg: 40},
			},
		},
	)
	return models.WorkoutRef{ID: "w1"}
}
