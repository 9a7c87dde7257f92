package session

import (
	"context"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/statestore"
)

// TestPersistenceRoundTrip verifies save/load idempotence: loading a saved
// session and saving it again yields a logically equal session.
func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, backend, store, _ := newTestManager(t)
	if _, err := m.StartWorkout(ctx, benchPressWorkout(backend)); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	for range 120 {
		m.tick()
	}
	if _, err := m.ToggleSetCompletion(ctx, "set-b1"); err != nil {
		t.Fatalf("ToggleSetCompletion: %v", err)
	}
	first := m.Current()

	// First restart.
	m2 := NewManager(store, backend, testLogger(t), WithClock(newFakeClock().Now))
	if ok, err := m2.Restore(ctx); err != nil || !ok {
		t.Fatalf("Restore #1: ok=%v err=%v", ok, err)
	}
	m2.save(ctx)

	// Second restart over the re-saved state.
	m3 := NewManager(store, backend, testLogger(t), WithClock(newFakeClock().Now))
	if ok, err := m3.Restore(ctx); err != nil || !ok {
		t.Fatalf("Restore #2: ok=%v err=%v", ok, err)
	}
	second := m3.Current()

	if second.Workout.ID != first.Workout.ID {
		t.Errorf("workout id = %q, want %q", second.Workout.ID, first.Workout.ID)
	}
	if second.ElapsedSeconds != first.ElapsedSeconds {
		t.Errorf("elapsed = %d, want %d", second.ElapsedSeconds, first.ElapsedSeconds)
	}
	if second.IsPaused != first.IsPaused {
		t.Errorf("paused = %v, want %v", second.IsPaused, first.IsPaused)
	}
	if len(second.Exercises) != len(first.Exercises) {
		t.Fatalf("exercises = %d, want %d", len(second.Exercises), len(first.Exercises))
	}
	for i := range first.Exercises {
		if second.Exercises[i].ID != first.Exercises[i].ID {
			t.Errorf("exercise[%d].ID = %q, want %q", i, second.Exercises[i].ID, first.Exercises[i].ID)
		}
		if len(second.Exercises[i].Sets) != len(first.Exercises[i].Sets) {
			t.Errorf("exercise[%d] sets = %d, want %d", i, len(second.Exercises[i].Sets), len(first.Exercises[i].Sets))
		}
	}
	if !second.CompletedSets["set-b1"] {
		t.Error("completion map entry lost across restarts")
	}
}

// TestRestoreWhilePausedAccounting verifies that restoring a session that
// was paused before the process died adds the wall-clock gap to the paused
// total and leaves the timer stopped.
func TestRestoreWhilePausedAccounting(t *testing.T) {
	ctx := context.Background()
	m, backend, store, clk := newTestManager(t)
	if _, err := m.StartWorkout(ctx, benchPressWorkout(backend)); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	m.PauseWorkout(ctx)
	savedPaused := m.Current().TotalPausedSeconds

	// Restart 50 seconds later.
	clk.Advance(50 * time.Second)
	m2 := NewManager(store, backend, testLogger(t), WithClock(clk.Now))
	if ok, err := m2.Restore(ctx); err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}

	sess := m2.Current()
	if got := sess.TotalPausedSeconds - savedPaused; got != 50 {
		t.Errorf("paused gap = %d, want 50", got)
	}
	if !sess.IsPaused {
		t.Error("session should still be paused after restore")
	}
	if m2.TimerRunning() {
		t.Error("timer must not start for a paused restore")
	}

	// Resuming now must not count the restart gap a second time.
	m2.ResumeWorkout(ctx)
	if got := m2.Current().TotalPausedSeconds - savedPaused; got != 50 {
		t.Errorf("paused total after resume = %d, want 50 (no double count)", got)
	}
}

// TestRestoreHonorsHiddenVisibility verifies that a persisted "hidden"
// visibility token forces a restored session into the paused state even
// when its serialized pause flag said otherwise.
func TestRestoreHonorsHiddenVisibility(t *testing.T) {
	ctx := context.Background()
	m, backend, store, _ := newTestManager(t)
	if _, err := m.StartWorkout(ctx, benchPressWorkout(backend)); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	m.save(ctx)
	if err := store.Set(ctx, VisibilityKey, VisibilityHidden); err != nil {
		t.Fatalf("Set visibility: %v", err)
	}

	m2 := NewManager(store, backend, testLogger(t), WithClock(newFakeClock().Now))
	if ok, err := m2.Restore(ctx); err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
	if !m2.Current().IsPaused {
		t.Error("restore with hidden visibility should force a pause")
	}
	if m2.TimerRunning() {
		t.Error("timer must not run after a forced-pause restore")
	}
}

// TestRestoreMalformedPayload verifies garbage under the session key is
// treated as "no saved session" rather than crashing the manager.
func TestRestoreMalformedPayload(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := newTestManager(t)
	if err := store.Set(ctx, SessionKey, "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := m.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if ok {
		t.Error("malformed payload should restore nothing")
	}
	if m.Current() != nil {
		t.Error("no session should exist")
	}
}

// TestSessionWithoutWorkoutIDNotSaved verifies the guard against persisting
// a session that has no workout identifier.
func TestSessionWithoutWorkoutIDNotSaved(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	m.mu.Lock()
	m.current = &models.Session{CompletedSets: map[string]bool{}}
	payload := m.encodeLocked()
	m.mu.Unlock()
	if payload != "" {
		t.Errorf("session without workout id must not encode, got %q", payload)
	}
}

// TestCrossProcessPropagation verifies that a set completed in one process
// appears, via the store change notification alone, in a second process
// attached to the same store — with no remote API traffic from the second
// process.
func TestCrossProcessPropagation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := statestore.NewMemoryHub()
	storeA, storeB := hub.Open(), hub.Open()

	backendA := newFakeAPI()
	ref := benchPressWorkout(backendA)
	mA := NewManager(storeA, backendA, testLogger(t), WithClock(newFakeClock().Now))

	// Process B has an empty backend: any remote call would fail the test.
	mB := NewManager(storeB, newFakeAPI(), testLogger(t), WithClock(newFakeClock().Now))
	events, err := storeB.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	go mB.watchLoop(ctx, events)
	updates, cancelSub := mB.Subscribe()
	defer cancelSub()
	<-updates // initial nil

	if _, err := mA.StartWorkout(ctx, ref); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}
	if _, err := mA.ToggleSetCompletion(ctx, "set-b2"); err != nil {
		t.Fatalf("ToggleSetCompletion: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case sess := <-updates:
			if sess == nil {
				continue
			}
			set, ok := sess.FindSet("set-b2")
			if ok && set.Completed {
				if !sess.CompletedSets["set-b2"] {
					t.Error("completion map not propagated")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for foreign session state")
		}
	}
}

// TestForeignDeleteClearsSession verifies that a peer discarding the
// session clears it locally and stops the timer.
func TestForeignDeleteClearsSession(t *testing.T) {
	ctx := context.Background()
	m, backend, _, _ := newTestManager(t)
	if _, err := m.StartWorkout(ctx, benchPressWorkout(backend)); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}

	m.applyForeign(statestore.Event{Key: SessionKey, Origin: "peer", Deleted: true})

	if m.Current() != nil {
		t.Error("session should be cleared by a foreign delete")
	}
	if m.TimerRunning() {
		t.Error("timer should stop on a foreign delete")
	}
}

// TestForeignPausedStateStopsTimer verifies adopting a paused foreign
// session stops the local stopwatch.
func TestForeignPausedStateStopsTimer(t *testing.T) {
	ctx := context.Background()
	m, backend, _, clk := newTestManager(t)
	if _, err := m.StartWorkout(ctx, benchPressWorkout(backend)); err != nil {
		t.Fatalf("StartWorkout: %v", err)
	}

	paused := m.Current()
	paused.IsPaused = true
	paused.LastPausedAt = clk.Now()
	payload, err := models.EncodePersistedSession(paused.ToPersisted(clk.Now()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	m.applyForeign(statestore.Event{Key: SessionKey, Origin: "peer", Value: payload})

	if !m.Current().IsPaused {
		t.Error("foreign paused state not adopted")
	}
	if m.TimerRunning() {
		t.Error("timer should stop when adopting a paused state")
	}
}
