package session

import (
	"context"
	"errors"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/statestore"
)

// encodeLocked serializes the current session for storage. Returns "" when
// there is nothing to save, including a session with no workout identifier
// (guard against persisting a corrupt aggregate).
func (m *Manager) encodeLocked() string {
	if m.current == nil || m.current.Workout.ID == "" {
		return ""
	}
	payload, err := models.EncodePersistedSession(m.current.ToPersisted(m.now()))
	if err != nil {
		m.log.Error("encoding session failed", "error", err)
		return ""
	}
	return payload
}

// writePayload stores an encoded session under the well-known key. Write
// failures are logged and dropped; the next auto-save retries.
func (m *Manager) writePayload(ctx context.Context, payload string) {
	if payload == "" {
		return
	}
	if err := m.store.Set(ctx, SessionKey, payload); err != nil {
		m.log.Warn("saving session failed", "error", err)
	}
}

// save snapshots and persists the current session.
func (m *Manager) save(ctx context.Context) {
	m.mu.Lock()
	payload := m.encodeLocked()
	m.mu.Unlock()
	m.writePayload(ctx, payload)
}

// loadPersisted reads and decodes the stored session. Any storage or
// decode failure degrades to "no saved session".
func (m *Manager) loadPersisted(ctx context.Context) (*models.PersistedSession, error) {
	raw, err := m.store.Get(ctx, SessionKey)
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		m.log.Warn("reading saved session failed", "error", err)
		return nil, nil
	}
	persisted, err := models.DecodePersistedSession(raw)
	if err != nil {
		m.log.Warn("saved session unreadable, ignoring", "error", err)
		return nil, nil
	}
	return persisted, nil
}

// clearPersisted removes the stored session.
func (m *Manager) clearPersisted(ctx context.Context) {
	if err := m.store.Delete(ctx, SessionKey); err != nil {
		m.log.Warn("clearing saved session failed", "error", err)
	}
}

// Restore loads the persisted session at process start and adopts it as the
// live session. Returns false when no restorable session exists.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	persisted, err := m.loadPersisted(ctx)
	if err != nil || persisted == nil {
		return false, err
	}
	sess := m.adoptPersisted(ctx, persisted)
	m.log.Info("session restored",
		"workout_id", sess.Workout.ID,
		"elapsed_seconds", sess.ElapsedSeconds,
		"paused", sess.IsPaused,
	)
	return true, nil
}

// adoptPersisted installs a restored session as the live one, applying the
// restart accounting rules: time spent paused while the process was down is
// folded into the paused total, and a last-known "hidden" visibility forces
// the session into the paused state regardless of its serialized flag. The
// stopwatch starts only for an unpaused restore.
func (m *Manager) adoptPersisted(ctx context.Context, persisted *models.PersistedSession) *models.Session {
	sess := persisted.ToSession()
	now := m.now()

	if sess.IsPaused && !sess.LastPausedAt.IsZero() {
		gap := now.Sub(sess.LastPausedAt)
		if gap > 0 {
			sess.TotalPausedSeconds += int(gap.Seconds())
		}
		// Reset the mark so a later resume doesn't count the gap twice.
		sess.LastPausedAt = now
	}

	if visibility, err := m.store.Get(ctx, VisibilityKey); err == nil && visibility == VisibilityHidden {
		if !sess.IsPaused {
			sess.IsPaused = true
			sess.LastPausedAt = now
		}
	}

	m.mu.Lock()
	m.current = sess
	m.generation++
	if sess.IsPaused {
		m.stopTimerLocked()
	} else {
		m.startTimerLocked()
	}
	m.publishLocked()
	m.mu.Unlock()

	return sess
}

// autosaveLoop persists the session on a fixed interval as a safety net
// against missed explicit saves.
func (m *Manager) autosaveLoop(ctx context.Context) {
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.save(ctx)
		}
	}
}

// watchLoop adopts session writes made by other processes sharing the
// store, keeping attached clients consistent without server round-trips.
// The store already filters out this process's own writes.
func (m *Manager) watchLoop(ctx context.Context, events <-chan statestore.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Key != SessionKey {
				continue
			}
			m.applyForeign(ev)
		}
	}
}

// applyForeign installs a session state written by another process. The
// local stopwatch follows the foreign pause flag. Malformed payloads are
// logged and ignored; they must never stop the watcher.
func (m *Manager) applyForeign(ev statestore.Event) {
	if ev.Deleted {
		m.mu.Lock()
		m.current = nil
		m.generation++
		m.stopTimerLocked()
		m.publishLocked()
		m.mu.Unlock()
		return
	}

	persisted, err := models.DecodePersistedSession(ev.Value)
	if err != nil {
		m.log.Warn("ignoring malformed session from peer", "origin", ev.Origin, "error", err)
		return
	}
	sess := persisted.ToSession()

	m.mu.Lock()
	m.current = sess
	m.generation++
	if sess.IsPaused {
		m.stopTimerLocked()
	} else {
		m.startTimerLocked()
	}
	m.publishLocked()
	m.mu.Unlock()
}
