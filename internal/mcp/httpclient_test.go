package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/history"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
)

// newTestServer creates an httptest server that routes requests to handler
// functions keyed by path. Verifies the HTTP client sends correct paths,
// methods, and the API key header.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("X-API-Key = %q, want %q", got, "test-key")
		}
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestGetActiveSession verifies the client parses a session response and
// maps a 404 to a nil session rather than an error.
func TestGetActiveSession(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, models.Session{
				Workout:        models.WorkoutRef{ID: "w1", Name: "Push Day"},
				ElapsedSeconds: 125,
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "test-key")
	sess, err := client.GetActiveSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || sess.Workout.ID != "w1" || sess.ElapsedSeconds != 125 {
		t.Errorf("session = %+v, want workout w1 with 125s elapsed", sess)
	}

	empty := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"no active session"}`, http.StatusNotFound)
		},
	})
	defer empty.Close()

	sess, err = NewHTTPClient(empty.URL, "test-key").GetActiveSession(context.Background())
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if sess != nil {
		t.Errorf("session = %+v, want nil for 404", sess)
	}
}

// TestUpdateSetSendsPatch verifies the partial update goes out as a PATCH
// with only the provided fields.
func TestUpdateSetSendsPatch(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session/sets/s1": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch {
				t.Errorf("method = %s, want PATCH", r.Method)
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["reps"] != float64(10) {
				t.Errorf("reps = %v, want 10", body["reps"])
			}
			if _, ok := body["weight_kg"]; ok {
				t.Error("weight_kg sent despite being unset")
			}
			writeTestJSON(t, w, map[string]string{"status": "ok"})
		},
	})
	defer ts.Close()

	reps := 10
	client := NewHTTPClient(ts.URL, "test-key")
	if err := client.UpdateSet(context.Background(), "s1", session.SetUpdate{Reps: &reps}); err != nil {
		t.Fatal(err)
	}
}

// TestQueryHistory verifies the time range goes out as RFC 3339 query
// params and the record list is parsed.
func TestQueryHistory(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("start"); got != start.Format(time.RFC3339) {
				t.Errorf("start = %q, want %q", got, start.Format(time.RFC3339))
			}
			writeTestJSON(t, w, []history.Record{
				{FinishedWorkout: models.FinishedWorkout{WorkoutID: "w1", Duration: "PT45M10S"}},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "test-key")
	records, err := client.QueryHistory(context.Background(), start, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Duration != "PT45M10S" {
		t.Errorf("records = %+v, want one with duration PT45M10S", records)
	}
}

// TestErrorStatusSurfaced verifies non-200 responses become errors that
// include the status and body.
func TestErrorStatusSurfaced(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session/finish": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"no active workout"}`, http.StatusConflict)
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "test-key")
	if _, err := client.FinishWorkout(context.Background()); err == nil {
		t.Fatal("expected error for 409 response")
	}
}
