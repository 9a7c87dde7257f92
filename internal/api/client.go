// Package api is the HTTP client for the remote workout backend. Only the
// narrow surface the session manager needs is implemented: workout and
// exercise reads, and exercise/set create/delete.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// ErrNotFound indicates the requested resource does not exist remotely.
var ErrNotFound = errors.New("api: not found")

// Client talks to the remote workout API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client targeting the given base URL. The API key is
// sent as X-API-Key on every request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetWorkout fetches a workout record by ID.
func (c *Client) GetWorkout(ctx context.Context, workoutID string) (*models.WorkoutRef, error) {
	var ref models.WorkoutRef
	if err := c.getJSON(ctx, "/api/v1/workouts/"+workoutID, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetWorkoutExercises fetches the ordered exercise snapshots (with nested
// sets) belonging to a workout.
func (c *Client) GetWorkoutExercises(ctx context.Context, workoutID string) ([]models.Exercise, error) {
	var exercises []models.Exercise
	if err := c.getJSON(ctx, "/api/v1/workouts/"+workoutID+"/exercises", &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

// CreateExercise adds an exercise to a workout and returns the created
// snapshot with server-assigned identifiers.
func (c *Client) CreateExercise(ctx context.Context, workoutID string, ex models.Exercise) (*models.Exercise, error) {
	var created models.Exercise
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/workouts/"+workoutID+"/exercises", ex, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateSet adds a set to an exercise and returns the created snapshot.
func (c *Client) CreateSet(ctx context.Context, exerciseID string, set models.Set) (*models.Set, error) {
	var created models.Set
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/exercises/"+exerciseID+"/sets", set, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteExercise removes an exercise from the remote workout.
func (c *Client) DeleteExercise(ctx context.Context, exerciseID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/exercises/"+exerciseID, nil, nil)
}

// DeleteSet removes a set from the remote exercise.
func (c *Client) DeleteSet(ctx context.Context, setID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/sets/"+setID, nil, nil)
}

// getJSON GETs a path and decodes the response. GETs are idempotent, so
// transient failures are retried up to 3 times with exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doJSON(ctx, http.MethodGet, path, nil, out)
		if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after 3 attempts: %w", lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
