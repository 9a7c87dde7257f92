package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/history"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
)

// HTTPClient implements SessionSource by calling the LiftLog REST API.
// The MCP binary runs locally (stdio) while the session lives in the
// daemon, possibly on another machine reached over Tailscale.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies SessionSource.
var _ SessionSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("httpclient: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("httpclient: read body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	status, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("httpclient: %s returned %d: %s", path, status, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("httpclient: decode %s: %w", path, err)
		}
	}
	return nil
}

func (c *HTTPClient) GetActiveSession(ctx context.Context) (*models.Session, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("httpclient: session returned %d: %s", status, body)
	}

	var sess models.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &sess, nil
}

func (c *HTTPClient) StartWorkout(ctx context.Context, workoutID, name string) (*models.Session, error) {
	var sess models.Session
	req := map[string]string{"workoutId": workoutID, "name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session/start", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) PauseWorkout(ctx context.Context) (*models.Session, error) {
	var sess models.Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session/pause", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) ResumeWorkout(ctx context.Context) (*models.Session, error) {
	var sess models.Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session/resume", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *HTTPClient) FinishWorkout(ctx context.Context) (*FinishResult, error) {
	var result FinishResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session/finish", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) DiscardWorkout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/session/discard", nil, nil)
}

func (c *HTTPClient) UpdateSet(ctx context.Context, setID string, upd session.SetUpdate) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/v1/session/sets/"+url.PathEscape(setID), upd, nil)
}

func (c *HTTPClient) ToggleSet(ctx context.Context, setID string) (bool, error) {
	var resp struct {
		Completed bool `json:"completed"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/session/sets/"+url.PathEscape(setID)+"/toggle", nil, &resp); err != nil {
		return false, err
	}
	return resp.Completed, nil
}

func (c *HTTPClient) QueryHistory(ctx context.Context, start, end time.Time) ([]history.Record, error) {
	params := url.Values{}
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))

	var records []history.Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/history?"+params.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}
