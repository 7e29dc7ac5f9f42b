package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/reps"
	"github.com/claude/repcoach/internal/session"
)

// HTTPClient implements DataSource by calling the repcoach REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the session lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. The API
// key is only needed to change the exercise.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, data)
	}

	return data, nil
}

func (c *HTTPClient) Snapshot(ctx context.Context) (*session.Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, nil)
	if err != nil {
		return nil, err
	}

	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("httpclient: decode session: %w", err)
	}
	return &snap, nil
}

func (c *HTTPClient) RecentReps(ctx context.Context, limit int) ([]reps.Summary, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/reps/recent", params, nil)
	if err != nil {
		return nil, err
	}

	var out []reps.Summary
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("httpclient: decode recent reps: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) Exercises(ctx context.Context) ([]session.ExerciseInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/exercises", nil, nil)
	if err != nil {
		return nil, err
	}

	var out []session.ExerciseInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("httpclient: decode exercises: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) SetExercise(ctx context.Context, id string) (*session.Selection, error) {
	body, err := c.do(ctx, http.MethodPut, "/api/v1/session/exercise", nil, map[string]string{"exercise": id})
	if err != nil {
		return nil, err
	}

	var sel session.Selection
	if err := json.Unmarshal(body, &sel); err != nil {
		return nil, fmt.Errorf("httpclient: decode selection: %w", err)
	}
	return &sel, nil
}
