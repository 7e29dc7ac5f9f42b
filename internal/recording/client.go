package recording

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

	"github.com/claude/repcoach/internal/reps"
)

const maxAttempts = 3

// Client streams recorded frames to a repcoach server.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	// backoff is the delay before the first retry; it doubles per attempt.
	backoff time.Duration
}

// NewClient creates a client for the server at serverURL.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

type framesResponse struct {
	Frames int            `json:"frames"`
	Reps   []reps.Summary `json:"reps"`
}

// errPermanent marks responses that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// SetExercise selects the exercise on the server.
func (c *Client) SetExercise(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]string{"exercise": id})
	if err != nil {
		return err
	}
	_, err = c.send(ctx, http.MethodPut, "/api/v1/session/exercise", body)
	return err
}

// SendFrames POSTs one batch and returns the repetitions it completed.
// Retries up to 3 times with exponential backoff on network and server
// errors.
func (c *Client) SendFrames(ctx context.Context, frames []reps.Frame) ([]reps.Summary, error) {
	data, err := json.Marshal(frames)
	if err != nil {
		return nil, fmt.Errorf("marshaling frames: %w", err)
	}
	body, err := c.send(ctx, http.MethodPost, "/api/v1/frames", data)
	if err != nil {
		return nil, err
	}
	var res framesResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding frames response: %w", err)
	}
	return res.Reps, nil
}

// Stream sends frames in batches of batchSize, calling onRep for every
// completed repetition reported by the server.
func (c *Client) Stream(ctx context.Context, frames []reps.Frame, batchSize int, onRep func(reps.Summary)) (Stats, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	var stats Stats
	for start := 0; start < len(frames); start += batchSize {
		end := min(start+batchSize, len(frames))
		done, err := c.SendFrames(ctx, frames[start:end])
		if err != nil {
			return stats, fmt.Errorf("batch at frame %d: %w", start, err)
		}
		stats.Batches++
		stats.Frames += end - start
		stats.add(done)
		if onRep != nil {
			for _, sum := range done {
				onRep(sum)
			}
		}
	}
	return stats, nil
}

func (c *Client) send(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.once(ctx, method, path, data)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, errPermanent) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s %s (status %d): %s", errPermanent, method, path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil, fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, bytes.TrimSpace(body))
}
