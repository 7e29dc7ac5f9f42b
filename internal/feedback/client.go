package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/reps"
)

// Response is the coaching service's reply for one repetition.
type Response struct {
	Exercise  string  `json:"exercise"`
	MainIssue *string `json:"main_issue"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
}

var severities = map[string]bool{"none": true, "low": true, "medium": true, "high": true}

func (r *Response) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("empty message")
	}
	if !severities[r.Severity] {
		return fmt.Errorf("unknown severity %q", r.Severity)
	}
	return nil
}

// Request is the coaching service's view of one repetition. Its field
// names differ from reps.Summary.
type Request struct {
	RepID              int     `json:"rep_id"`
	LimbID             string  `json:"limb_id,omitempty"`
	DurationS          float64 `json:"duration_s"`
	HipVerticalRange   float64 `json:"hip_vertical_range"`
	KneeMinAngle       float64 `json:"knee_min_angle"`
	ElbowMinAngle      float64 `json:"elbow_min_angle"`
	TorsoMaxLeanDeg    float64 `json:"torso_max_lean_deg"`
	LeftRightAsymmetry float64 `json:"left_right_asymmetry"`
	MovementSmoothness float64 `json:"movement_smoothness"`
	AvgConfidence      float64 `json:"avg_confidence"`
	ExerciseHint       string  `json:"exercise_hint,omitempty"`
}

// NewRequest maps s onto the coaching service's field names.
func NewRequest(s reps.Summary) Request {
	return Request{
		RepID:              s.RepID,
		LimbID:             string(s.TrackID),
		DurationS:          s.DurationS,
		HipVerticalRange:   s.HipVerticalRange,
		KneeMinAngle:       s.MinKneeAngle,
		ElbowMinAngle:      s.MinElbowAngle,
		TorsoMaxLeanDeg:    s.MaxTorsoLeanDeg,
		LeftRightAsymmetry: s.LeftRightAsymmetry,
		MovementSmoothness: s.MovementSmoothness,
		AvgConfidence:      s.AvgConfidence,
		ExerciseHint:       s.ExerciseID,
	}
}

// Analyzer turns a repetition summary into coaching feedback.
type Analyzer interface {
	Analyze(ctx context.Context, s reps.Summary) (*Response, error)
}

// Client posts repetition summaries to a coaching service over HTTP.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the coaching endpoint at url. Requests
// slower than timeout are abandoned.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze POSTs s as a Request and decodes the coaching response.
func (c *Client) Analyze(ctx context.Context, s reps.Summary) (*Response, error) {
	data, err := json.Marshal(NewRequest(s))
	if err != nil {
		return nil, fmt.Errorf("marshaling summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("coach request failed (status %d): %s", resp.StatusCode, body)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding coach response: %w", err)
	}
	if err := out.validate(); err != nil {
		return nil, fmt.Errorf("invalid coach response: %w", err)
	}
	return &out, nil
}
