package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/repcoach/internal/reps"
)

func sampleSummary(id int) reps.Summary {
	return reps.Summary{
		RepID:              id,
		TrackID:            reps.TrackGlobal,
		DurationS:          1.2,
		HipVerticalRange:   0.18,
		MinKneeAngle:       95,
		MinElbowAngle:      180,
		MovementSmoothness: 0.8,
		AvgConfidence:      0.9,
		ExerciseID:         "squat",
	}
}

// TestClientAnalyze verifies the request headers, the coaching service's
// field names on the wire and the decoded response.
func TestClientAnalyze(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "coach-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"exercise":"squat","main_issue":"depth","severity":"medium","message":"Go a little deeper."}`))
	}))
	defer srv.Close()

	sum := sampleSummary(3)
	sum.MaxTorsoLeanDeg = 14
	c := NewClient(srv.URL, "coach-key", 2*time.Second)
	resp, err := c.Analyze(context.Background(), sum)
	require.NoError(t, err)

	want := map[string]any{
		"rep_id":               3.0,
		"limb_id":              "global",
		"duration_s":           1.2,
		"hip_vertical_range":   0.18,
		"knee_min_angle":       95.0,
		"elbow_min_angle":      180.0,
		"torso_max_lean_deg":   14.0,
		"left_right_asymmetry": 0.0,
		"movement_smoothness":  0.8,
		"avg_confidence":       0.9,
		"exercise_hint":        "squat",
	}
	assert.Equal(t, want, got)

	assert.Equal(t, "medium", resp.Severity)
	assert.Equal(t, "Go a little deeper.", resp.Message)
	require.NotNil(t, resp.MainIssue)
	assert.Equal(t, "depth", *resp.MainIssue)
}

// TestNewRequestOmitsEmptyHints verifies that an unnamed track and exercise
// are left out rather than sent as empty strings.
func TestNewRequestOmitsEmptyHints(t *testing.T) {
	data, err := json.Marshal(NewRequest(reps.Summary{RepID: 1}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.NotContains(t, got, "limb_id")
	assert.NotContains(t, got, "exercise_hint")
	for _, key := range []string{"knee_min_angle", "elbow_min_angle", "torso_max_lean_deg"} {
		assert.Contains(t, got, key)
	}
}

// TestClientNullMainIssue verifies that a null main_issue decodes as nil.
func TestClientNullMainIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exercise":"squat","main_issue":null,"severity":"none","message":"Nice rep."}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "", time.Second).Analyze(context.Background(), sampleSummary(1))
	require.NoError(t, err)
	assert.Nil(t, resp.MainIssue)
}

// TestClientErrors verifies that bad statuses and malformed replies are
// reported as errors.
func TestClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "boom", "status 500"},
		{"bad json", http.StatusOK, "{", "decoding"},
		{"empty message", http.StatusOK, `{"severity":"low","message":" "}`, "empty message"},
		{"unknown severity", http.StatusOK, `{"severity":"extreme","message":"x"}`, "unknown severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second).Analyze(context.Background(), sampleSummary(1))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestClientTimeout verifies that a slow coach is abandoned.
func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, "", 50*time.Millisecond).Analyze(context.Background(), sampleSummary(1))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func coachServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Response{Exercise: req.ExerciseHint, Severity: "low", Message: "Keep your chest up."})
	}))
}
