package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/server"
)

const testAPIKey = "test-key"

// newRemote starts a real REST server around a fresh session and returns a
// client pointed at it.
func newRemote(t *testing.T) (*HTTPClient, func()) {
	t.Helper()
	sess := newTestSession(t)
	squat(sess, 2)
	srv := server.New(sess, testAPIKey, discardLogger(), metrics.NewTestManager())
	ts := httptest.NewServer(srv)
	return NewHTTPClient(ts.URL+"/", testAPIKey), ts.Close
}

// TestHTTPClientSnapshot verifies the client decodes the session endpoint.
func TestHTTPClientSnapshot(t *testing.T) {
	c, done := newRemote(t)
	defer done()

	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Exercise != "squat" || snap.TotalReps != 2 {
		t.Errorf("snapshot = %+v, want squat with 2 reps", snap)
	}
}

// TestHTTPClientRecentReps verifies the limit query parameter is forwarded.
func TestHTTPClientRecentReps(t *testing.T) {
	c, done := newRemote(t)
	defer done()

	got, err := c.RecentReps(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].RepID != 2 {
		t.Errorf("recent = %+v, want only rep 2", got)
	}
}

// TestHTTPClientExercises verifies the client decodes the exercise list.
func TestHTTPClientExercises(t *testing.T) {
	c, done := newRemote(t)
	defer done()

	list, err := c.Exercises(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) == 0 || list[len(list)-1].Name != "default" {
		t.Errorf("exercises = %+v, want default last", list)
	}
}

// TestHTTPClientSetExercise verifies the API key is sent on writes.
func TestHTTPClientSetExercise(t *testing.T) {
	c, done := newRemote(t)
	defer done()

	sel, err := c.SetExercise(context.Background(), "lunge")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sel.Known || sel.Exercise != "lunge" {
		t.Errorf("selection = %+v, want known lunge", sel)
	}

	c.apiKey = "wrong"
	if _, err := c.SetExercise(context.Background(), "squat"); err == nil {
		t.Error("expected error with wrong API key")
	}
}

// TestHTTPClientErrorStatus verifies non-200 responses become errors.
func TestHTTPClientErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	if _, err := NewHTTPClient(ts.URL, "").Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for 503")
	}
}
