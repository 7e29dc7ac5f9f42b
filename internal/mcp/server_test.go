package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/reps"
	"github.com/claude/repcoach/internal/session"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	return session.New(reps.NewEngine(), session.Options{Exercise: "squat"}, discardLogger(), metrics.NewTestManager())
}

// squat feeds n squat cycles sampled at 10Hz.
func squat(s *session.Session, n int) {
	cycle := []float64{180, 170, 150, 130, 145, 170, 180, 180, 180}
	i := 0
	for range n {
		for _, a := range cycle {
			s.Ingest(reps.Frame{
				Time:         t0.Add(time.Duration(i) * 100 * time.Millisecond),
				KneeMinAngle: reps.Float(a),
				Confidence:   reps.Float(0.9),
			})
			i++
		}
	}
}

func newHandlers(t *testing.T, s *session.Session) *handlers {
	t.Helper()
	return &handlers{ds: NewLocal(s), log: discardLogger()}
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decodeResult unmarshals the JSON text content of a tool result.
func decodeResult(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error: %+v", res.Content)
	}
	if len(res.Content) == 0 {
		t.Fatal("tool returned no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
}

// TestNewRegistersTools verifies that the server can be constructed with all
// tools and resources.
func TestNewRegistersTools(t *testing.T) {
	if s := New(NewLocal(newTestSession(t)), "test", discardLogger()); s == nil {
		t.Fatal("New returned nil")
	}
}

// TestGetSessionTool verifies the get_session tool output.
func TestGetSessionTool(t *testing.T) {
	s := newTestSession(t)
	squat(s, 2)
	h := newHandlers(t, s)

	res, err := h.getSession(context.Background(), callTool(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var snap session.Snapshot
	decodeResult(t, res, &snap)
	if snap.Exercise != "squat" || snap.TotalReps != 2 {
		t.Errorf("snapshot = %+v, want squat with 2 reps", snap)
	}
}

// TestGetRecentRepsTool verifies the limit argument and its default.
func TestGetRecentRepsTool(t *testing.T) {
	s := newTestSession(t)
	squat(s, 3)
	h := newHandlers(t, s)

	res, _ := h.getRecentReps(context.Background(), callTool(map[string]any{"limit": float64(2)}))
	var got []reps.Summary
	decodeResult(t, res, &got)
	if len(got) != 2 || got[0].RepID != 2 || got[1].RepID != 3 {
		t.Errorf("recent = %+v, want reps 2 and 3", got)
	}

	res, _ = h.getRecentReps(context.Background(), callTool(nil))
	got = nil
	decodeResult(t, res, &got)
	if len(got) != 3 {
		t.Errorf("default limit returned %d reps, want 3", len(got))
	}

	res, _ = h.getRecentReps(context.Background(), callTool(map[string]any{"limit": float64(-1)}))
	if !res.IsError {
		t.Error("negative limit should be a tool error")
	}
}

// TestSetExerciseTool verifies that set_exercise changes the session and
// validates input.
func TestSetExerciseTool(t *testing.T) {
	s := newTestSession(t)
	h := newHandlers(t, s)

	res, _ := h.setExercise(context.Background(), callTool(map[string]any{"exercise": "pushup"}))
	var sel session.Selection
	decodeResult(t, res, &sel)
	if !sel.Known || sel.Config.Name != "pushup" {
		t.Errorf("selection = %+v, want known pushup", sel)
	}
	if got := s.Exercise(); got != "pushup" {
		t.Errorf("active exercise = %q, want pushup", got)
	}

	res, _ = h.setExercise(context.Background(), callTool(nil))
	if !res.IsError {
		t.Error("missing exercise should be a tool error")
	}
}

// TestListExercisesTool verifies the list_exercises tool output.
func TestListExercisesTool(t *testing.T) {
	h := newHandlers(t, newTestSession(t))

	res, _ := h.listExercises(context.Background(), callTool(nil))
	var list []session.ExerciseInfo
	decodeResult(t, res, &list)
	if len(list) != 6 {
		t.Errorf("got %d exercises, want 5 built-ins plus default", len(list))
	}
}

// TestSessionResource verifies the session resource contents.
func TestSessionResource(t *testing.T) {
	s := newTestSession(t)
	squat(s, 1)
	h := newHandlers(t, s)

	var req mcp.ReadResourceRequest
	req.Params.URI = "repcoach://session"
	contents, err := h.sessionResource(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T, want TextResourceContents", contents[0])
	}
	if text.URI != "repcoach://session" || text.MIMEType != "application/json" {
		t.Errorf("uri/mime = %q/%q", text.URI, text.MIMEType)
	}
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(text.Text), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalReps != 1 {
		t.Errorf("total reps = %d, want 1", snap.TotalReps)
	}
}
