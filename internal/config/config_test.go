package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/reps"
)

const validYAML = `
server:
  host: "127.0.0.1"
  port: 9090
auth:
  api_key: "test-key-123"
session:
  exercise: "pushup"
feedback:
  enabled: true
  url: "http://127.0.0.1:8000/analyze_rep"
  timeout: 1500ms
  workers: 2
exercises:
  - name: step_up
    tracks: [left, right]
    angle_sources:
      left: left_knee
      right: right_knee
    flexed_threshold: 30
    extended_threshold: 10
    min_rep_duration: 250ms
    min_rest_time: 100ms
    limb_gating: true
    gating_delta: 12
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadValid verifies that a well-formed YAML config loads with all fields
// populated and defaults filled in for omitted ones.
func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.APIKey != "test-key-123" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "test-key-123")
	}
	if cfg.Session.Exercise != "pushup" {
		t.Errorf("session.exercise = %q, want %q", cfg.Session.Exercise, "pushup")
	}
	if cfg.Feedback.Timeout != 1500*time.Millisecond {
		t.Errorf("feedback.timeout = %v, want 1.5s", cfg.Feedback.Timeout)
	}
	if cfg.Feedback.Workers != 2 {
		t.Errorf("feedback.workers = %d, want 2", cfg.Feedback.Workers)
	}
	// Omitted values keep their defaults
	if cfg.Feedback.QueueSize != 32 {
		t.Errorf("feedback.queue_size = %d, want default 32", cfg.Feedback.QueueSize)
	}
	if cfg.Feedback.EveryNthRep != 2 {
		t.Errorf("feedback.every_nth_rep = %d, want default 2", cfg.Feedback.EveryNthRep)
	}
	if cfg.Feedback.DropPolicy != "drop_newest" {
		t.Errorf("feedback.drop_policy = %q, want drop_newest", cfg.Feedback.DropPolicy)
	}
}

// TestRegistryFromFile verifies that exercises declared in the file are added
// to the built-in table with their durations and gating parsed.
func TestRegistryFromFile(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if !reg.Known("step_up") {
		t.Fatal("step_up missing from registry")
	}
	if !reg.Known("squat") {
		t.Error("built-in squat missing from registry")
	}
	ex := reg.Lookup("step_up")
	if ex.MinRepDuration != 250*time.Millisecond {
		t.Errorf("min_rep_duration = %v, want 250ms", ex.MinRepDuration)
	}
	if !ex.LimbGating || ex.GatingDelta != 12 {
		t.Errorf("gating = %v/%v, want true/12", ex.LimbGating, ex.GatingDelta)
	}
	if got := ex.AngleSource(reps.TrackRight); got != reps.SourceRightKnee {
		t.Errorf("right angle source = %q, want %q", got, reps.SourceRightKnee)
	}
}

// TestEnvOverride verifies that REPCOACH_ env vars take precedence over YAML values.
func TestEnvOverride(t *testing.T) {
	t.Setenv("REPCOACH_SERVER_PORT", "9999")
	t.Setenv("REPCOACH_AUTH_API_KEY", "env-key")
	t.Setenv("REPCOACH_SESSION_EXERCISE", "lunge")
	t.Setenv("REPCOACH_FEEDBACK_URL", "https://coach.example.com/analyze_rep")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server.port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Auth.APIKey != "env-key" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "env-key")
	}
	if cfg.Session.Exercise != "lunge" {
		t.Errorf("session.exercise = %q, want %q", cfg.Session.Exercise, "lunge")
	}
	if cfg.Feedback.URL != "https://coach.example.com/analyze_rep" {
		t.Errorf("feedback.url = %q", cfg.Feedback.URL)
	}
	// Unchanged fields should keep YAML values
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
}

// TestValidationMissingAPIKey verifies that a missing API key is rejected.
// Without an API key, the frame ingest endpoint would be unprotected.
func TestValidationMissingAPIKey(t *testing.T) {
	yaml := `
server:
  port: 8080
auth: {}
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil {
		t.Fatal("expected validation error for missing api_key")
	}
}

// TestValidationReportsAllProblems verifies that every invalid field is
// reported in one error rather than only the first.
func TestValidationReportsAllProblems(t *testing.T) {
	yaml := `
server:
  port: 0
auth: {}
feedback:
  enabled: true
  url: "not a url"
  drop_policy: "block"
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "auth.api_key", "feedback.url", "feedback.drop_policy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// TestValidationBadExercise verifies that an exercise with inverted
// thresholds fails to load.
func TestValidationBadExercise(t *testing.T) {
	yaml := `
auth:
  api_key: "k"
exercises:
  - name: broken
    flexed_threshold: 10
    extended_threshold: 20
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q does not name the exercise", err)
	}
}

// TestFeedbackDisabledSkipsChecks verifies feedback settings are only
// validated when feedback is enabled.
func TestFeedbackDisabledSkipsChecks(t *testing.T) {
	yaml := `
auth:
  api_key: "k"
feedback:
  enabled: false
  url: ""
  workers: 0
`
	if _, err := Load(writeTemp(t, yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoadMissingFile verifies that a missing config file returns a clear error.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
