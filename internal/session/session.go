// Package session holds the live workout: the repetition engine, the rolling
// history of completed reps and the latest coaching message.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repcoach/internal/feedback"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/reps"
)

// Sink receives completed repetitions. Submit must not block.
type Sink interface {
	Submit(reps.Summary) bool
}

// Coaching is the most recent message returned by the coaching service.
type Coaching struct {
	RepID      int          `json:"rep_id"`
	TrackID    reps.TrackID `json:"track_id"`
	Exercise   string       `json:"exercise"`
	MainIssue  *string      `json:"main_issue"`
	Severity   string       `json:"severity"`
	Message    string       `json:"message"`
	ReceivedAt time.Time    `json:"received_at"`
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	ID           string             `json:"id"`
	StartedAt    time.Time          `json:"started_at"`
	Exercise     string             `json:"exercise"`
	Config       string             `json:"config"`
	Known        bool               `json:"known"`
	Frames       int64              `json:"frames"`
	TotalReps    int                `json:"total_reps"`
	Tracks       []reps.TrackStatus `json:"tracks"`
	LastCoaching *Coaching          `json:"last_coaching,omitempty"`
}

// Options configures a Session.
type Options struct {
	Exercise    string
	RecentLimit int
	Sink        Sink
}

// Session serializes access to a single Engine. All methods are safe for
// concurrent use.
type Session struct {
	id        string
	startedAt time.Time
	log       *slog.Logger
	metrics   *metrics.Manager
	sink      Sink
	limit     int

	mu     sync.Mutex
	engine *reps.Engine
	recent []reps.Summary
	frames int64
	last   *Coaching
}

// New creates a session around engine.
func New(engine *reps.Engine, opts Options, log *slog.Logger, m *metrics.Manager) *Session {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 100
	}
	if opts.Exercise != "" {
		engine.SetActiveExercise(opts.Exercise)
	}
	s := &Session{
		id:        uuid.NewString(),
		startedAt: time.Now().UTC(),
		log:       log,
		metrics:   m,
		sink:      opts.Sink,
		limit:     opts.RecentLimit,
		engine:    engine,
	}
	log.Info("session started", "id", s.id, "exercise", engine.ActiveExercise())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Ingest runs frames through the engine in order and returns the reps they
// completed. Each rep is recorded and handed to the sink.
func (s *Session) Ingest(frames ...reps.Frame) []reps.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []reps.Summary
	for _, f := range frames {
		done := s.engine.Process(f)
		s.frames++
		for _, sum := range done {
			s.record(sum)
		}
		out = append(out, done...)
	}
	s.metrics.CounterFrames.Add(float64(len(frames)))
	return out
}

func (s *Session) record(sum reps.Summary) {
	s.recent = append(s.recent, sum)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}
	s.metrics.CounterReps.WithLabelValues(sum.ExerciseID, string(sum.TrackID)).Inc()
	s.log.Info("rep completed",
		"exercise", sum.ExerciseID,
		"track", sum.TrackID,
		"rep_id", sum.RepID,
		"duration_s", sum.DurationS,
	)
	if s.sink != nil {
		s.sink.Submit(sum)
	}
}

// SetExercise switches the active exercise. It returns the configuration
// that will be used and whether id named a registered exercise; unknown ids
// fall back to the default thresholds.
func (s *Session) SetExercise(id string) (reps.ExerciseConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := s.engine.Registry()
	s.engine.SetActiveExercise(id)
	known := reg.Known(id)
	if !known {
		s.log.Warn("unknown exercise, using default thresholds", "exercise", id)
	} else {
		s.log.Info("exercise changed", "exercise", id)
	}
	return reg.Lookup(id), known
}

// Selection reports the outcome of choosing an exercise.
type Selection struct {
	Exercise string       `json:"exercise"`
	Known    bool         `json:"known"`
	Config   ExerciseInfo `json:"config"`
}

// Select is SetExercise in its external form.
func (s *Session) Select(id string) Selection {
	cfg, known := s.SetExercise(id)
	return Selection{Exercise: id, Known: known, Config: Describe(cfg)}
}

// Exercise returns the active exercise identifier.
func (s *Session) Exercise() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ActiveExercise()
}

// ExerciseInfo is the external description of an exercise configuration.
type ExerciseInfo struct {
	Name              string                            `json:"name"`
	Tracks            []reps.TrackID                    `json:"tracks"`
	AngleSources      map[reps.TrackID]reps.AngleSource `json:"angle_sources"`
	FlexedThreshold   float64                           `json:"flexed_threshold"`
	ExtendedThreshold float64                           `json:"extended_threshold"`
	MinRepDurationS   float64                           `json:"min_rep_duration_s"`
	MinRestTimeS      float64                           `json:"min_rest_time_s"`
	LimbGating        bool                              `json:"limb_gating"`
	GatingDelta       float64                           `json:"gating_delta,omitempty"`
}

// Describe converts cfg to its external form.
func Describe(cfg reps.ExerciseConfig) ExerciseInfo {
	info := ExerciseInfo{
		Name:              cfg.Name,
		Tracks:            cfg.Tracks,
		AngleSources:      make(map[reps.TrackID]reps.AngleSource, len(cfg.Tracks)),
		FlexedThreshold:   cfg.FlexedThreshold,
		ExtendedThreshold: cfg.ExtendedThreshold,
		MinRepDurationS:   cfg.MinRepDuration.Seconds(),
		MinRestTimeS:      cfg.MinRestTime.Seconds(),
		LimbGating:        cfg.LimbGating,
	}
	for _, t := range cfg.Tracks {
		info.AngleSources[t] = cfg.AngleSource(t)
	}
	if cfg.LimbGating {
		info.GatingDelta = cfg.GatingDelta
	}
	return info
}

// Exercises describes every registered exercise sorted by name, followed by
// the fallback used for unknown identifiers.
func (s *Session) Exercises() []ExerciseInfo {
	reg := s.engine.Registry()
	names := reg.Names()
	out := make([]ExerciseInfo, 0, len(names)+1)
	for _, n := range names {
		out = append(out, Describe(reg.Lookup(n)))
	}
	return append(out, Describe(reg.Default()))
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.engine.ActiveExercise()
	reg := s.engine.Registry()
	snap := Snapshot{
		ID:        s.id,
		StartedAt: s.startedAt,
		Exercise:  active,
		Config:    reg.Lookup(active).Name,
		Known:     reg.Known(active),
		Frames:    s.frames,
		TotalReps: s.engine.Total(active),
		Tracks:    s.engine.Tracks(active),
	}
	if s.last != nil {
		c := *s.last
		snap.LastCoaching = &c
	}
	return snap
}

// Recent returns up to limit of the latest reps, oldest first. A limit of
// zero or less returns everything retained.
func (s *Session) Recent(limit int) []reps.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.recent
	if limit > 0 && limit < len(src) {
		src = src[len(src)-limit:]
	}
	out := make([]reps.Summary, len(src))
	copy(out, src)
	return out
}

// RecordCoaching stores r as the latest coaching message for rep sum. It is
// registered as the feedback dispatcher's message callback.
func (s *Session) RecordCoaching(sum reps.Summary, r *feedback.Response) {
	if r == nil {
		return
	}
	c := &Coaching{
		RepID:      sum.RepID,
		TrackID:    sum.TrackID,
		Exercise:   r.Exercise,
		MainIssue:  r.MainIssue,
		Severity:   r.Severity,
		Message:    r.Message,
		ReceivedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.last = c
	s.mu.Unlock()
}
