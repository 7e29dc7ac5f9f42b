// Package reps turns a stream of per-frame pose features into counted
// repetitions.
//
// An Engine owns one LimbTrack per (exercise, track) pair. Each track cycles
// EXTENDED → FLEXED → EXTENDED; a cycle that lasts at least the exercise's
// minimum duration is counted and summarised. Tracks cool down after every
// cycle, and paired left/right tracks can be gated so that only the clearly
// more bent limb may start a rep.
//
// The Engine performs no I/O and takes no locks. Callers that share an
// Engine between goroutines must serialise access themselves.
package reps

import (
	"time"
)

// Clock supplies the time for frames that carry no timestamp.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

type trackKey struct {
	exercise string
	track    TrackID
}

// TrackStatus is a read-only view of one limb track.
type TrackStatus struct {
	Exercise  string    `json:"exercise"`
	Track     TrackID   `json:"track"`
	Phase     Phase     `json:"phase"`
	Completed int       `json:"completed"`
	LastEnded time.Time `json:"last_ended,omitzero"`
}

// Engine routes frames to limb tracks according to the exercise registry.
type Engine struct {
	registry *Registry
	clock    Clock
	active   string
	tracks   map[trackKey]*LimbTrack
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the built-in exercise table.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithClock sets the clock used for frames without a timestamp.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine creates an engine using the built-in registry and wall clock
// unless overridden by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry: DefaultRegistry(),
		clock:    systemClock{},
		active:   DefaultExercise,
		tracks:   make(map[trackKey]*LimbTrack),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the exercise table used by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SetActiveExercise selects the configuration used by Process. Existing
// track counters are kept.
func (e *Engine) SetActiveExercise(id string) {
	e.active = id
}

// ActiveExercise returns the identifier last passed to SetActiveExercise.
func (e *Engine) ActiveExercise() string {
	return e.active
}

// Process runs f against the active exercise using the frame's own
// confidence value.
func (e *Engine) Process(f Frame) []Summary {
	return e.ProcessFrame(f, f.TrackingConfidence(), e.active)
}

// ProcessFrame advances every track configured for exerciseID by one frame.
// It returns the repetitions completed by this frame in the configuration's
// track order, at most one per track. Unknown exercises use the fallback
// configuration; missing features use safe defaults.
func (e *Engine) ProcessFrame(f Frame, confidence float64, exerciseID string) []Summary {
	cfg := e.registry.Lookup(exerciseID)
	now := f.Time
	if now.IsZero() {
		now = e.clock.Now()
	}
	confidence = clampConfidence(confidence)

	var out []Summary
	for _, id := range cfg.Tracks {
		track := e.track(cfg.Name, id)
		source := cfg.AngleSource(id)
		s := sample{
			at:         now,
			angle:      f.Angle(source),
			flex:       f.Flex(source),
			hip:        f.Hip(),
			torso:      f.Torso(),
			confidence: confidence,
		}
		if sib, ok := id.Sibling(); ok && cfg.HasTrack(sib) {
			s.siblingFlex = f.Flex(cfg.AngleSource(sib))
			s.hasSibling = true
		}
		if sum, ok := track.step(cfg, exerciseID, s); ok {
			out = append(out, sum)
		}
	}
	return out
}

func (e *Engine) track(exercise string, id TrackID) *LimbTrack {
	key := trackKey{exercise: exercise, track: id}
	t, ok := e.tracks[key]
	if !ok {
		t = newLimbTrack(id)
		e.tracks[key] = t
	}
	return t
}

// Tracks returns the status of every configured track for exerciseID, in
// configuration order. Tracks that have not seen a frame yet are reported
// as EXTENDED with zero reps.
func (e *Engine) Tracks(exerciseID string) []TrackStatus {
	cfg := e.registry.Lookup(exerciseID)
	out := make([]TrackStatus, 0, len(cfg.Tracks))
	for _, id := range cfg.Tracks {
		st := TrackStatus{Exercise: cfg.Name, Track: id, Phase: PhaseExtended}
		if t, ok := e.tracks[trackKey{exercise: cfg.Name, track: id}]; ok {
			st.Phase = t.Phase()
			st.Completed = t.Completed()
			st.LastEnded, _ = t.LastEnded()
		}
		out = append(out, st)
	}
	return out
}

// Counts returns completed repetitions per track for exerciseID.
func (e *Engine) Counts(exerciseID string) map[TrackID]int {
	counts := make(map[TrackID]int)
	for _, st := range e.Tracks(exerciseID) {
		counts[st.Track] = st.Completed
	}
	return counts
}

// Total returns the sum of completed repetitions over all tracks of
// exerciseID.
func (e *Engine) Total(exerciseID string) int {
	total := 0
	for _, st := range e.Tracks(exerciseID) {
		total += st.Completed
	}
	return total
}
