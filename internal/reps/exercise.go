package reps

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// TrackID names an independently tracked anatomical unit.
type TrackID string

const (
	TrackGlobal TrackID = "global" // whole-body symmetric movement
	TrackLeft   TrackID = "left"
	TrackRight  TrackID = "right"
)

// Sibling returns the paired track for left/right tracks.
func (t TrackID) Sibling() (TrackID, bool) {
	switch t {
	case TrackLeft:
		return TrackRight, true
	case TrackRight:
		return TrackLeft, true
	}
	return "", false
}

func (t TrackID) valid() bool {
	return t == TrackGlobal || t == TrackLeft || t == TrackRight
}

// Joint is the anatomical joint whose angle drives a track.
type Joint string

const (
	JointKnee  Joint = "knee"
	JointElbow Joint = "elbow"
)

// AngleSource selects the frame feature that drives a track.
type AngleSource string

const (
	SourceKnee       AngleSource = "knee"  // smaller of both knee angles
	SourceElbow      AngleSource = "elbow" // smaller of both elbow angles
	SourceLeftKnee   AngleSource = "left_knee"
	SourceRightKnee  AngleSource = "right_knee"
	SourceLeftElbow  AngleSource = "left_elbow"
	SourceRightElbow AngleSource = "right_elbow"
)

// Joint reports which joint this source measures.
func (s AngleSource) Joint() Joint {
	switch s {
	case SourceElbow, SourceLeftElbow, SourceRightElbow:
		return JointElbow
	}
	return JointKnee
}

func (s AngleSource) valid() bool {
	switch s {
	case SourceKnee, SourceElbow, SourceLeftKnee, SourceRightKnee, SourceLeftElbow, SourceRightElbow:
		return true
	}
	return false
}

// DefaultExercise is the registry key of the fallback configuration.
const DefaultExercise = "default"

// ExerciseConfig holds the parameters governing rep detection for one
// exercise. Values are treated as immutable once registered.
type ExerciseConfig struct {
	Name              string
	Tracks            []TrackID
	AngleSources      map[TrackID]AngleSource
	FlexedThreshold   float64 // degrees of flex to enter FLEXED
	ExtendedThreshold float64 // degrees of flex below which the rep ends
	MinRepDuration    time.Duration
	MinRestTime       time.Duration
	LimbGating        bool
	GatingDelta       float64 // degrees of flex over the sibling track
}

// AngleSource returns the feature driving track t. Tracks without an explicit
// mapping are driven by the knee on the same side.
func (c ExerciseConfig) AngleSource(t TrackID) AngleSource {
	if s, ok := c.AngleSources[t]; ok {
		return s
	}
	switch t {
	case TrackLeft:
		return SourceLeftKnee
	case TrackRight:
		return SourceRightKnee
	}
	return SourceKnee
}

// HasTrack reports whether t is one of the configured tracks.
func (c ExerciseConfig) HasTrack(t TrackID) bool {
	return slices.Contains(c.Tracks, t)
}

// Validate checks the structural invariants of the configuration.
func (c ExerciseConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("exercise name is required")
	}
	if len(c.Tracks) == 0 {
		return fmt.Errorf("exercise %q: at least one track is required", c.Name)
	}
	seen := make(map[TrackID]bool, len(c.Tracks))
	for _, t := range c.Tracks {
		if !t.valid() {
			return fmt.Errorf("exercise %q: unknown track %q", c.Name, t)
		}
		if seen[t] {
			return fmt.Errorf("exercise %q: duplicate track %q", c.Name, t)
		}
		seen[t] = true
	}
	for t, s := range c.AngleSources {
		if !seen[t] {
			return fmt.Errorf("exercise %q: angle source for unconfigured track %q", c.Name, t)
		}
		if !s.valid() {
			return fmt.Errorf("exercise %q: unknown angle source %q", c.Name, s)
		}
	}
	if c.ExtendedThreshold >= c.FlexedThreshold {
		return fmt.Errorf("exercise %q: extended threshold %.1f must be below flexed threshold %.1f",
			c.Name, c.ExtendedThreshold, c.FlexedThreshold)
	}
	if c.MinRepDuration < 0 || c.MinRestTime < 0 {
		return fmt.Errorf("exercise %q: durations must not be negative", c.Name)
	}
	if c.LimbGating {
		if !seen[TrackLeft] || !seen[TrackRight] {
			return fmt.Errorf("exercise %q: limb gating needs both left and right tracks", c.Name)
		}
		if c.GatingDelta < 0 {
			return fmt.Errorf("exercise %q: gating delta must not be negative", c.Name)
		}
	}
	return nil
}

func (c ExerciseConfig) clone() ExerciseConfig {
	c.Tracks = slices.Clone(c.Tracks)
	c.AngleSources = maps.Clone(c.AngleSources)
	return c
}

var builtinExercises = []ExerciseConfig{
	{
		Name:              "squat",
		Tracks:            []TrackID{TrackGlobal},
		AngleSources:      map[TrackID]AngleSource{TrackGlobal: SourceKnee},
		FlexedThreshold:   35,
		ExtendedThreshold: 15,
		MinRepDuration:    200 * time.Millisecond,
		MinRestTime:       80 * time.Millisecond,
	},
	{
		Name:              "pushup",
		Tracks:            []TrackID{TrackGlobal},
		AngleSources:      map[TrackID]AngleSource{TrackGlobal: SourceElbow},
		FlexedThreshold:   40,
		ExtendedThreshold: 20,
		MinRepDuration:    180 * time.Millisecond,
		MinRestTime:       80 * time.Millisecond,
	},
	{
		Name:              "bicep_curl",
		Tracks:            []TrackID{TrackGlobal},
		AngleSources:      map[TrackID]AngleSource{TrackGlobal: SourceElbow},
		FlexedThreshold:   90,
		ExtendedThreshold: 20,
		MinRepDuration:    150 * time.Millisecond,
		MinRestTime:       60 * time.Millisecond,
	},
	{
		Name:              "lunge",
		Tracks:            []TrackID{TrackGlobal},
		AngleSources:      map[TrackID]AngleSource{TrackGlobal: SourceKnee},
		FlexedThreshold:   45,
		ExtendedThreshold: 20,
		MinRepDuration:    220 * time.Millisecond,
		MinRestTime:       100 * time.Millisecond,
	},
	{
		Name:   "mountain_climber",
		Tracks: []TrackID{TrackLeft, TrackRight},
		AngleSources: map[TrackID]AngleSource{
			TrackLeft:  SourceLeftKnee,
			TrackRight: SourceRightKnee,
		},
		FlexedThreshold:   40,
		ExtendedThreshold: 20,
		MinRepDuration:    150 * time.Millisecond,
		MinRestTime:       60 * time.Millisecond,
		LimbGating:        true,
		GatingDelta:       15,
	},
}

var defaultExercise = ExerciseConfig{
	Name:              DefaultExercise,
	Tracks:            []TrackID{TrackGlobal},
	AngleSources:      map[TrackID]AngleSource{TrackGlobal: SourceKnee},
	FlexedThreshold:   35,
	ExtendedThreshold: 15,
	MinRepDuration:    300 * time.Millisecond,
	MinRestTime:       200 * time.Millisecond,
}

// Registry maps exercise identifiers to configurations. A Registry is never
// mutated after construction and is safe to share between sessions.
type Registry struct {
	exercises map[string]ExerciseConfig
	fallback  ExerciseConfig
}

var builtinRegistry = func() *Registry {
	r, err := NewRegistry(defaultExercise, builtinExercises...)
	if err != nil {
		panic(err)
	}
	return r
}()

// DefaultRegistry returns the built-in exercise table.
func DefaultRegistry() *Registry {
	return builtinRegistry
}

// Lookup resolves id against the built-in exercise table.
func Lookup(id string) ExerciseConfig {
	return builtinRegistry.Lookup(id)
}

// NewRegistry validates and indexes the given configurations.
func NewRegistry(fallback ExerciseConfig, exercises ...ExerciseConfig) (*Registry, error) {
	if err := fallback.Validate(); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	r := &Registry{
		exercises: make(map[string]ExerciseConfig, len(exercises)),
		fallback:  fallback.clone(),
	}
	for _, ex := range exercises {
		if err := ex.Validate(); err != nil {
			return nil, err
		}
		ex.Name = normalizeID(ex.Name)
		r.exercises[ex.Name] = ex.clone()
	}
	return r, nil
}

// With returns a new registry with the given entries added, replacing any
// existing entries of the same name. An entry named "default" replaces the
// fallback configuration.
func (r *Registry) With(overrides ...ExerciseConfig) (*Registry, error) {
	fallback := r.fallback
	entries := make([]ExerciseConfig, 0, len(r.exercises)+len(overrides))
	byName := make(map[string]int, len(r.exercises))
	for _, name := range r.Names() {
		byName[name] = len(entries)
		entries = append(entries, r.exercises[name])
	}
	for _, ex := range overrides {
		name := normalizeID(ex.Name)
		if name == DefaultExercise {
			fallback = ex
			continue
		}
		if i, ok := byName[name]; ok {
			entries[i] = ex
			continue
		}
		byName[name] = len(entries)
		entries = append(entries, ex)
	}
	return NewRegistry(fallback, entries...)
}

// Lookup returns the configuration for id, or the fallback configuration
// when id is not registered. It never fails.
func (r *Registry) Lookup(id string) ExerciseConfig {
	if ex, ok := r.exercises[normalizeID(id)]; ok {
		return ex.clone()
	}
	return r.fallback.clone()
}

// Known reports whether id has a dedicated entry.
func (r *Registry) Known(id string) bool {
	_, ok := r.exercises[normalizeID(id)]
	return ok
}

// Names returns the registered exercise identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.exercises))
	for name := range r.exercises {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the fallback configuration.
func (r *Registry) Default() ExerciseConfig {
	return r.fallback.clone()
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
