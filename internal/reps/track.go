package reps

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Phase is the state of a limb track.
type Phase string

const (
	PhaseExtended Phase = "EXTENDED"
	PhaseFlexed   Phase = "FLEXED"
)

// Placeholder values for summary fields that are not computed yet.
const (
	placeholderAsymmetry  = 0.0
	placeholderSmoothness = 0.8
)

// Summary describes one completed repetition on one track.
type Summary struct {
	RepID              int       `json:"rep_id"`
	TrackID            TrackID   `json:"track_id"`
	DurationS          float64   `json:"duration_s"`
	HipVerticalRange   float64   `json:"hip_vertical_range"`
	MinKneeAngle       float64   `json:"min_knee_angle"`
	MinElbowAngle      float64   `json:"min_elbow_angle"`
	MaxTorsoLeanDeg    float64   `json:"max_torso_lean_deg"`
	LeftRightAsymmetry float64   `json:"left_right_asymmetry"`
	MovementSmoothness float64   `json:"movement_smoothness"`
	AvgConfidence      float64   `json:"avg_confidence"`
	ExerciseID         string    `json:"exercise_id"`
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
}

// sample is the per-frame input to a single track.
type sample struct {
	at          time.Time
	angle       float64
	flex        float64
	siblingFlex float64
	hasSibling  bool
	hip         float64
	torso       float64
	confidence  float64
}

// flexCycle exists only while a track is FLEXED, so the accumulators cannot
// outlive the cycle they belong to.
type flexCycle struct {
	startedAt   time.Time
	hips        []float64
	angles      []float64
	torso       []float64
	confidences []float64
}

func newFlexCycle(s sample) *flexCycle {
	return &flexCycle{
		startedAt:   s.at,
		hips:        []float64{s.hip},
		angles:      []float64{s.angle},
		torso:       []float64{s.torso},
		confidences: []float64{s.confidence},
	}
}

func (c *flexCycle) add(s sample) {
	c.hips = append(c.hips, s.hip)
	c.angles = append(c.angles, s.angle)
	c.torso = append(c.torso, s.torso)
	c.confidences = append(c.confidences, s.confidence)
}

// LimbTrack runs the EXTENDED/FLEXED cycle for one track of one exercise.
type LimbTrack struct {
	id        TrackID
	completed int
	endedAt   time.Time
	hasEnded  bool
	cycle     *flexCycle
}

func newLimbTrack(id TrackID) *LimbTrack {
	return &LimbTrack{id: id}
}

// ID returns the track identifier.
func (t *LimbTrack) ID() TrackID { return t.id }

// Completed returns the number of counted repetitions.
func (t *LimbTrack) Completed() int { return t.completed }

// Phase returns the current state.
func (t *LimbTrack) Phase() Phase {
	if t.cycle != nil {
		return PhaseFlexed
	}
	return PhaseExtended
}

// LastEnded returns the end time of the most recent cycle, counted or not.
func (t *LimbTrack) LastEnded() (time.Time, bool) {
	return t.endedAt, t.hasEnded
}

// step advances the state machine by one frame and returns a summary when
// the frame completes a qualifying repetition.
func (t *LimbTrack) step(cfg ExerciseConfig, exerciseID string, s sample) (Summary, bool) {
	if t.cycle == nil {
		if t.coolingDown(cfg, s.at) {
			return Summary{}, false
		}
		if s.flex <= cfg.FlexedThreshold {
			return Summary{}, false
		}
		if cfg.LimbGating && s.hasSibling && s.flex-s.siblingFlex < cfg.GatingDelta {
			return Summary{}, false
		}
		t.cycle = newFlexCycle(s)
		return Summary{}, false
	}

	t.cycle.add(s)
	if s.flex >= cfg.ExtendedThreshold {
		return Summary{}, false
	}

	cycle := t.cycle
	t.cycle = nil
	t.endedAt = s.at
	t.hasEnded = true

	duration := max(s.at.Sub(cycle.startedAt), 0)
	if duration < cfg.MinRepDuration {
		return Summary{}, false
	}

	t.completed++
	sum := Summary{
		RepID:              t.completed,
		TrackID:            t.id,
		DurationS:          duration.Seconds(),
		HipVerticalRange:   spread(cycle.hips),
		MinKneeAngle:       ExtendedAngle,
		MinElbowAngle:      ExtendedAngle,
		MaxTorsoLeanDeg:    maxOr(cycle.torso, 0),
		LeftRightAsymmetry: placeholderAsymmetry,
		MovementSmoothness: placeholderSmoothness,
		AvgConfidence:      meanOr(cycle.confidences, 0),
		ExerciseID:         exerciseID,
		StartedAt:          cycle.startedAt,
		EndedAt:            s.at,
	}
	minAngle := minOr(cycle.angles, ExtendedAngle)
	if cfg.AngleSource(t.id).Joint() == JointElbow {
		sum.MinElbowAngle = minAngle
	} else {
		sum.MinKneeAngle = minAngle
	}
	return sum, true
}

// coolingDown reports whether the rest window after the last cycle is still
// open. A clock that went backwards re-anchors the window at now.
func (t *LimbTrack) coolingDown(cfg ExerciseConfig, now time.Time) bool {
	if !t.hasEnded {
		return false
	}
	elapsed := now.Sub(t.endedAt)
	if elapsed < 0 {
		t.endedAt = now
		elapsed = 0
	}
	return elapsed < cfg.MinRestTime
}

func spread(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Max(xs) - floats.Min(xs)
}

func maxOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return floats.Max(xs)
}

func minOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return floats.Min(xs)
}

func meanOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return stat.Mean(xs, nil)
}
