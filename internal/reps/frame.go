package reps

import (
	"encoding/json"
	"math"
	"time"
)

// ExtendedAngle is the joint angle of a fully straight limb. Missing angle
// features resolve to it so absent tracking data never starts a rep.
const ExtendedAngle = 180.0

// Frame is one per-video-frame feature record from the pose estimator.
// Every field is optional; nil or non-finite values fall back to safe
// defaults (straight joints, zero lean, zero hip height, zero confidence).
type Frame struct {
	Time            time.Time `json:"time,omitzero"`
	LeftKneeAngle   *float64  `json:"left_knee_angle,omitempty"`
	RightKneeAngle  *float64  `json:"right_knee_angle,omitempty"`
	LeftElbowAngle  *float64  `json:"left_elbow_angle,omitempty"`
	RightElbowAngle *float64  `json:"right_elbow_angle,omitempty"`
	KneeMinAngle    *float64  `json:"knee_min_angle,omitempty"`
	ElbowMinAngle   *float64  `json:"elbow_min_angle,omitempty"`
	TorsoDeviation  *float64  `json:"torso_dev,omitempty"`
	HipY            *float64  `json:"center_hip_y,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
}

// frameAliases are the "*_frame" keys emitted by pose producers that tag
// per-frame features with a suffix.
type frameAliases struct {
	LeftKneeAngle   *float64 `json:"left_knee_angle_frame"`
	RightKneeAngle  *float64 `json:"right_knee_angle_frame"`
	LeftElbowAngle  *float64 `json:"left_elbow_angle_frame"`
	RightElbowAngle *float64 `json:"right_elbow_angle_frame"`
	KneeMinAngle    *float64 `json:"knee_min_angle_frame"`
	ElbowMinAngle   *float64 `json:"elbow_min_angle_frame"`
	TorsoDeviation  *float64 `json:"torso_dev_frame"`
}

// UnmarshalJSON accepts both the plain keys and their "_frame" suffixed
// aliases. A plain key wins when both are present.
func (f *Frame) UnmarshalJSON(data []byte) error {
	type plain Frame
	var v struct {
		plain
		frameAliases
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Frame(v.plain)

	a := v.frameAliases
	fill := func(dst **float64, alias *float64) {
		if *dst == nil {
			*dst = alias
		}
	}
	fill(&f.LeftKneeAngle, a.LeftKneeAngle)
	fill(&f.RightKneeAngle, a.RightKneeAngle)
	fill(&f.LeftElbowAngle, a.LeftElbowAngle)
	fill(&f.RightElbowAngle, a.RightElbowAngle)
	fill(&f.KneeMinAngle, a.KneeMinAngle)
	fill(&f.ElbowMinAngle, a.ElbowMinAngle)
	fill(&f.TorsoDeviation, a.TorsoDeviation)
	return nil
}

// Float returns a pointer to v, for building frames.
func Float(v float64) *float64 {
	return &v
}

// Angle resolves the driving joint angle for source s in degrees, clamped
// to [0, 180].
func (f Frame) Angle(s AngleSource) float64 {
	switch s {
	case SourceLeftKnee:
		return angleOr(f.LeftKneeAngle)
	case SourceRightKnee:
		return angleOr(f.RightKneeAngle)
	case SourceLeftElbow:
		return angleOr(f.LeftElbowAngle)
	case SourceRightElbow:
		return angleOr(f.RightElbowAngle)
	case SourceElbow:
		if usable(f.ElbowMinAngle) {
			return angleOr(f.ElbowMinAngle)
		}
		return math.Min(angleOr(f.LeftElbowAngle), angleOr(f.RightElbowAngle))
	default:
		// An explicit min angle drives the global track even when it
		// disagrees with the per-side angles.
		if usable(f.KneeMinAngle) {
			return angleOr(f.KneeMinAngle)
		}
		return math.Min(angleOr(f.LeftKneeAngle), angleOr(f.RightKneeAngle))
	}
}

// Flex returns the bend magnitude 180° − angle for source s.
func (f Frame) Flex(s AngleSource) float64 {
	return ExtendedAngle - f.Angle(s)
}

// Torso returns the torso deviation from vertical, or 0 when absent.
func (f Frame) Torso() float64 {
	return valueOr(f.TorsoDeviation, 0)
}

// Hip returns the vertical hip coordinate, or 0 when absent.
func (f Frame) Hip() float64 {
	return valueOr(f.HipY, 0)
}

// TrackingConfidence returns the frame confidence clamped to [0, 1].
func (f Frame) TrackingConfidence() float64 {
	return clampConfidence(valueOr(f.Confidence, 0))
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func valueOr(v *float64, def float64) float64 {
	if !usable(v) {
		return def
	}
	return *v
}

func angleOr(v *float64) float64 {
	return min(max(valueOr(v, ExtendedAngle), 0), ExtendedAngle)
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return min(max(c, 0), 1)
}
