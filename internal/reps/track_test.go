package reps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLimbTrack_AccumulatorsLiveOnlyWhileFlexed verifies that per-cycle
// samples exist only between entering and leaving FLEXED.
func TestLimbTrack_AccumulatorsLiveOnlyWhileFlexed(t *testing.T) {
	cfg := Lookup("squat")
	tr := newLimbTrack(TrackGlobal)
	require.Equal(t, PhaseExtended, tr.Phase())
	require.Nil(t, tr.cycle)

	_, done := tr.step(cfg, "squat", sample{at: at(0), angle: 130, flex: 50, hip: 1})
	require.False(t, done)
	require.Equal(t, PhaseFlexed, tr.Phase())
	assert.Len(t, tr.cycle.hips, 1, "entry seeds the accumulators")

	tr.step(cfg, "squat", sample{at: at(0.1), angle: 120, flex: 60, hip: 2})
	assert.Len(t, tr.cycle.angles, 2)

	sum, done := tr.step(cfg, "squat", sample{at: at(0.3), angle: 175, flex: 5, hip: 3})
	require.True(t, done)
	assert.Nil(t, tr.cycle)
	assert.Equal(t, PhaseExtended, tr.Phase())
	assert.InDelta(t, 2, sum.HipVerticalRange, 1e-9)
	assert.Equal(t, 120.0, sum.MinKneeAngle)

	ended, ok := tr.LastEnded()
	assert.True(t, ok)
	assert.Equal(t, at(0.3), ended)
}

// The closing frame is always appended before a cycle is evaluated, so
// empty accumulators only reach the helpers directly.
func TestSummaryHelpers_Empty(t *testing.T) {
	assert.Equal(t, 0.0, spread(nil))
	assert.Equal(t, ExtendedAngle, minOr(nil, ExtendedAngle))
	assert.Equal(t, 0.0, maxOr(nil, 0))
	assert.Equal(t, 0.0, meanOr(nil, 0))

	assert.Equal(t, 3.0, spread([]float64{4, 1, 2}))
	assert.Equal(t, 2.0, meanOr([]float64{1, 2, 3}, 0))
	assert.Equal(t, time.Duration(0), max(at(0).Sub(at(1)), 0))
}
