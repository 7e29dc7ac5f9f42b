package recording

import (
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/reps"
)

// DefaultFPS spaces untimestamped frames during replay.
const DefaultFPS = 30

// ReplayOptions controls an offline replay.
type ReplayOptions struct {
	Exercise string
	Registry *reps.Registry
	// FPS is used to synthesize timestamps for frames that carry none,
	// starting at Start.
	FPS   float64
	Start time.Time
}

// Stats summarizes a replay or a stream.
type Stats struct {
	Frames  int
	Reps    int
	Batches int
	ByTrack map[reps.TrackID]int
}

func (s *Stats) add(sums []reps.Summary) {
	if s.ByTrack == nil {
		s.ByTrack = make(map[reps.TrackID]int)
	}
	for _, sum := range sums {
		s.Reps++
		s.ByTrack[sum.TrackID]++
	}
}

// Replay runs frames through a fresh engine and passes every completed
// repetition to out, which may be nil.
func Replay(frames []reps.Frame, opts ReplayOptions, out SummaryWriter) (Stats, error) {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Start.IsZero() {
		opts.Start = time.Unix(0, 0).UTC()
	}
	step := time.Duration(float64(time.Second) / opts.FPS)

	engine := reps.NewEngine(reps.WithRegistry(opts.Registry))
	engine.SetActiveExercise(opts.Exercise)

	var stats Stats
	for i, f := range frames {
		if f.Time.IsZero() {
			f.Time = opts.Start.Add(time.Duration(i) * step)
		}
		done := engine.Process(f)
		stats.Frames++
		stats.add(done)
		if out == nil {
			continue
		}
		for _, sum := range done {
			if err := out.Write(sum); err != nil {
				return stats, fmt.Errorf("writing rep %d on %s: %w", sum.RepID, sum.TrackID, err)
			}
		}
	}
	return stats, nil
}
