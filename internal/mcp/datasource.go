package mcp

import (
	"context"

	"github.com/claude/repcoach/internal/reps"
	"github.com/claude/repcoach/internal/session"
)

// DataSource abstracts the live session for MCP tools. Both Local (in
// process) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	Snapshot(ctx context.Context) (*session.Snapshot, error)
	RecentReps(ctx context.Context, limit int) ([]reps.Summary, error)
	Exercises(ctx context.Context) ([]session.ExerciseInfo, error)
	SetExercise(ctx context.Context, id string) (*session.Selection, error)
}

// Local serves MCP requests straight from a session in the same process.
type Local struct {
	s *session.Session
}

// Compile-time check: *Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

// NewLocal wraps s.
func NewLocal(s *session.Session) *Local {
	return &Local{s: s}
}

func (l *Local) Snapshot(context.Context) (*session.Snapshot, error) {
	snap := l.s.Snapshot()
	return &snap, nil
}

func (l *Local) RecentReps(_ context.Context, limit int) ([]reps.Summary, error) {
	return l.s.Recent(limit), nil
}

func (l *Local) Exercises(context.Context) ([]session.ExerciseInfo, error) {
	return l.s.Exercises(), nil
}

func (l *Local) SetExercise(_ context.Context, id string) (*session.Selection, error) {
	sel := l.s.Select(id)
	return &sel, nil
}
