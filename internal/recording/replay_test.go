package recording

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/claude/repcoach/internal/reps"
)

type memWriter struct {
	got  []reps.Summary
	fail error
}

func (m *memWriter) Write(s reps.Summary) error {
	if m.fail != nil {
		return m.fail
	}
	m.got = append(m.got, s)
	return nil
}

func (m *memWriter) Close() error { return nil }

// TestReplayCountsReps verifies that a timed recording replays to one rep
// per cycle.
func TestReplayCountsReps(t *testing.T) {
	out := &memWriter{}
	stats, err := Replay(squatCycles(4, true), ReplayOptions{Exercise: "squat"}, out)
	require.NoError(t, err)

	assert.Equal(t, 36, stats.Frames)
	assert.Equal(t, 4, stats.Reps)
	assert.Equal(t, 4, stats.ByTrack[reps.TrackGlobal])
	require.Len(t, out.got, 4)
	for i, s := range out.got {
		assert.Equal(t, i+1, s.RepID)
		assert.Equal(t, "squat", s.ExerciseID)
		assert.Equal(t, 130.0, s.MinKneeAngle)
	}
	assert.Equal(t, t0.Add(300*time.Millisecond), out.got[0].StartedAt)
}

// TestReplaySynthesizesTimestamps verifies that untimestamped frames are
// spaced by the configured frame rate.
func TestReplaySynthesizesTimestamps(t *testing.T) {
	out := &memWriter{}
	stats, err := Replay(squatCycles(2, false), ReplayOptions{Exercise: "squat", FPS: 10, Start: t0}, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Reps)
	require.Len(t, out.got, 2)
	assert.Equal(t, t0.Add(1200*time.Millisecond), out.got[1].StartedAt)

	// At the default 30 fps the same motion is too fast to count.
	stats, err = Replay(squatCycles(2, false), ReplayOptions{Exercise: "squat"}, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Reps)
}

// TestReplayUsesRegistry verifies that replay honours an override registry.
func TestReplayUsesRegistry(t *testing.T) {
	strict := reps.Lookup("squat")
	strict.FlexedThreshold = 60
	reg, err := reps.DefaultRegistry().With(strict)
	require.NoError(t, err)

	stats, err := Replay(squatCycles(3, true), ReplayOptions{Exercise: "squat", Registry: reg}, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Reps)
}

// TestReplayWriterError verifies that a failing writer aborts the replay.
func TestReplayWriterError(t *testing.T) {
	boom := errors.New("disk full")
	_, err := Replay(squatCycles(1, true), ReplayOptions{Exercise: "squat"}, &memWriter{fail: boom})
	assert.ErrorIs(t, err, boom)
}

// TestJSONLSummaryWriter verifies one JSON summary per line.
func TestJSONLSummaryWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	_, err := Replay(squatCycles(2, true), ReplayOptions{Exercise: "squat"}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var s reps.Summary
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &s))
	assert.Equal(t, 2, s.RepID)
	assert.Equal(t, reps.TrackGlobal, s.TrackID)
}

// TestParquetSummaryWriter verifies the Parquet summary columns.
func TestParquetSummaryWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reps.parquet")
	w, err := CreateSummaryWriter(path, FormatParquet)
	require.NoError(t, err)
	_, err = Replay(squatCycles(3, true), ReplayOptions{Exercise: "squat"}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(summaryRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(3), pr.GetNumRows())
	rows := make([]summaryRow, 3)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, int64(3), rows[2].RepID)
	assert.Equal(t, "squat", rows[2].ExerciseID)
	assert.Equal(t, "2026-03-01T09:00:00.3Z", rows[0].StartedAt)
}

// TestSQLiteSummaryWriter verifies that SQLite output is committed on Close
// and appended on reopen.
func TestSQLiteSummaryWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reps.db")
	w, err := CreateSummaryWriter(path, FormatSQLite)
	require.NoError(t, err)
	_, err = Replay(squatCycles(2, true), ReplayOptions{Exercise: "squat"}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	var maxID int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(rep_id) FROM reps WHERE exercise_id = 'squat'`).Scan(&count, &maxID))
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, maxID)

	// Reopening appends.
	w, err = CreateSummaryWriter(path, FormatSQLite)
	require.NoError(t, err)
	_, err = Replay(squatCycles(1, true), ReplayOptions{Exercise: "squat"}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reps`).Scan(&count))
	assert.Equal(t, 3, count)
}

// TestCreateSummaryWriterUnknownFormat verifies that unsupported formats
// are rejected.
func TestCreateSummaryWriterUnknownFormat(t *testing.T) {
	_, err := CreateSummaryWriter(filepath.Join(t.TempDir(), "x"), Format("csv"))
	assert.Error(t, err)
}
