// Package recording reads and writes recorded frame streams and repetition
// summaries, and replays recordings either offline or against a running
// server.
package recording

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/claude/repcoach/internal/reps"
)

// Format names a file encoding.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
	FormatSQLite  Format = "sqlite"
)

// FormatFromPath guesses the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	case ".parquet":
		return FormatParquet, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("cannot infer format from %q", path)
}

// frameRow is the Parquet layout of a frame. Every column is optional so
// missing features survive a round trip.
type frameRow struct {
	TimeUS          *int64   `parquet:"name=time_us, type=INT64, repetitiontype=OPTIONAL"`
	LeftKneeAngle   *float64 `parquet:"name=left_knee_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	RightKneeAngle  *float64 `parquet:"name=right_knee_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	LeftElbowAngle  *float64 `parquet:"name=left_elbow_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	RightElbowAngle *float64 `parquet:"name=right_elbow_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	KneeMinAngle    *float64 `parquet:"name=knee_min_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	ElbowMinAngle   *float64 `parquet:"name=elbow_min_angle, type=DOUBLE, repetitiontype=OPTIONAL"`
	TorsoDeviation  *float64 `parquet:"name=torso_dev, type=DOUBLE, repetitiontype=OPTIONAL"`
	HipY            *float64 `parquet:"name=center_hip_y, type=DOUBLE, repetitiontype=OPTIONAL"`
	Confidence      *float64 `parquet:"name=confidence, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func toFrameRow(f reps.Frame) frameRow {
	row := frameRow{
		LeftKneeAngle:   f.LeftKneeAngle,
		RightKneeAngle:  f.RightKneeAngle,
		LeftElbowAngle:  f.LeftElbowAngle,
		RightElbowAngle: f.RightElbowAngle,
		KneeMinAngle:    f.KneeMinAngle,
		ElbowMinAngle:   f.ElbowMinAngle,
		TorsoDeviation:  f.TorsoDeviation,
		HipY:            f.HipY,
		Confidence:      f.Confidence,
	}
	if !f.Time.IsZero() {
		us := f.Time.UnixMicro()
		row.TimeUS = &us
	}
	return row
}

func (r frameRow) frame() reps.Frame {
	f := reps.Frame{
		LeftKneeAngle:   r.LeftKneeAngle,
		RightKneeAngle:  r.RightKneeAngle,
		LeftElbowAngle:  r.LeftElbowAngle,
		RightElbowAngle: r.RightElbowAngle,
		KneeMinAngle:    r.KneeMinAngle,
		ElbowMinAngle:   r.ElbowMinAngle,
		TorsoDeviation:  r.TorsoDeviation,
		HipY:            r.HipY,
		Confidence:      r.Confidence,
	}
	if r.TimeUS != nil {
		f.Time = time.UnixMicro(*r.TimeUS).UTC()
	}
	return f
}

// ReadFrames loads a recording, choosing the decoder from the extension.
func ReadFrames(path string) ([]reps.Frame, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSONL:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening recording: %w", err)
		}
		defer f.Close()
		return DecodeFramesJSONL(f)
	case FormatParquet:
		return ReadFramesParquet(path)
	}
	return nil, fmt.Errorf("frames cannot be read from %s files", format)
}

// DecodeFramesJSONL reads one JSON frame per line. Blank lines are skipped.
func DecodeFramesJSONL(r io.Reader) ([]reps.Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var frames []reps.Frame
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var f reps.Frame
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}
	return frames, nil
}

// EncodeFramesJSONL writes frames one per line.
func EncodeFramesJSONL(w io.Writer, frames []reps.Frame) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFramesParquet loads a Parquet recording written by WriteFramesParquet.
func ReadFramesParquet(path string) ([]reps.Frame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(frameRow), 4)
	if err != nil {
		return nil, fmt.Errorf("reading parquet footer: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]frameRow, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return nil, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("reading parquet rows: %w", err)
	}

	frames := make([]reps.Frame, len(rows))
	for i, row := range rows {
		frames[i] = row.frame()
	}
	return frames, nil
}

// WriteFramesParquet stores frames as a Snappy-compressed Parquet file.
func WriteFramesParquet(path string, frames []reps.Frame) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(frameRow), 4)
	if err != nil {
		fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, f := range frames {
		if err := pw.Write(toFrameRow(f)); err != nil {
			_ = pw.WriteStop()
			fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}
