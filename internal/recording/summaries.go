package recording

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
	_ "modernc.org/sqlite"

	"github.com/claude/repcoach/internal/reps"
)

// SummaryWriter receives completed repetitions. Close flushes and releases
// the destination.
type SummaryWriter interface {
	Write(reps.Summary) error
	Close() error
}

// CreateSummaryWriter opens path for writing in the given format.
func CreateSummaryWriter(path string, format Format) (SummaryWriter, error) {
	switch format {
	case FormatJSONL:
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}
		return NewJSONLWriter(f), nil
	case FormatParquet:
		return NewParquetWriter(path)
	case FormatSQLite:
		return OpenSQLiteWriter(path)
	}
	return nil, fmt.Errorf("unsupported summary format %q", format)
}

// JSONLWriter writes one summary per line.
type JSONLWriter struct {
	w   io.Writer
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewJSONLWriter wraps w. If w is an io.Closer it is closed by Close.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	return &JSONLWriter{w: w, bw: bw, enc: json.NewEncoder(bw)}
}

func (j *JSONLWriter) Write(s reps.Summary) error {
	return j.enc.Encode(s)
}

func (j *JSONLWriter) Close() error {
	if err := j.bw.Flush(); err != nil {
		return err
	}
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type summaryRow struct {
	RepID              int64   `parquet:"name=rep_id, type=INT64"`
	TrackID            string  `parquet:"name=track_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ExerciseID         string  `parquet:"name=exercise_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DurationS          float64 `parquet:"name=duration_s, type=DOUBLE"`
	HipVerticalRange   float64 `parquet:"name=hip_vertical_range, type=DOUBLE"`
	MinKneeAngle       float64 `parquet:"name=min_knee_angle, type=DOUBLE"`
	MinElbowAngle      float64 `parquet:"name=min_elbow_angle, type=DOUBLE"`
	MaxTorsoLeanDeg    float64 `parquet:"name=max_torso_lean_deg, type=DOUBLE"`
	LeftRightAsymmetry float64 `parquet:"name=left_right_asymmetry, type=DOUBLE"`
	MovementSmoothness float64 `parquet:"name=movement_smoothness, type=DOUBLE"`
	AvgConfidence      float64 `parquet:"name=avg_confidence, type=DOUBLE"`
	StartedAt          string  `parquet:"name=started_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndedAt            string  `parquet:"name=ended_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func toSummaryRow(s reps.Summary) summaryRow {
	return summaryRow{
		RepID:              int64(s.RepID),
		TrackID:            string(s.TrackID),
		ExerciseID:         s.ExerciseID,
		DurationS:          s.DurationS,
		HipVerticalRange:   s.HipVerticalRange,
		MinKneeAngle:       s.MinKneeAngle,
		MinElbowAngle:      s.MinElbowAngle,
		MaxTorsoLeanDeg:    s.MaxTorsoLeanDeg,
		LeftRightAsymmetry: s.LeftRightAsymmetry,
		MovementSmoothness: s.MovementSmoothness,
		AvgConfidence:      s.AvgConfidence,
		StartedAt:          s.StartedAt.UTC().Format(time.RFC3339Nano),
		EndedAt:            s.EndedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ParquetWriter writes summaries as a Snappy-compressed Parquet file.
type ParquetWriter struct {
	fw source.ParquetFile
	pw *writer.ParquetWriter
}

// NewParquetWriter creates the file at path.
func NewParquetWriter(path string) (*ParquetWriter, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(summaryRow), 4)
	if err != nil {
		fw.Close()
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetWriter{fw: fw, pw: pw}, nil
}

func (p *ParquetWriter) Write(s reps.Summary) error {
	return p.pw.Write(toSummaryRow(s))
}

func (p *ParquetWriter) Close() error {
	if err := p.pw.WriteStop(); err != nil {
		p.fw.Close()
		return err
	}
	return p.fw.Close()
}

// SQLiteWriter appends summaries to a reps table, creating it if needed.
type SQLiteWriter struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
}

// OpenSQLiteWriter opens (or creates) the database at path. Rows become
// visible when Close commits.
func OpenSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening summary db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS reps (
		exercise_id          TEXT NOT NULL,
		track_id             TEXT NOT NULL,
		rep_id               INTEGER NOT NULL,
		duration_s           REAL NOT NULL,
		hip_vertical_range   REAL NOT NULL,
		min_knee_angle       REAL NOT NULL,
		min_elbow_angle      REAL NOT NULL,
		max_torso_lean_deg   REAL NOT NULL,
		left_right_asymmetry REAL NOT NULL,
		movement_smoothness  REAL NOT NULL,
		avg_confidence       REAL NOT NULL,
		started_at           TEXT NOT NULL,
		ended_at             TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating reps table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, err
	}
	stmt, err := tx.Prepare(`INSERT INTO reps (
		exercise_id, track_id, rep_id, duration_s, hip_vertical_range,
		min_knee_angle, min_elbow_angle, max_torso_lean_deg,
		left_right_asymmetry, movement_smoothness, avg_confidence,
		started_at, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	return &SQLiteWriter{db: db, tx: tx, stmt: stmt}, nil
}

func (w *SQLiteWriter) Write(s reps.Summary) error {
	row := toSummaryRow(s)
	_, err := w.stmt.Exec(
		row.ExerciseID, row.TrackID, row.RepID, row.DurationS, row.HipVerticalRange,
		row.MinKneeAngle, row.MinElbowAngle, row.MaxTorsoLeanDeg,
		row.LeftRightAsymmetry, row.MovementSmoothness, row.AvgConfidence,
		row.StartedAt, row.EndedAt,
	)
	return err
}

func (w *SQLiteWriter) Close() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("committing reps: %w", err)
	}
	return w.db.Close()
}
