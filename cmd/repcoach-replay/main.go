package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/recording"
	"github.com/claude/repcoach/internal/reps"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	in := flag.String("in", "", "recorded frames (.jsonl or .parquet)")
	out := flag.String("out", "", "write rep summaries here (.jsonl, .parquet or .db)")
	format := flag.String("format", "", "output format: jsonl, parquet or sqlite (default: from -out extension)")
	exercise := flag.String("exercise", "squat", "exercise identifier")
	configPath := flag.String("config", "", "optional config file with exercise overrides")
	fps := flag.Float64("fps", recording.DefaultFPS, "frame rate for frames without timestamps")
	serverURL := flag.String("server", "", "stream to a repcoach server instead of replaying locally")
	apiKey := flag.String("api-key", os.Getenv("REPCOACH_AUTH_API_KEY"), "server API key")
	batchSize := flag.Int("batch-size", 100, "frames per request when streaming")
	force := flag.Bool("force", false, "stream even if this recording was already sent")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcoach-replay", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *in == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-replay -in <frames> [-out <file>] [-exercise ID] [-server <URL> -api-key KEY]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	frames, err := recording.ReadFrames(*in)
	if err != nil {
		log.Error("failed to read recording", "path", *in, "error", err)
		os.Exit(1)
	}
	log.Info("recording loaded", "path", *in, "frames", len(frames))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serverURL != "" {
		stats, err := stream(ctx, log, *in, strings.TrimRight(*serverURL, "/"), *apiKey, *exercise, *batchSize, *force, frames)
		printStats(*exercise, stats)
		if err != nil {
			log.Error("stream failed", "error", err)
			os.Exit(1)
		}
		log.Info("stream complete")
		return
	}

	registry := reps.DefaultRegistry()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		if registry, err = cfg.Registry(); err != nil {
			log.Error("invalid exercise table", "error", err)
			os.Exit(1)
		}
	}
	if !registry.Known(*exercise) {
		log.Warn("unknown exercise, using fallback thresholds", "exercise", *exercise)
	}

	var writer recording.SummaryWriter
	if *out != "" {
		f := recording.Format(*format)
		if f == "" {
			if f, err = recording.FormatFromPath(*out); err != nil {
				log.Error("cannot choose output format", "error", err)
				os.Exit(1)
			}
		}
		if writer, err = recording.CreateSummaryWriter(*out, f); err != nil {
			log.Error("failed to open output", "path", *out, "error", err)
			os.Exit(1)
		}
	}

	stats, err := recording.Replay(frames, recording.ReplayOptions{
		Exercise: *exercise,
		Registry: registry,
		FPS:      *fps,
	}, writer)
	if writer != nil {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	printStats(*exercise, stats)
	if err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}
	log.Info("replay complete", "out", *out)
}

func stream(ctx context.Context, log *slog.Logger, path, serverURL, apiKey, exercise string, batchSize int, force bool, frames []reps.Frame) (recording.Stats, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return recording.Stats{}, fmt.Errorf("getting home directory: %w", err)
	}
	state, err := recording.OpenStateDB(filepath.Join(homeDir, ".repcoach-replay"))
	if err != nil {
		return recording.Stats{}, err
	}
	defer state.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return recording.Stats{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return recording.Stats{}, err
	}
	hash, err := recording.HashFile(abs)
	if err != nil {
		return recording.Stats{}, fmt.Errorf("hashing recording: %w", err)
	}

	if !force {
		done, err := state.IsStreamed(abs, serverURL, info.Size(), hash)
		if err != nil {
			return recording.Stats{}, err
		}
		if done {
			log.Info("recording already streamed, use -force to resend", "path", abs)
			return recording.Stats{}, nil
		}
	}

	client := recording.NewClient(serverURL, apiKey)
	if err := client.SetExercise(ctx, exercise); err != nil {
		return recording.Stats{}, fmt.Errorf("selecting exercise: %w", err)
	}
	stats, err := client.Stream(ctx, frames, batchSize, func(s reps.Summary) {
		log.Info("rep", "track", s.TrackID, "rep_id", s.RepID, "duration_s", s.DurationS)
	})
	if err != nil {
		return stats, err
	}
	if err := state.MarkStreamed(abs, serverURL, info.Size(), hash, stats); err != nil {
		log.Warn("failed to record stream state", "error", err)
	}
	return stats, nil
}

func printStats(exercise string, stats recording.Stats) {
	fmt.Println()
	fmt.Println("=== Replay Summary ===")
	fmt.Printf("  Exercise:         %s\n", exercise)
	fmt.Printf("  Frames:           %d\n", stats.Frames)
	if stats.Batches > 0 {
		fmt.Printf("  Batches sent:     %d\n", stats.Batches)
	}
	fmt.Printf("  Reps:             %d\n", stats.Reps)

	tracks := make([]string, 0, len(stats.ByTrack))
	for t := range stats.ByTrack {
		tracks = append(tracks, string(t))
	}
	slices.Sort(tracks)
	for _, t := range tracks {
		fmt.Printf("    %-16s %d\n", t+":", stats.ByTrack[reps.TrackID(t)])
	}
	fmt.Println()
}
