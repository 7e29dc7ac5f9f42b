package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/claude/repcoach/internal/reps"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Auth      AuthConfig       `yaml:"auth"`
	Tailscale TailscaleConfig  `yaml:"tailscale"`
	Log       LogConfig        `yaml:"log"`
	Session   SessionConfig    `yaml:"session"`
	Feedback  FeedbackConfig   `yaml:"feedback"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Exercises []ExerciseConfig `yaml:"exercises"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	ToStdout   bool   `yaml:"to_stdout"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type SessionConfig struct {
	Exercise    string `yaml:"exercise"`
	RecentLimit int    `yaml:"recent_limit"`
}

type FeedbackConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	QueueSize   int           `yaml:"queue_size"`
	Workers     int           `yaml:"workers"`
	EveryNthRep int           `yaml:"every_nth_rep"`
	DropPolicy  string        `yaml:"drop_policy"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ExerciseConfig is the file form of a registry entry.
type ExerciseConfig struct {
	Name              string            `yaml:"name"`
	Tracks            []string          `yaml:"tracks"`
	AngleSources      map[string]string `yaml:"angle_sources"`
	FlexedThreshold   float64           `yaml:"flexed_threshold"`
	ExtendedThreshold float64           `yaml:"extended_threshold"`
	MinRepDuration    time.Duration     `yaml:"min_rep_duration"`
	MinRestTime       time.Duration     `yaml:"min_rest_time"`
	LimbGating        bool              `yaml:"limb_gating"`
	GatingDelta       float64           `yaml:"gating_delta"`
}

// Exercise converts the file form into an engine configuration.
func (e ExerciseConfig) Exercise() reps.ExerciseConfig {
	out := reps.ExerciseConfig{
		Name:              e.Name,
		FlexedThreshold:   e.FlexedThreshold,
		ExtendedThreshold: e.ExtendedThreshold,
		MinRepDuration:    e.MinRepDuration,
		MinRestTime:       e.MinRestTime,
		LimbGating:        e.LimbGating,
		GatingDelta:       e.GatingDelta,
	}
	tracks := e.Tracks
	if len(tracks) == 0 {
		tracks = []string{string(reps.TrackGlobal)}
	}
	for _, t := range tracks {
		out.Tracks = append(out.Tracks, reps.TrackID(t))
	}
	if len(e.AngleSources) > 0 {
		out.AngleSources = make(map[reps.TrackID]reps.AngleSource, len(e.AngleSources))
		for t, s := range e.AngleSources {
			out.AngleSources[reps.TrackID(t)] = reps.AngleSource(s)
		}
	}
	return out
}

// Default returns the configuration used for any value the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Tailscale: TailscaleConfig{
			Hostname: "repcoach",
			StateDir: "tsnet-state",
		},
		Log:     LogConfig{Level: "info", Format: "text", MaxSizeMB: 50},
		Session: SessionConfig{Exercise: "squat", RecentLimit: 100},
		Feedback: FeedbackConfig{
			Timeout:     2 * time.Second,
			QueueSize:   32,
			Workers:     1,
			EveryNthRep: 2,
			DropPolicy:  "drop_newest",
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "repcoach"},
	}
}

// Registry builds the exercise registry: the built-in table with the
// file's entries added or replaced.
func (c *Config) Registry() (*reps.Registry, error) {
	entries := make([]reps.ExerciseConfig, 0, len(c.Exercises))
	for _, e := range c.Exercises {
		entries = append(entries, e.Exercise())
	}
	return reps.DefaultRegistry().With(entries...)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPCOACH_ and underscore-separated paths:
//
//	REPCOACH_SERVER_HOST, REPCOACH_SERVER_PORT, REPCOACH_AUTH_API_KEY,
//	REPCOACH_LOG_LEVEL, REPCOACH_LOG_FILE, REPCOACH_SESSION_EXERCISE,
//	REPCOACH_FEEDBACK_ENABLED, REPCOACH_FEEDBACK_URL, REPCOACH_FEEDBACK_API_KEY,
//	REPCOACH_TAILSCALE_ENABLED
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPCOACH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPCOACH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPCOACH_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPCOACH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REPCOACH_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("REPCOACH_SESSION_EXERCISE"); v != "" {
		cfg.Session.Exercise = v
	}
	if v := os.Getenv("REPCOACH_FEEDBACK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Feedback.Enabled = b
		}
	}
	if v := os.Getenv("REPCOACH_FEEDBACK_URL"); v != "" {
		cfg.Feedback.URL = v
	}
	if v := os.Getenv("REPCOACH_FEEDBACK_API_KEY"); v != "" {
		cfg.Feedback.APIKey = v
	}
	if v := os.Getenv("REPCOACH_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
}

func (c *Config) validate() error {
	var errs error
	if c.Server.Port <= 0 && !c.Tailscale.Enabled {
		errs = multierr.Append(errs, fmt.Errorf("server.port is required"))
	}
	if c.Auth.APIKey == "" {
		errs = multierr.Append(errs, fmt.Errorf("auth.api_key is required"))
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		errs = multierr.Append(errs, fmt.Errorf("tailscale.hostname is required when tailscale is enabled"))
	}
	if c.Session.RecentLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session.recent_limit must not be negative"))
	}
	if c.Feedback.Enabled {
		if u, err := url.Parse(c.Feedback.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("feedback.url must be an absolute URL, got %q", c.Feedback.URL))
		}
		if c.Feedback.Timeout <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("feedback.timeout must be positive"))
		}
		if c.Feedback.QueueSize <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("feedback.queue_size must be positive"))
		}
		if c.Feedback.Workers <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("feedback.workers must be positive"))
		}
		if c.Feedback.EveryNthRep <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("feedback.every_nth_rep must be positive"))
		}
		switch c.Feedback.DropPolicy {
		case "drop_newest", "drop_oldest":
		default:
			errs = multierr.Append(errs, fmt.Errorf("feedback.drop_policy must be drop_newest or drop_oldest, got %q", c.Feedback.DropPolicy))
		}
	}
	if _, err := c.Registry(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("exercises: %w", err))
	}
	return errs
}
