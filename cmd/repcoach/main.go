package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsnet"

	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/feedback"
	"github.com/claude/repcoach/internal/logging"
	"github.com/claude/repcoach/internal/mcp"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/reps"
	"github.com/claude/repcoach/internal/server"
	"github.com/claude/repcoach/internal/session"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser, err := logging.New(logging.Params{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		ToStdout:   cfg.Log.ToStdout,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	log.Info("repcoach starting", "version", Version)

	promRegistry := metrics.SetupPrometheus()
	m := metrics.NewManager(cfg.Metrics.Namespace, "", promRegistry)

	registry, err := cfg.Registry()
	if err != nil {
		log.Error("invalid exercise table", "error", err)
		os.Exit(1)
	}
	log.Info("exercise registry loaded", "exercises", registry.Names())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Coaching feedback is optional; without it reps are only counted.
	var dispatcher *feedback.Dispatcher
	opts := session.Options{
		Exercise:    cfg.Session.Exercise,
		RecentLimit: cfg.Session.RecentLimit,
	}
	if cfg.Feedback.Enabled {
		client := feedback.NewClient(cfg.Feedback.URL, cfg.Feedback.APIKey, cfg.Feedback.Timeout)
		dispatcher = feedback.NewDispatcher(client, feedback.Options{
			QueueSize:   cfg.Feedback.QueueSize,
			Workers:     cfg.Feedback.Workers,
			EveryNthRep: cfg.Feedback.EveryNthRep,
			DropPolicy:  feedback.DropPolicy(cfg.Feedback.DropPolicy),
		}, log.With("component", "feedback"), m)
		opts.Sink = dispatcher
	}

	sess := session.New(reps.NewEngine(reps.WithRegistry(registry)), opts, log.With("component", "session"), m)
	if dispatcher != nil {
		dispatcher.OnMessage(sess.RecordCoaching)
		dispatcher.Start(ctx)
	}

	srv := server.New(sess, cfg.Auth.APIKey, log, m)
	if cfg.Metrics.Enabled {
		srv.Mount("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}
	mcpHTTP := mcpserver.NewStreamableHTTPServer(mcp.New(mcp.NewLocal(sess), Version, log.With("component", "mcp")))
	srv.Mount("/mcp", server.APIKeyAuth(cfg.Auth.APIKey)(mcpHTTP))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if dispatcher != nil {
		dispatcher.Stop(shutdownCtx)
	}
	snap := sess.Snapshot()
	log.Info("server stopped", "session", snap.ID, "frames", snap.Frames, "reps", snap.TotalReps)
}
