// relay is the proximity voice relay server.
// Usage: go run ./cmd/relay --config configs/relay.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/proximity-voice/internal/config"
	"github.com/rickgao/proximity-voice/internal/connection"
	"github.com/rickgao/proximity-voice/internal/database"
	"github.com/rickgao/proximity-voice/internal/journal"
	"github.com/rickgao/proximity-voice/internal/metrics"
	"github.com/rickgao/proximity-voice/internal/registry"
	"github.com/rickgao/proximity-voice/internal/router"
	"github.com/rickgao/proximity-voice/internal/server"
	"github.com/rickgao/proximity-voice/internal/sweeper"
	"github.com/rickgao/proximity-voice/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}

func loadConfig(path string) (*config.RelayConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func run(cfg *config.RelayConfig, logger *slog.Logger) error {
	params, err := cfg.AudioParams()
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()

	// Presence journal (optional)
	var sink connection.PresenceSink
	var presence *journal.PresenceWriter
	opsDeps := server.OpsDeps{Metrics: m.Handler(), MetricsPath: cfg.Metrics.Path}

	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database, "voice-relay-"+cfg.Instance.ID)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("database connected")

		presence = journal.NewPresenceWriter(journal.Config{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, m, logger.With("component", "journal"))
		if err := presence.Start(ctx); err != nil {
			return err
		}
		sink = presence
		opsDeps.DB = pool
	}

	// Core: registry, router, hub
	spawn := 64.0
	if cfg.Sessions.SpawnHeight != nil {
		spawn = *cfg.Sessions.SpawnHeight
	}
	reg := registry.New(registry.Config{
		SpawnHeight:      spawn,
		ChangeBufferSize: registry.ChangeBufferSize,
	})

	rt := router.NewRouter(router.RouterConfig{Params: params}, reg, m, logger.With("component", "router"))

	hubCfg := connection.HubConfig{
		Session: connection.SessionConfig{
			PingInterval: cfg.Sessions.PingInterval,
			PongTimeout:  cfg.Sessions.PongTimeout,
			WriteTimeout: cfg.Sessions.WriteTimeout,
			ReadLimit:    cfg.Sessions.ReadLimit,
			OutboxSize:   cfg.Sessions.OutboxSize,
			RateLimit:    cfg.Sessions.RateLimit,
			RateBurst:    cfg.Sessions.RateBurst,
		},
		CheckOrigin: cfg.Server.CheckOrigin,
	}
	if cfg.Roster.Debounce != nil {
		hubCfg.RosterDebounce = *cfg.Roster.Debounce
	}
	if cfg.Roster.Interval != nil {
		hubCfg.RosterInterval = *cfg.Roster.Interval
	}

	hub := connection.NewHub(hubCfg, reg, rt, m, sink, logger.With("component", "hub"))
	if err := hub.Start(ctx); err != nil {
		return err
	}

	sw := sweeper.New(sweeper.Config{
		IdleTimeout: cfg.Liveness.IdleTimeout,
		Interval:    cfg.Liveness.SweepInterval,
	}, reg, logger.With("component", "sweeper"))
	if err := sw.Start(ctx); err != nil {
		return err
	}

	// HTTP listeners
	gin.SetMode(gin.ReleaseMode)
	public := server.NewPublicRouter(server.PublicConfig{
		WSPath:         cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, hub, logger.With("component", "http"))

	srv := server.New(server.Config{
		PublicAddr: cfg.Server.Addr,
		OpsAddr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
	}, public, server.NewOpsHandler(hub, opsDeps, logger), logger)

	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("relay running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"ws_path", cfg.Server.WSPath,
		"max_distance", params.MaxDistance,
		"curve", params.Curve,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srv.Errors():
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer shutdownCancel()

	// Stop accepting, then drain sessions, then flush the journal.
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	sw.Stop(shutdownCtx)
	if err := hub.Stop(shutdownCtx); err != nil {
		logger.Warn("hub shutdown", "error", err)
	}
	if presence != nil {
		if err := presence.Stop(shutdownCtx); err != nil {
			logger.Warn("presence journal shutdown", "error", err)
		}
	}

	return runErr
}

func shutdownTimeout(cfg *config.RelayConfig) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
