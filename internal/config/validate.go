package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/proximity-voice/internal/attenuation"
)

// Validate checks that all required fields are set and values are valid.
// It expects defaults to have been applied.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /, got %q", c.Server.WSPath)
	}

	if _, err := c.AudioParams(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if c.Sessions.OutboxSize < 1 {
		return errors.New("sessions.outbox_size must be >= 1")
	}
	if c.Sessions.RateLimit < 0 {
		return errors.New("sessions.rate_limit must be >= 0")
	}
	if c.Sessions.RateBurst < 1 {
		return errors.New("sessions.rate_burst must be >= 1")
	}
	if c.Sessions.PingInterval > 0 && c.Sessions.PongTimeout > 0 && c.Sessions.PongTimeout <= c.Sessions.PingInterval {
		return fmt.Errorf("sessions.pong_timeout (%v) must exceed ping_interval (%v)", c.Sessions.PongTimeout, c.Sessions.PingInterval)
	}

	if c.Roster.Debounce != nil && *c.Roster.Debounce < 0 {
		return errors.New("roster.debounce must be >= 0")
	}
	if c.Roster.Interval != nil && *c.Roster.Interval < 0 {
		return errors.New("roster.interval must be >= 0")
	}

	if c.Liveness.IdleTimeout < 0 {
		return errors.New("liveness.idle_timeout must be >= 0")
	}
	if c.Liveness.IdleTimeout > 0 && c.Liveness.SweepInterval <= 0 {
		return errors.New("liveness.sweep_interval must be > 0 when idle_timeout is set")
	}

	if c.Journal.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be positive")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") || c.Metrics.Path == "/health" || c.Metrics.Path == "/debug/players" {
		return fmt.Errorf("metrics.path must start with / and not shadow ops routes, got %q", c.Metrics.Path)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// AudioParams converts the audio section into mixing parameters.
// Unknown curve names are rejected.
func (c *RelayConfig) AudioParams() (attenuation.Params, error) {
	curve, err := attenuation.ParseCurve(c.Audio.Curve)
	if err != nil {
		return attenuation.Params{}, err
	}

	volume := attenuation.DefaultMasterVolume
	if c.Audio.MasterVolume != nil {
		volume = *c.Audio.MasterVolume
	}

	p := attenuation.Params{
		MaxDistance:  c.Audio.MaxDistance,
		Curve:        curve,
		MasterVolume: volume,
	}
	if err := p.Validate(); err != nil {
		return attenuation.Params{}, err
	}
	return p, nil
}

// SlogLevel maps the configured level name to a slog level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
	}
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
