package config

import (
	"time"

	"github.com/rickgao/proximity-voice/internal/attenuation"
)

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":8080"
	DefaultWSPath          = "/ws"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxDistance     = attenuation.DefaultMaxDistance
	DefaultCurve           = "exponential"
	DefaultMasterVolume    = attenuation.DefaultMasterVolume
	DefaultSpawnHeight     = 64.0
	DefaultOutboxSize      = 64
	DefaultPingInterval    = 30 * time.Second
	DefaultPongTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultReadLimit       = 256 * 1024
	DefaultRateLimit       = 100.0
	DefaultRateBurst       = 50
	DefaultRosterDebounce  = 50 * time.Millisecond
	DefaultRosterInterval  = 5 * time.Second
	DefaultSweepInterval   = 10 * time.Second
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultBatchSize       = 100
	DefaultFlushInterval   = 1 * time.Second
	DefaultBufferSize      = 1000
	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *RelayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Audio defaults
	if c.Audio.MaxDistance == 0 {
		c.Audio.MaxDistance = DefaultMaxDistance
	}
	if c.Audio.Curve == "" {
		c.Audio.Curve = DefaultCurve
	}
	if c.Audio.MasterVolume == nil {
		v := DefaultMasterVolume
		c.Audio.MasterVolume = &v
	}

	// Sessions defaults
	if c.Sessions.SpawnHeight == nil {
		h := DefaultSpawnHeight
		c.Sessions.SpawnHeight = &h
	}
	if c.Sessions.OutboxSize == 0 {
		c.Sessions.OutboxSize = DefaultOutboxSize
	}
	if c.Sessions.PingInterval == 0 {
		c.Sessions.PingInterval = DefaultPingInterval
	}
	if c.Sessions.PongTimeout == 0 {
		c.Sessions.PongTimeout = DefaultPongTimeout
	}
	if c.Sessions.WriteTimeout == 0 {
		c.Sessions.WriteTimeout = DefaultWriteTimeout
	}
	if c.Sessions.ReadLimit == 0 {
		c.Sessions.ReadLimit = DefaultReadLimit
	}
	if c.Sessions.RateLimit == 0 {
		c.Sessions.RateLimit = DefaultRateLimit
	}
	if c.Sessions.RateBurst == 0 {
		c.Sessions.RateBurst = DefaultRateBurst
	}

	// Roster defaults
	if c.Roster.Debounce == nil {
		d := DefaultRosterDebounce
		c.Roster.Debounce = &d
	}
	if c.Roster.Interval == nil {
		d := DefaultRosterInterval
		c.Roster.Interval = &d
	}

	// Liveness defaults
	if c.Liveness.SweepInterval == 0 {
		c.Liveness.SweepInterval = DefaultSweepInterval
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
