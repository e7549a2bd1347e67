package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Sessions SessionsConfig `yaml:"sessions"`
	Roster   RosterConfig   `yaml:"roster"`
	Liveness LivenessConfig `yaml:"liveness"`
	Database DBConfig       `yaml:"database"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the public HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	WSPath          string        `yaml:"ws_path"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	CheckOrigin     bool          `yaml:"check_origin"` // Enforce same-origin on websocket upgrade
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AudioConfig holds the default mixing parameters.
type AudioConfig struct {
	MaxDistance  float64  `yaml:"max_distance"`
	Curve        string   `yaml:"curve"`         // linear, exponential, logarithmic, inverse_square
	MasterVolume *float64 `yaml:"master_volume"` // nil = default; 0 is a valid (muted) value
}

// SessionsConfig holds per-connection settings.
type SessionsConfig struct {
	SpawnHeight  *float64      `yaml:"spawn_height"`
	OutboxSize   int           `yaml:"outbox_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
	RateLimit    float64       `yaml:"rate_limit"` // Inbound frames per second
	RateBurst    int           `yaml:"rate_burst"`
}

// RosterConfig holds roster broadcast settings.
type RosterConfig struct {
	Debounce *time.Duration `yaml:"debounce"` // nil = default; 0 broadcasts on every change
	Interval *time.Duration `yaml:"interval"` // Periodic full roster; nil = default, 0 disables
}

// LivenessConfig holds the optional idle sweeper settings.
type LivenessConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"` // 0 disables the sweeper
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DBConfig holds the presence journal database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds presence journal batching settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
