package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Config configures the presence writer.
type Config struct {
	InstanceID    string        // Written to every row
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits in the batch
	BufferSize    int           // Queued events before Record drops
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Store is the subset of *pgxpool.Pool the writer uses.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DropObserver is told about every event dropped on a full queue.
type DropObserver interface {
	JournalEventDropped()
}

// Metrics holds writer counters.
type Metrics struct {
	Inserts int64
	Dropped int64
	Errors  int64
	Flushes int64
}

// presenceRow is one presence_events row.
type presenceRow struct {
	SessionID  string
	InstanceID string
	PlayerID   string
	Kind       string
	RemoteAddr string
	Reason     string
	At         time.Time
	DurationMs int64
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS presence_events (
		id          BIGSERIAL PRIMARY KEY,
		session_id  UUID        NOT NULL,
		instance_id TEXT        NOT NULL,
		player_id   TEXT        NOT NULL,
		kind        TEXT        NOT NULL,
		remote_addr TEXT        NOT NULL DEFAULT '',
		reason      TEXT        NOT NULL DEFAULT '',
		at          TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT      NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS presence_events_player_at_idx ON presence_events (player_id, at)`,
}

const insertSQL = `
	INSERT INTO presence_events (session_id, instance_id, player_id, kind, remote_addr, reason, at, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
