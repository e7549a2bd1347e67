package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/proximity-voice/internal/model"
)

// fakeStore records executed statements and batches.
type fakeStore struct {
	mu      sync.Mutex
	execs   []string
	batches [][]*pgx.QueuedQuery
	execErr error
	sendErr error
}

func (s *fakeStore) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	s.execs = append(s.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (s *fakeStore) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr == nil {
		s.batches = append(s.batches, b.QueuedQueries)
	}
	return &fakeResults{err: s.sendErr}
}

func (s *fakeStore) rows() []*pgx.QueuedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*pgx.QueuedQuery
	for _, b := range s.batches {
		all = append(all, b...)
	}
	return all
}

type fakeResults struct{ err error }

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}
func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

type dropCounter struct {
	mu sync.Mutex
	n  int
}

func (d *dropCounter) JournalEventDropped() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func testEvent(player string, kind model.PresenceKind) model.PresenceEvent {
	return model.PresenceEvent{
		SessionID:  uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		PlayerID:   player,
		Kind:       kind,
		RemoteAddr: "10.0.0.1:5000",
		Reason:     "peer closed",
		At:         time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Duration:   1500 * time.Millisecond,
	}
}

func TestPresenceWriter_Transform(t *testing.T) {
	w := NewPresenceWriter(Config{InstanceID: "relay-1", BatchSize: 10, BufferSize: 10}, nil, nil, nil)

	row := w.transform(testEvent("alice", model.PresenceDisconnect))

	if row.SessionID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("SessionID = %s", row.SessionID)
	}
	if row.InstanceID != "relay-1" {
		t.Errorf("InstanceID = %s, want relay-1", row.InstanceID)
	}
	if row.PlayerID != "alice" {
		t.Errorf("PlayerID = %s, want alice", row.PlayerID)
	}
	if row.Kind != "disconnect" {
		t.Errorf("Kind = %s, want disconnect", row.Kind)
	}
	if row.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", row.DurationMs)
	}
	if !row.At.Equal(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("At = %v", row.At)
	}
}

func TestPresenceWriter_Transform_ZeroTime(t *testing.T) {
	w := NewPresenceWriter(DefaultConfig(), nil, nil, nil)

	e := testEvent("alice", model.PresenceConnect)
	e.At = time.Time{}
	row := w.transform(e)

	if row.At.IsZero() {
		t.Error("At should default to now")
	}
}

func TestPresenceWriter_FlushOnBatchSize(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{InstanceID: "relay-1", BatchSize: 2, FlushInterval: time.Hour, BufferSize: 10}
	w := NewPresenceWriter(cfg, store, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop(context.Background())

	w.Record(testEvent("alice", model.PresenceConnect))
	w.Record(testEvent("bob", model.PresenceConnect))

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Inserts < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rows := store.rows()
	if len(rows) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(rows))
	}
	if rows[0].SQL != insertSQL {
		t.Errorf("unexpected SQL %q", rows[0].SQL)
	}
	if got := rows[1].Arguments[2]; got != "bob" {
		t.Errorf("player_id arg = %v, want bob", got)
	}
	if got := w.Stats(); got.Inserts != 2 || got.Flushes != 1 {
		t.Errorf("Stats() = %+v, want 2 inserts in 1 flush", got)
	}
}

func TestPresenceWriter_FlushOnInterval(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, BufferSize: 10}
	w := NewPresenceWriter(cfg, store, nil, nil)

	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.Record(testEvent("alice", model.PresenceConnect))

	deadline := time.Now().Add(2 * time.Second)
	for len(store.rows()) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if len(store.rows()) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(store.rows()))
	}
}

func TestPresenceWriter_StopFlushesQueued(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 10}
	w := NewPresenceWriter(cfg, store, nil, nil)

	// Not started: events stay queued until Stop drains them.
	w.Record(testEvent("alice", model.PresenceConnect))
	w.Record(testEvent("alice", model.PresenceDisconnect))

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if n := len(store.rows()); n != 2 {
		t.Errorf("inserted %d rows, want 2", n)
	}
}

func TestPresenceWriter_RecordDropsWhenFull(t *testing.T) {
	drops := &dropCounter{}
	cfg := Config{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 1}
	w := NewPresenceWriter(cfg, &fakeStore{}, drops, nil)

	w.Record(testEvent("alice", model.PresenceConnect))
	w.Record(testEvent("bob", model.PresenceConnect))
	w.Record(testEvent("carol", model.PresenceConnect))

	if got := w.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	if drops.n != 2 {
		t.Errorf("observer drops = %d, want 2", drops.n)
	}
}

func TestPresenceWriter_InsertError(t *testing.T) {
	store := &fakeStore{sendErr: errors.New("connection refused")}
	w := NewPresenceWriter(Config{BatchSize: 10, BufferSize: 10}, store, nil, nil)

	w.Record(testEvent("alice", model.PresenceConnect))
	err := w.Stop(context.Background())

	if err == nil {
		t.Fatal("expected insert error")
	}
	if got := w.Stats(); got.Errors != 1 || got.Inserts != 0 {
		t.Errorf("Stats() = %+v, want 1 error", got)
	}
}

func TestEnsureSchema(t *testing.T) {
	store := &fakeStore{}

	if err := EnsureSchema(context.Background(), store); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(store.execs) != len(schemaStatements) {
		t.Errorf("executed %d statements, want %d", len(store.execs), len(schemaStatements))
	}

	store = &fakeStore{execErr: errors.New("permission denied")}
	if err := EnsureSchema(context.Background(), store); err == nil {
		t.Error("expected error")
	}
}
