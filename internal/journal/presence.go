package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/proximity-voice/internal/model"
)

// EnsureSchema creates the presence_events table if it does not exist.
func EnsureSchema(ctx context.Context, db Store) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure presence schema: %w", err)
		}
	}
	return nil
}

// PresenceWriter consumes presence events and writes them to presence_events.
type PresenceWriter struct {
	cfg      Config
	logger   *slog.Logger
	observer DropObserver

	// Input from sessions and the hub
	input chan model.PresenceEvent

	// Database
	db Store

	// Batching
	batch       []presenceRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewPresenceWriter creates a new PresenceWriter. observer may be nil.
func NewPresenceWriter(cfg Config, db Store, observer DropObserver, logger *slog.Logger) *PresenceWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &PresenceWriter{
		cfg:      cfg,
		db:       db,
		observer: observer,
		logger:   logger,
		input:    make(chan model.PresenceEvent, cfg.BufferSize),
		batch:    make([]presenceRow, 0, cfg.BatchSize),
	}
}

// Record queues an event. It never blocks; a full queue drops the event.
func (w *PresenceWriter) Record(event model.PresenceEvent) {
	select {
	case w.input <- event:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		if w.observer != nil {
			w.observer.JournalEventDropped()
		}
		w.logger.Warn("presence queue full, dropping event",
			"player", event.PlayerID,
			"kind", event.Kind,
		)
	}
}

// Start begins consuming events and writing to the database.
func (w *PresenceWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("presence writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued events, writes them and shuts down.
func (w *PresenceWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping presence writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("presence writer stop timed out")
		return ctx.Err()
	}

	// Pick up anything still queued
	for drained := false; !drained; {
		select {
		case event := <-w.input:
			w.append(event)
		default:
			drained = true
		}
	}

	// Final flush
	err := w.flushWith(ctx)
	w.logger.Info("presence writer stopped")
	return err
}

// Stats returns current metrics.
func (w *PresenceWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *PresenceWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event := <-w.input:
			if w.append(event) {
				w.flushWith(w.ctx)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *PresenceWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushWith(w.ctx)
		}
	}
}

// append adds an event to the batch and reports whether the batch is full.
func (w *PresenceWriter) append(event model.PresenceEvent) bool {
	row := w.transform(event)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a PresenceEvent to a presenceRow.
func (w *PresenceWriter) transform(e model.PresenceEvent) presenceRow {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return presenceRow{
		SessionID:  e.SessionID.String(),
		InstanceID: w.cfg.InstanceID,
		PlayerID:   e.PlayerID,
		Kind:       string(e.Kind),
		RemoteAddr: e.RemoteAddr,
		Reason:     e.Reason,
		At:         at.UTC(),
		DurationMs: e.Duration.Milliseconds(),
	}
}

// flushWith writes the current batch to the database.
func (w *PresenceWriter) flushWith(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]presenceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return err
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed presence events",
		"count", len(batch),
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch.
func (w *PresenceWriter) batchInsert(ctx context.Context, rows []presenceRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL,
			r.SessionID, r.InstanceID, r.PlayerID, r.Kind, r.RemoteAddr, r.Reason, r.At, r.DurationMs)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert presence event: %w", err)
		}
	}

	return nil
}
