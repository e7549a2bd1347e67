package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/proximity-voice/internal/model"
)

// ErrIdle is the eviction reason handed to idle players' sessions.
var ErrIdle = errors.New("idle timeout")

// PlayerSource lists players and evicts them.
type PlayerSource interface {
	Snapshot() model.Snapshot
	Evict(id string, reason error) bool
}

// Config holds sweeper configuration.
type Config struct {
	IdleTimeout time.Duration // Evict players silent for longer than this (0 = disabled)
	Interval    time.Duration // Sweep interval (default: 10s)
}

// DefaultConfig returns sensible defaults. The sweeper is disabled.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
	}
}

// Stats holds sweeper counters.
type Stats struct {
	Sweeps  int64
	Evicted int64
}

// Sweeper periodically evicts idle players.
type Sweeper struct {
	cfg     Config
	players PlayerSource
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a new Sweeper.
func New(cfg Config, players PlayerSource, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Sweeper{
		cfg:     cfg,
		players: players,
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled reports whether an idle timeout is configured.
func (s *Sweeper) Enabled() bool {
	return s.cfg.IdleTimeout > 0
}

// Start begins the sweep loop. It does nothing when disabled.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Debug("idle sweeper disabled")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("idle sweeper started",
		"idle_timeout", s.cfg.IdleTimeout,
		"interval", s.cfg.Interval,
	)

	return nil
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("idle sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// run is the main sweep loop.
func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep evicts every player idle for longer than the timeout and returns
// their ids.
func (s *Sweeper) Sweep() []string {
	if !s.Enabled() {
		return nil
	}

	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	var evicted []string
	for _, p := range s.players.Snapshot().Players {
		if !p.LastSeen.Before(cutoff) {
			continue
		}
		if s.players.Evict(p.ID, ErrIdle) {
			evicted = append(evicted, p.ID)
			s.logger.Info("evicted idle player",
				"player", p.ID,
				"last_seen", p.LastSeen,
			)
		}
	}

	s.mu.Lock()
	s.stats.Sweeps++
	s.stats.Evicted += int64(len(evicted))
	s.mu.Unlock()

	return evicted
}
