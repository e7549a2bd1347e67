package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/proximity-voice/internal/attenuation"
	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
	"github.com/rickgao/proximity-voice/internal/registry"
	"github.com/rickgao/proximity-voice/internal/router"
)

// Session is the server side of one player's connection.
//
// A session is created in StateConnecting, registered with the directory,
// attached to a transport and then driven by Run. It implements
// registry.Recipient so the router and hub can queue frames for it.
type Session struct {
	id         uuid.UUID
	playerID   string
	remoteAddr string

	cfg       SessionConfig
	dir       Directory
	router    AudioRouter
	params    attenuation.Params
	outbox    *router.Outbox
	limiter   *rate.Limiter
	observer  Observer
	sink      PresenceSink
	logger    *slog.Logger
	createdAt time.Time

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}

	mu          sync.Mutex
	transport   Transport
	handle      registry.Handle
	hasHandle   bool
	closed      bool
	closeReason error
	activeAt    time.Time
}

// sessionDeps bundles the collaborators of a session.
type sessionDeps struct {
	dir      Directory
	router   AudioRouter
	params   attenuation.Params
	observer Observer
	sink     PresenceSink
}

func newSession(playerID, remoteAddr string, cfg SessionConfig, deps sessionDeps, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.observer == nil {
		deps.observer = noopObserver{}
	}

	id := uuid.New()
	s := &Session{
		id:         id,
		playerID:   playerID,
		remoteAddr: remoteAddr,
		cfg:        cfg,
		dir:        deps.dir,
		router:     deps.router,
		params:     deps.params,
		outbox:     router.NewOutbox(cfg.OutboxSize),
		observer:   deps.observer,
		sink:       deps.sink,
		logger:     logger.With("player", playerID, "session", id.String()),
		createdAt:  time.Now(),
		done:       make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.state.Store(int32(StateConnecting))

	return s
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// PlayerID returns the player this session belongs to.
func (s *Session) PlayerID() string { return s.playerID }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deliver queues a frame for the peer. It never blocks.
func (s *Session) Deliver(frame protocol.Frame) error {
	return s.outbox.Push(frame)
}

// Evict closes the session asynchronously.
func (s *Session) Evict(reason error) {
	go s.Close(reason)
}

// setHandle records the registry handle. If the session was closed while the
// handle was being issued, the entry is released immediately.
func (s *Session) setHandle(h registry.Handle) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.dir.Release(h)
		return
	}
	s.handle = h
	s.hasHandle = true
	s.mu.Unlock()
}

// attach binds the transport. It reports false, and closes t, if the session
// is already closed.
func (s *Session) attach(t Transport) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Close()
		return false
	}
	s.transport = t
	s.mu.Unlock()
	return true
}

// Run drives the session until the peer goes away, the context is cancelled
// or Close is called. It returns the reason the session ended.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		s.Close(ErrNotConnected)
		return ErrNotConnected
	}

	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return ErrSessionClosed
	}

	s.mu.Lock()
	s.activeAt = time.Now()
	s.mu.Unlock()

	s.observer.SessionOpened()
	s.record(model.PresenceConnect, "", 0)
	s.logger.Info("session active", "remote", s.remoteAddr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.writePump(t)
	}()
	go func() {
		defer wg.Done()
		s.pingLoop(ctx, t)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.Close(ctx.Err())
		case <-s.done:
		}
	}()

	err := s.readLoop(t)
	s.Close(err)
	cancel()
	wg.Wait()

	return s.reason()
}

// Close ends the session. Only the first call has any effect; it releases
// the registry entry, closes the outbox and the transport.
func (s *Session) Close(reason error) {
	s.closeOnce.Do(func() {
		// A session that never became active goes straight to Closed.
		prev := s.State()
		for {
			next := StateClosing
			if prev == StateConnecting {
				next = StateClosed
			}
			if s.state.CompareAndSwap(int32(prev), int32(next)) {
				break
			}
			prev = s.State()
		}

		s.mu.Lock()
		s.closed = true
		s.closeReason = reason
		h, hasHandle := s.handle, s.hasHandle
		t := s.transport
		activeAt := s.activeAt
		s.mu.Unlock()

		if hasHandle {
			s.dir.Release(h)
		}
		s.outbox.Close()
		if t != nil {
			t.Close()
		}

		s.state.Store(int32(StateClosed))
		close(s.done)

		if prev == StateActive {
			s.observer.SessionClosed()
			s.record(model.PresenceDisconnect, reasonText(reason), time.Since(activeAt))
			stats := s.outbox.Stats()
			s.logger.Info("session closed",
				"reason", reasonText(reason),
				"duration", time.Since(activeAt).Round(time.Millisecond),
				"delivered", stats.Delivered,
				"dropped", stats.Dropped,
			)
		} else {
			s.logger.Debug("session aborted", "state", prev, "reason", reasonText(reason))
		}
	})
}

func (s *Session) readLoop(t Transport) error {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			return err
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.observer.FrameRateLimited()
			continue
		}

		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		s.observer.MalformedFrame()
		s.logger.Debug("malformed frame", "error", err, "size", len(data))
		return
	}

	switch in.Kind {
	case protocol.KindPosition:
		if in.HasY {
			s.dir.UpdatePosition(s.playerID, in.Position)
		} else {
			s.dir.UpdatePlane(s.playerID, in.Position.X, in.Position.Z)
		}

	case protocol.KindAudio:
		s.dir.Touch(s.playerID)
		if _, err := s.router.Route(s.playerID, in.Audio, s.params); err != nil {
			if errors.Is(err, router.ErrUnknownSender) {
				s.logger.Debug("audio from unregistered player dropped")
				return
			}
			s.logger.Warn("route audio", "error", err)
		}
	}
}

func (s *Session) writePump(t Transport) {
	for {
		frame, ok := s.outbox.Receive()
		if !ok {
			return
		}
		if err := t.WriteMessage(frame.Data); err != nil {
			s.Close(err)
			return
		}
	}
}

func (s *Session) pingLoop(ctx context.Context, t Transport) {
	if s.cfg.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := t.Ping(); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
				s.Close(err)
				return
			}
		}
	}
}

func (s *Session) record(kind model.PresenceKind, reason string, d time.Duration) {
	if s.sink == nil {
		return
	}
	s.sink.Record(model.PresenceEvent{
		SessionID:  s.id,
		PlayerID:   s.playerID,
		Kind:       kind,
		RemoteAddr: s.remoteAddr,
		Reason:     reason,
		At:         time.Now(),
		Duration:   d,
	})
}

func (s *Session) reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

// reasonText renders a close reason for logs and presence events.
func reasonText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, io.EOF),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "peer closed"
	case errors.Is(err, context.Canceled):
		return "shutdown"
	default:
		return err.Error()
	}
}
