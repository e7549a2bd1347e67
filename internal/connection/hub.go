package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/protocol"
	"github.com/rickgao/proximity-voice/internal/registry"
	"github.com/rickgao/proximity-voice/internal/router"
)

// Hub accepts player connections, owns their sessions and keeps every
// player's roster current.
type Hub struct {
	cfg      HubConfig
	registry *registry.Registry
	router   *router.Router
	observer Observer
	sink     PresenceSink
	logger   *slog.Logger

	upgrader  websocket.Upgrader
	debounced func(func())

	// Start of the current unbroadcast burst, zero when none is pending.
	rosterMu     sync.Mutex
	pendingSince time.Time

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	started  bool
	closing  bool

	statsMu sync.Mutex
	stats   HubStats
}

// NewHub creates a hub around an existing registry and router.
// observer and sink may be nil.
func NewHub(cfg HubConfig, reg *registry.Registry, rt *router.Router, observer Observer, sink PresenceSink, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		cfg:      cfg,
		registry: reg,
		router:   rt,
		observer: observer,
		sink:     sink,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		sessions: make(map[uuid.UUID]*Session),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if !cfg.CheckOrigin {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if cfg.RosterDebounce > 0 {
		h.debounced = debounce.New(cfg.RosterDebounce)
	}

	return h
}

// Start begins consuming registry changes.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	h.wg.Add(1)
	go h.changeLoop(ctx)

	h.logger.Info("hub started",
		"roster_debounce", h.cfg.RosterDebounce,
		"roster_interval", h.cfg.RosterInterval,
		"outbox_size", h.cfg.Session.OutboxSize,
	)
	return nil
}

// Stop closes every session and waits for their goroutines.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	close(h.stopCh)
	h.cancel()
	for _, s := range sessions {
		s.Close(ErrShuttingDown)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub stopped", "sessions_closed", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP performs the player handshake and runs the session until it ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	nick := strings.TrimSpace(r.URL.Query().Get("nick"))
	if nick == "" {
		h.reject(nick, r.RemoteAddr, "missing_nick", ErrNickRequired)
		http.Error(w, "Nick required", http.StatusBadRequest)
		return
	}

	if h.isClosing() {
		h.reject(nick, r.RemoteAddr, "shutting_down", ErrShuttingDown)
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}

	sess := newSession(nick, r.RemoteAddr, h.cfg.Session, sessionDeps{
		dir:      h.registry,
		router:   h.router,
		params:   h.router.DefaultParams(),
		observer: h.observer,
		sink:     h.sink,
	}, h.logger)

	// Reserve the id before upgrading so a duplicate never reaches the socket.
	handle, err := h.registry.Connect(nick, sess)
	if err != nil {
		sess.Close(err)
		if errors.Is(err, registry.ErrDuplicateID) {
			h.reject(nick, r.RemoteAddr, "duplicate_id", err)
			http.Error(w, "Nick already connected", http.StatusConflict)
			return
		}
		h.reject(nick, r.RemoteAddr, "invalid_id", err)
		http.Error(w, "Invalid nick", http.StatusBadRequest)
		return
	}
	sess.setHandle(handle)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("upgrade failed", "player", nick, "error", err)
		sess.Close(err)
		return
	}

	if !sess.attach(newWSTransport(conn, h.cfg.Session)) {
		return
	}
	if !h.track(sess) {
		sess.Close(ErrShuttingDown)
		return
	}
	defer h.untrack(sess)

	sess.Run(h.ctx)
}

// UpdatePosition sets a player's position from outside a session.
// Unknown ids are ignored.
func (h *Hub) UpdatePosition(id string, pos model.Position) bool {
	return h.registry.UpdatePosition(id, pos)
}

// UpdatePlane sets a player's x and z, keeping its height.
func (h *Hub) UpdatePlane(id string, x, z float64) bool {
	return h.registry.UpdatePlane(id, x, z)
}

// Kick closes a player's session.
func (h *Hub) Kick(id string, reason error) bool {
	return h.registry.Evict(id, reason)
}

// Registry returns the player registry.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// BroadcastRoster sends the current roster to every registered player and
// returns how many accepted it.
func (h *Hub) BroadcastRoster() int {
	snap := h.registry.Snapshot()
	data, err := protocol.EncodeRoster(snap)
	if err != nil {
		h.logger.Error("encode roster", "error", err)
		return 0
	}
	frame := protocol.Frame{Kind: protocol.FrameRoster, Data: data}

	sent := 0
	for _, peer := range h.registry.Peers("") {
		if peer.Recipient == nil {
			continue
		}
		if err := peer.Recipient.Deliver(frame); err != nil {
			h.logger.Debug("roster delivery failed", "player", peer.ID, "error", err)
			continue
		}
		sent++
	}

	h.observer.RosterBroadcast()
	h.statsMu.Lock()
	h.stats.RosterBroadcasts++
	h.statsMu.Unlock()

	h.logger.Debug("roster broadcast", "players", snap.Len(), "version", snap.Version, "sent", sent)
	return sent
}

// Stats returns current statistics.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	active := len(h.sessions)
	h.mu.Unlock()

	h.statsMu.Lock()
	stats := h.stats
	h.statsMu.Unlock()

	stats.ActiveSessions = active
	stats.Players = h.registry.Len()
	stats.Router = h.router.Stats()
	return stats
}

func (h *Hub) changeLoop(ctx context.Context) {
	defer h.wg.Done()

	var tick <-chan time.Time
	if h.cfg.RosterInterval > 0 {
		ticker := time.NewTicker(h.cfg.RosterInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	changes := h.registry.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case change := <-changes:
			if change.Kind != registry.Moved {
				h.logger.Debug("registry change",
					"kind", change.Kind,
					"player", change.PlayerID,
					"version", change.Version,
				)
			}
			h.scheduleRoster()
		case <-tick:
			if h.registry.Len() > 0 {
				h.scheduleRoster()
			}
		}
	}
}

// scheduleRoster coalesces roster broadcasts. A burst is flushed once it has
// been quiet for the debounce window, or once it is a full window old, so
// continuous movement still produces one roster per window.
func (h *Hub) scheduleRoster() {
	if h.debounced == nil {
		h.BroadcastRoster()
		return
	}

	now := time.Now()
	h.rosterMu.Lock()
	if h.pendingSince.IsZero() {
		h.pendingSince = now
	}
	overdue := now.Sub(h.pendingSince) >= h.cfg.RosterDebounce
	if overdue {
		h.pendingSince = time.Time{}
	}
	h.rosterMu.Unlock()

	if overdue {
		h.BroadcastRoster()
		return
	}
	h.debounced(h.flushRoster)
}

func (h *Hub) flushRoster() {
	h.rosterMu.Lock()
	h.pendingSince = time.Time{}
	h.rosterMu.Unlock()
	h.BroadcastRoster()
}

func (h *Hub) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s.ID()] = s
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *Hub) reject(nick, remote, reason string, err error) {
	h.observer.SessionRejected(reason)
	h.statsMu.Lock()
	h.stats.Rejected++
	h.statsMu.Unlock()

	h.logger.Info("handshake rejected", "player", nick, "remote", remote, "reason", reason)

	if h.sink != nil {
		h.sink.Record(model.PresenceEvent{
			SessionID:  uuid.New(),
			PlayerID:   nick,
			Kind:       model.PresenceRejected,
			RemoteAddr: remote,
			Reason:     err.Error(),
			At:         time.Now(),
		})
	}
}
