package connection

import (
	"errors"
	"time"

	"github.com/rickgao/proximity-voice/internal/attenuation"
	"github.com/rickgao/proximity-voice/internal/model"
	"github.com/rickgao/proximity-voice/internal/registry"
	"github.com/rickgao/proximity-voice/internal/router"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNickRequired    = errors.New("nick required")
	ErrSessionClosed   = errors.New("session closed")
	ErrShuttingDown    = errors.New("hub shutting down")
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig configures a server-side session.
type SessionConfig struct {
	PingInterval time.Duration // How often the server pings the peer
	PongTimeout  time.Duration // Read deadline extended on every pong (0 = none)
	WriteTimeout time.Duration // Write deadline for sends
	ReadLimit    int64         // Max inbound frame size in bytes
	OutboxSize   int           // Audio frames queued per session
	RateLimit    float64       // Inbound frames per second (0 = unlimited)
	RateBurst    int           // Inbound burst allowance
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    256 * 1024,
		OutboxSize:   64,
		RateLimit:    100,
		RateBurst:    50,
	}
}

// HubConfig configures the Hub.
type HubConfig struct {
	Session        SessionConfig
	RosterDebounce time.Duration // Roster coalescing window (0 = broadcast on every change)
	RosterInterval time.Duration // Periodic full roster (0 = only on changes)
	CheckOrigin    bool          // Enforce same-origin on upgrade
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Session:        DefaultSessionConfig(),
		RosterDebounce: 50 * time.Millisecond,
		RosterInterval: 5 * time.Second,
	}
}

// HubStats provides statistics about the hub.
type HubStats struct {
	ActiveSessions   int
	Players          int
	RosterBroadcasts int64
	Rejected         int64
	Router           router.RouterStats
}

// Observer receives session and hub events, typically for metrics.
type Observer interface {
	SessionOpened()
	SessionClosed()
	SessionRejected(reason string)
	MalformedFrame()
	FrameRateLimited()
	RosterBroadcast()
}

// PresenceSink receives presence events. Record must not block.
type PresenceSink interface {
	Record(event model.PresenceEvent)
}

// Directory is the registry surface a session needs.
type Directory interface {
	UpdatePosition(id string, pos model.Position) bool
	UpdatePlane(id string, x, z float64) bool
	Touch(id string) bool
	Release(h registry.Handle) bool
}

// AudioRouter fans audio out to listeners.
type AudioRouter interface {
	Route(senderID string, payload []byte, p attenuation.Params) (router.Result, error)
}

// ClientConfig configures a peer-side client.
type ClientConfig struct {
	URL          string        // Relay endpoint (e.g., ws://localhost:8080/ws)
	Nick         string        // Player id sent as ?nick=
	PingInterval time.Duration // How often the client pings the relay
	PingTimeout  time.Duration // Max time without pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

type noopObserver struct{}

func (noopObserver) SessionOpened()         {}
func (noopObserver) SessionClosed()         {}
func (noopObserver) SessionRejected(string) {}
func (noopObserver) MalformedFrame()        {}
func (noopObserver) FrameRateLimited()      {}
func (noopObserver) RosterBroadcast()       {}
