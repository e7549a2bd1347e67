package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Spatial Types
// -----------------------------------------------------------------------------

// Position is a point in world space.
type Position struct {
	X float64 // East/west
	Y float64 // Height (ignored by distance and pan)
	Z float64 // North/south
}

// PlayerState is a point-in-time copy of one connected player.
type PlayerState struct {
	ID          string    // Routing key (nickname)
	Position    Position  // Last known position
	LastSeen    time.Time // Last position update (or connect time)
	ConnectedAt time.Time // When the registry accepted the player
}

// Snapshot is an immutable, ordered copy of the roster.
// Players are sorted by ID.
type Snapshot struct {
	Players []PlayerState
	Version uint64    // Registry mutation counter at the time of the copy
	TakenAt time.Time // Wall clock when the copy was made
}

// Len returns the number of players in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Players)
}

// -----------------------------------------------------------------------------
// Transient Types
// -----------------------------------------------------------------------------

// AudioPacket is one opaque audio payload tagged with its sender.
// It lives only for the duration of a routing decision.
type AudioPacket struct {
	SenderID       string
	Payload        []byte
	SenderPosition Position
	ReceivedAt     time.Time
}

// PresenceKind classifies a presence event.
type PresenceKind string

const (
	PresenceConnect    PresenceKind = "connect"
	PresenceDisconnect PresenceKind = "disconnect"
	PresenceRejected   PresenceKind = "rejected"
)

// PresenceEvent records a session lifecycle transition for the journal.
type PresenceEvent struct {
	SessionID  uuid.UUID
	PlayerID   string
	Kind       PresenceKind
	RemoteAddr string
	Reason     string        // Close or rejection reason, empty on connect
	At         time.Time     // When the transition happened
	Duration   time.Duration // Session lifetime (disconnect only)
}
