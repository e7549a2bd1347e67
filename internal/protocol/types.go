package protocol

import (
	"errors"

	"github.com/rickgao/proximity-voice/internal/model"
)

// Frame type identifiers.
const (
	TypeAudioChunk    = "audio_chunk"
	TypePosition      = "position"
	TypePlayersUpdate = "players_update"
)

// ErrMalformedFrame wraps every inbound decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// InboundKind identifies a decoded inbound frame.
type InboundKind int

const (
	KindPosition InboundKind = iota + 1
	KindAudio
)

func (k InboundKind) String() string {
	switch k {
	case KindPosition:
		return "position"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Inbound is a decoded player frame. Exactly one of Position or Audio is meaningful,
// selected by Kind.
type Inbound struct {
	Kind     InboundKind
	Position model.Position
	HasY     bool // Y was present on the wire
	Audio    []byte
}

// Wire types for JSON parsing

// inboundWire covers both inbound frame shapes.
// Pointers distinguish missing coordinates from zero.
type inboundWire struct {
	Type      string   `json:"type"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
	AudioData []byte   `json:"audioData"` // base64 on the wire
}

// RosterEntry is one player in a players_update frame.
type RosterEntry struct {
	Nick string  `json:"nick"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// RosterSnapshot is the players_update frame.
type RosterSnapshot struct {
	Type      string        `json:"type"`
	Players   []RosterEntry `json:"players"`
	Timestamp int64         `json:"timestamp"` // Unix milliseconds
}

// AudioRelay is an audio_chunk frame delivered to a listener.
// X and Z are the speaker's position so the listener can recompute gain and pan;
// Gain, Pan and Distance are the relay's own listener-relative values.
type AudioRelay struct {
	Type       string  `json:"type"`
	PlayerNick string  `json:"playerNick"`
	AudioData  []byte  `json:"audioData"`
	X          float64 `json:"x"`
	Z          float64 `json:"z"`
	Gain       float64 `json:"gain"`
	Pan        float64 `json:"pan"`
	Distance   float64 `json:"distance"`
}

// PositionFrame is the outbound form of a position update, used by peers.
type PositionFrame struct {
	Type string   `json:"type,omitempty"`
	X    float64  `json:"x"`
	Y    *float64 `json:"y,omitempty"`
	Z    float64  `json:"z"`
}

// AudioChunk is the outbound form of an audio chunk, used by peers.
type AudioChunk struct {
	Type      string `json:"type"`
	AudioData []byte `json:"audioData"`
}

// Outbound is a decoded relay frame, as seen by a peer.
type Outbound struct {
	Type   string
	Roster *RosterSnapshot
	Audio  *AudioRelay
}

// messageEnvelope is used for fast type extraction.
type messageEnvelope struct {
	Type string `json:"type"`
}

// FrameKind classifies an outbound frame for queueing.
type FrameKind int

const (
	FrameRoster FrameKind = iota + 1
	FrameAudio
)

// Frame is an encoded outbound frame addressed to one player.
type Frame struct {
	Kind     FrameKind
	SenderID string // Speaker for audio frames, empty for roster
	Data     []byte // Encoded JSON
}
