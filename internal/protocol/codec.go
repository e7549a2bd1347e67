package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/proximity-voice/internal/model"
)

// Decode parses an inbound player frame.
// Every failure wraps ErrMalformedFrame.
func Decode(data []byte) (Inbound, error) {
	var wire inboundWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch wire.Type {
	case TypeAudioChunk:
		if len(wire.AudioData) == 0 {
			return Inbound{}, fmt.Errorf("%w: empty audioData", ErrMalformedFrame)
		}
		return Inbound{Kind: KindAudio, Audio: wire.AudioData}, nil

	case "", TypePosition:
		if wire.X == nil || wire.Z == nil {
			return Inbound{}, fmt.Errorf("%w: position requires x and z", ErrMalformedFrame)
		}
		pos := model.Position{X: *wire.X, Z: *wire.Z}
		if wire.Y != nil {
			pos.Y = *wire.Y
		}
		return Inbound{Kind: KindPosition, Position: pos, HasY: wire.Y != nil}, nil

	default:
		return Inbound{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, wire.Type)
	}
}

// EncodeRoster builds a players_update frame from a registry snapshot.
func EncodeRoster(s model.Snapshot) ([]byte, error) {
	players := make([]RosterEntry, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, RosterEntry{
			Nick: p.ID,
			X:    p.Position.X,
			Y:    p.Position.Y,
			Z:    p.Position.Z,
		})
	}

	takenAt := s.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	return json.Marshal(RosterSnapshot{
		Type:      TypePlayersUpdate,
		Players:   players,
		Timestamp: takenAt.UnixMilli(),
	})
}

// EncodeAudioRelay builds an audio_chunk frame for one listener.
func EncodeAudioRelay(relay AudioRelay) ([]byte, error) {
	relay.Type = TypeAudioChunk
	return json.Marshal(relay)
}

// EncodePosition builds an inbound position frame (peer side).
func EncodePosition(pos model.Position) ([]byte, error) {
	y := pos.Y
	return json.Marshal(PositionFrame{Type: TypePosition, X: pos.X, Y: &y, Z: pos.Z})
}

// EncodeAudioChunk builds an inbound audio frame (peer side).
func EncodeAudioChunk(payload []byte) ([]byte, error) {
	return json.Marshal(AudioChunk{Type: TypeAudioChunk, AudioData: payload})
}

// DecodeOutbound parses a relay frame (peer side).
func DecodeOutbound(data []byte) (Outbound, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypePlayersUpdate:
		var roster RosterSnapshot
		if err := json.Unmarshal(data, &roster); err != nil {
			return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Outbound{Type: env.Type, Roster: &roster}, nil

	case TypeAudioChunk:
		var relay AudioRelay
		if err := json.Unmarshal(data, &relay); err != nil {
			return Outbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return Outbound{Type: env.Type, Audio: &relay}, nil

	default:
		return Outbound{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, env.Type)
	}
}
