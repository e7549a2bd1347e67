package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/proximity-voice/internal/model"
)

func TestDecode_Position(t *testing.T) {
	in, err := Decode([]byte(`{"x": 1.5, "z": -3}`))
	require.NoError(t, err)

	assert.Equal(t, KindPosition, in.Kind)
	assert.Equal(t, model.Position{X: 1.5, Z: -3}, in.Position)
	assert.False(t, in.HasY)
}

func TestDecode_PositionWithHeight(t *testing.T) {
	in, err := Decode([]byte(`{"type": "position", "x": 0, "y": 64, "z": 0}`))
	require.NoError(t, err)

	assert.Equal(t, KindPosition, in.Kind)
	assert.Equal(t, 64.0, in.Position.Y)
	assert.True(t, in.HasY)
}

func TestDecode_Audio(t *testing.T) {
	payload := []byte{0x01, 0x02, 0xff}
	frame := `{"type": "audio_chunk", "audioData": "` + base64.StdEncoding.EncodeToString(payload) + `"}`

	in, err := Decode([]byte(frame))
	require.NoError(t, err)

	assert.Equal(t, KindAudio, in.Kind)
	assert.Equal(t, payload, in.Audio)
}

func TestDecode_Malformed(t *testing.T) {
	frames := map[string]string{
		"not json":         `{"x": 1`,
		"missing z":        `{"x": 1}`,
		"missing x":        `{"type": "position", "z": 1}`,
		"string coord":     `{"x": "1", "z": 2}`,
		"empty audio":      `{"type": "audio_chunk", "audioData": ""}`,
		"bad base64":       `{"type": "audio_chunk", "audioData": "%%%"}`,
		"unknown type":     `{"type": "chat", "text": "hi"}`,
		"array":            `[1, 2]`,
		"audio not string": `{"type": "audio_chunk", "audioData": 12}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncodeRoster(t *testing.T) {
	takenAt := time.UnixMilli(1705328200123)
	data, err := EncodeRoster(model.Snapshot{
		Players: []model.PlayerState{
			{ID: "alice", Position: model.Position{X: 1, Y: 64, Z: 2}},
			{ID: "bob", Position: model.Position{X: -4, Y: 64, Z: 9.5}},
		},
		TakenAt: takenAt,
	})
	require.NoError(t, err)

	var got RosterSnapshot
	require.NoError(t, json.Unmarshal(data, &got))

	want := RosterSnapshot{
		Type: "players_update",
		Players: []RosterEntry{
			{Nick: "alice", X: 1, Y: 64, Z: 2},
			{Nick: "bob", X: -4, Y: 64, Z: 9.5},
		},
		Timestamp: 1705328200123,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("roster mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeRoster_EmptyIsArray(t *testing.T) {
	data, err := EncodeRoster(model.Snapshot{})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"players":[]`)
}

func TestEncodeAudioRelay_WireNames(t *testing.T) {
	data, err := EncodeAudioRelay(AudioRelay{
		PlayerNick: "alice",
		AudioData:  []byte("pcm"),
		X:          3,
		Z:          4,
		Gain:       0.25,
		Pan:        -1,
		Distance:   10,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "audio_chunk", raw["type"])
	assert.Equal(t, "alice", raw["playerNick"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pcm")), raw["audioData"])
	assert.Equal(t, 3.0, raw["x"])
	assert.Equal(t, 4.0, raw["z"])
	assert.Equal(t, 0.25, raw["gain"])
	assert.Equal(t, -1.0, raw["pan"])
}

func TestPeerFrames_DecodeOnRelay(t *testing.T) {
	pos, err := EncodePosition(model.Position{X: 2, Y: 64, Z: -1})
	require.NoError(t, err)

	in, err := Decode(pos)
	require.NoError(t, err)
	assert.Equal(t, model.Position{X: 2, Y: 64, Z: -1}, in.Position)

	chunk, err := EncodeAudioChunk([]byte{9, 8, 7})
	require.NoError(t, err)

	in, err = Decode(chunk)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, in.Audio)
}

func TestDecodeOutbound(t *testing.T) {
	relay, err := EncodeAudioRelay(AudioRelay{PlayerNick: "bob", AudioData: []byte{1}, Gain: 0.5})
	require.NoError(t, err)

	out, err := DecodeOutbound(relay)
	require.NoError(t, err)
	require.NotNil(t, out.Audio)
	assert.Equal(t, "bob", out.Audio.PlayerNick)
	assert.Nil(t, out.Roster)

	roster, err := EncodeRoster(model.Snapshot{Players: []model.PlayerState{{ID: "bob"}}})
	require.NoError(t, err)

	out, err = DecodeOutbound(roster)
	require.NoError(t, err)
	require.NotNil(t, out.Roster)
	assert.Len(t, out.Roster.Players, 1)

	_, err = DecodeOutbound([]byte(`{"type":"nope"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
