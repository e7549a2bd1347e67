// Package protocol defines the JSON frames exchanged with players.
//
// Inbound (player → relay):
//   - position update: {"x": 1.5, "z": -3}, optional "y" and "type":"position"
//   - audio chunk:     {"type": "audio_chunk", "audioData": "<base64>"}
//
// Outbound (relay → player):
//   - roster:          {"type": "players_update", "players": [...], "timestamp": ms}
//   - relayed audio:   {"type": "audio_chunk", "playerNick": ..., "audioData": ..., "x", "z", "gain", "pan"}
package protocol
