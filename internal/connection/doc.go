// Package connection implements player sessions and the connection hub.
//
// The hub:
//   - Validates the handshake (nick required, duplicates refused) before upgrading
//   - Registers each player and runs one Session per connection
//   - Broadcasts the roster to every player on join and leave, coalescing bursts
//   - Closes every session on shutdown
//
// A Session reads position and audio frames, forwards positions to the
// registry and audio to the proximity router, and drains its outbox to the
// peer. Client is the player side of the same protocol.
package connection
