// Package router implements the Proximity Router and per-connection outboxes.
//
// The Proximity Router:
//   - Resolves the sender's position in the Player Registry
//   - Filters recipients once, server-side, by distance <= max distance
//   - Computes listener-relative gain and pan for each recipient
//   - Pushes one audio_chunk frame into each recipient's Outbox
//
// Outboxes are bounded. Audio that does not fit is dropped (newest first);
// roster frames coalesce into a single pending slot and are never dropped.
package router
