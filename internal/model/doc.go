// Package model defines shared data types used across the proximity voice relay.
//
// Conventions:
//   - Coordinates: float64 world units; distance and pan use the horizontal
//     (x, z) plane only, y is carried for display
//   - Player IDs: the nickname supplied at connect time, used as routing key
//   - Session IDs: uuid.UUID, one per accepted connection
package model
