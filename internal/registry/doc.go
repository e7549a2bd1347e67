// Package registry implements the Player Registry component.
//
// The Player Registry:
//   - Is the single source of truth for who is online and where they are
//   - Rejects a second connect for an id that is already registered
//   - Hands out consistent, ordered snapshots for roster frames and routing
//   - Emits a Change for every connect and disconnect so the roster can be rebroadcast
//
// All state sits behind one RWMutex; expected player counts are in the tens.
package registry
