// Package sweeper evicts players that have gone quiet.
//
// It is an optional liveness policy layered on the registry: every interval
// it removes players whose LastSeen is older than the idle timeout by asking
// their sessions to close. With a zero timeout the relay never expires
// players on its own.
package sweeper
