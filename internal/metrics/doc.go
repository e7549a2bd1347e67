// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Active sessions and rejected handshakes
//   - Audio packets routed, frames delivered and dropped per reason
//   - Delivery failures and unknown-sender packets
//   - Malformed and rate-limited inbound frames
//   - Roster broadcasts
package metrics
