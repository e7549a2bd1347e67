// Package database provides the PostgreSQL connection pool for the presence journal.
//
// The relay keeps all live state in memory. The database only receives an
// append-only audit trail of connects, disconnects and rejected handshakes.
package database
