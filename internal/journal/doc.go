// Package journal writes presence events to PostgreSQL.
//
// Events are queued without blocking the caller, batched, and inserted with
// pgx.Batch into the append-only presence_events table. A full queue drops
// events; live relay state never depends on the journal.
package journal
