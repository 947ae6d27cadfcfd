// Package archive provides an append-only SQLite transcript ledger.
// Turns are written after they commit and never read back into live
// sessions; the ledger only serves the transcript endpoint.
package archive
