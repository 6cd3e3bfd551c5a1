// Package storage is the persistence layer behind the bot.
//
// It owns four record kinds:
//   - users (created on first contact, never deleted)
//   - postings (immutable moderation outcomes)
//   - log entries (append-only audit trail)
//   - broadcast runs (bulk-send bookkeeping)
//
// All operations are atomic at the single-record level; the core never needs
// cross-record transactions.
package storage
