// Package database provides SQLite-based storage for a peercrawl node.
//
// IndexDB stores:
//   - URL metadata entries (the local index segment)
//   - the crawl error log
//   - reverse word index postings flushed from the receive buffer
//   - the peer directory between restarts
//   - payloads received through the transfer endpoint
//
// SQLite is accessed through modernc.org/sqlite, which needs no cgo. Peer
// records are stored as CBOR blobs so new fields can be added without a
// schema migration.
package database
