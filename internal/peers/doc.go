// Package peers keeps the set of known peers and runs the handshake that
// verifies a caller's reachability.
//
// The Directory is an explicit service: it is constructed once at startup and
// handed to every endpoint that needs it. Entries are sharded by an xxhash of
// the peer position, each shard guarded by its own lock, so concurrent
// upserts for different peers never contend on a global lock.
//
// A peer's class is only raised by the verification path (UpsertVerified).
// Anything a peer says about itself is recorded as DeclaredClass and used for
// information only.
package peers
