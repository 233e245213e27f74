// Package protocol implements the peer-to-peer endpoints of a node: the
// handshake, crawl delegation with its receipt, bulk transfer of postings
// and URL metadata, the reachability query, and single-use transfer
// permissions.
//
// Every endpoint has a typed request and response. Conversion to the
// key=value wire form happens only at the boundary (see the wire package).
// Each handler first runs an ordered admission gate; the first denying rule
// determines the outcome and no collaborator is touched before the gate has
// admitted the request.
//
// Handlers never return raw errors to remote callers. Collaborator failures
// are logged and translated into a recognized outcome with a retry delay.
//
// Storage, queues and policy are reached through the small interfaces in
// collaborators.go, so endpoints can be tested with in-memory fakes.
package protocol
