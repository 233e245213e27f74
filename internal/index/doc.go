// Package index buffers reverse word index postings received from other
// peers and flushes them to storage in batches.
//
// The buffer occupancy drives the backpressure of the postings transfer
// endpoint: the fuller the buffer, the longer senders are asked to pause.
package index
