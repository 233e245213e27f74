// Package model defines the data exchanged between peers.
//
// This package contains the following main types:
//   - Peer: a known node of the network, keyed by its host position
//   - MetadataEntry: the stored description of one crawled URL
//   - Posting: one reverse word index entry pointing at a URL
//   - ErrorEntry: a failed or refused crawl, kept for the error log
//
// Every type has a text form used on the wire (property lists built with the
// wire package) and JSON tags for reports.
package model
