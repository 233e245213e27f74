// Package client speaks the peer protocol to other nodes.
//
// A Client posts form-encoded requests to the command endpoints of a remote
// peer and parses the line-based answers. It is the outbound counterpart of
// package protocol and also serves as the connect-back prober of the
// handshake and as the receipt reporter of the crawl loader.
package client
