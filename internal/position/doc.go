// Package position computes identifiers in the shared address space used by
// peers to split crawl and index responsibility.
//
// A URL position has twelve characters from the URL-safe base64 alphabet:
//
//	LLLLL X GGGGG F
//
//	L: local part, digest of the normalized URL
//	X: locality char, digest of subdomain, port and first path segment
//	G: global part, digest of protocol, host and port
//	F: flag char (non-http bit, domain classification id, domain length bucket)
//
// A host position is the trailing six characters (GGGGG F) and is also used as
// peer identity. Because of that layout, all URLs of one host share the same
// six-character suffix, which is what makes domain-level selections cheap.
//
// Everything in this package is deterministic and free of I/O. In particular,
// local network classification is done on the host name and literal IP only,
// never by resolving names.
package position
