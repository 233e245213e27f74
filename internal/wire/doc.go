// Package wire implements the text formats spoken between peers.
//
// Requests arrive as HTTP form fields and responses are written as
// "key=value" lines with a text/plain content type. Binary or sensitive
// values travel through the transmission codec, which prefixes every encoded
// value with its method:
//
//	p|  plain text
//	b|  URL-safe base64
//	z|  gzip, then URL-safe base64
//	c|  XChaCha20-Poly1305 sealed with the per-exchange transmission key
//
// Peer descriptors and metadata entries are property lists of the form
// "{key=value,key=value}". Values that may contain separators are run
// through the codec first.
package wire
