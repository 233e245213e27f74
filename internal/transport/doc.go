// Package transport provides outbound connectivity for peer-to-peer
// requests.
//
// Peers are reached directly by default. A SOCKS5 proxy can be configured
// for all traffic, and a separate one for peers that publish a .onion
// address. The onion route can be served by an embedded Tor daemon managed
// through tornago, so a node can reach hidden-service peers without an
// external Tor installation.
package transport
