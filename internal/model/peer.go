package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// PeerClass is the capacity and trust tier of a peer.
// The order matters: a higher value means more trust.
type PeerClass int

const (
	// ClassJunior is a peer whose reachability has not been verified.
	ClassJunior PeerClass = iota

	// ClassSenior is a peer that answered a connect-back verification.
	ClassSenior

	// ClassPrincipal is a verified peer that declared elevated trust.
	ClassPrincipal
)

// String returns the wire name of the class.
func (c PeerClass) String() string {
	switch c {
	case ClassJunior:
		return "junior"
	case ClassSenior:
		return "senior"
	case ClassPrincipal:
		return "principal"
	default:
		return "junior"
	}
}

// MarshalText encodes the class by name.
func (c PeerClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name with the rules of ParsePeerClass.
func (c *PeerClass) UnmarshalText(b []byte) error {
	*c = ParsePeerClass(string(b))
	return nil
}

// AtLeast reports whether c is at least floor.
func (c PeerClass) AtLeast(floor PeerClass) bool {
	return c >= floor
}

// ParsePeerClass parses a wire class name. Unknown names, including the
// "virgin" state of peers that never joined, map to junior.
func ParsePeerClass(s string) PeerClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "senior":
		return ClassSenior
	case "principal":
		return ClassPrincipal
	default:
		return ClassJunior
	}
}

// TimeLayout is the UTC timestamp layout used in descriptors.
const TimeLayout = "20060102150405"

// Descriptor keys.
const (
	keyHash        = "Hash"
	keyName        = "Name"
	keyIP          = "IP"
	keyPort        = "Port"
	keyPeerType    = "PeerType"
	keyVersion     = "Version"
	keyLastSeen    = "LastSeen"
	keyCapacity    = "Capacity"
	keyCrawlAccept = "CrawlAccept"
	keyIndexAccept = "IndexAccept"
)

// Peer is a known node of the network.
type Peer struct {
	// Position is the host position of the peer's public address and its
	// identity in the directory.
	Position position.Position `json:"position"`

	// Name is a human-readable name chosen by the operator.
	Name string `json:"name"`

	// Host and Port form the address the peer can be reached at.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Class is the tier assigned by this node. It is only raised by a
	// successful verification.
	Class PeerClass `json:"class"`

	// DeclaredClass is what the peer reported about itself.
	DeclaredClass PeerClass `json:"declared_class"`

	// Capacity is the declared processing rate in pages per minute.
	Capacity int `json:"capacity"`

	// Version is the protocol version of the peer software.
	Version float64 `json:"version"`

	// LastSeen is the time of the last successful exchange.
	LastSeen time.Time `json:"last_seen"`

	AcceptRemoteCrawl bool `json:"accept_remote_crawl"`
	AcceptRemoteIndex bool `json:"accept_remote_index"`
}

// Address returns "host:port".
func (p Peer) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// BaseURL returns the http base URL of the peer.
func (p Peer) BaseURL() string {
	return "http://" + p.Address()
}

// Descriptor renders the peer as a "{Key=Value,...}" property list.
// The class written is the one this node assigned.
func (p Peer) Descriptor() string {
	t := wire.NewTable()
	t.Set(keyHash, p.Position.String())
	t.Set(keyName, wire.MustEncodeString(wire.MethodBase64, p.Name))
	t.Set(keyIP, p.Host)
	t.Set(keyPort, strconv.Itoa(p.Port))
	t.Set(keyPeerType, p.Class.String())
	t.Set(keyVersion, strconv.FormatFloat(p.Version, 'f', -1, 64))
	if !p.LastSeen.IsZero() {
		t.Set(keyLastSeen, p.LastSeen.UTC().Format(TimeLayout))
	}
	t.Set(keyCapacity, strconv.Itoa(p.Capacity))
	t.Set(keyCrawlAccept, strconv.FormatBool(p.AcceptRemoteCrawl))
	t.Set(keyIndexAccept, strconv.FormatBool(p.AcceptRemoteIndex))
	return wire.FormatProperties(t)
}

// ParseDescriptor parses a property list produced by Descriptor.
// The declared class is filled from the PeerType key; Class stays junior
// because a descriptor is a self-report.
func ParseDescriptor(s string) (Peer, error) {
	t, err := wire.ParseProperties(s)
	if err != nil {
		return Peer{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	pos := position.Position(t.Get(keyHash))
	if !pos.IsHost() {
		return Peer{}, fmt.Errorf("%w: bad hash %q", ErrInvalidDescriptor, t.Get(keyHash))
	}

	name, err := wire.DecodeString(t.Get(keyName), "")
	if err != nil {
		return Peer{}, fmt.Errorf("%w: name: %v", ErrInvalidDescriptor, err)
	}

	port, err := strconv.Atoi(t.Get(keyPort))
	if err != nil || port < 1 || port > 65535 {
		return Peer{}, fmt.Errorf("%w: bad port %q", ErrInvalidDescriptor, t.Get(keyPort))
	}

	p := Peer{
		Position:          pos,
		Name:              name,
		Host:              t.Get(keyIP),
		Port:              port,
		Class:             ClassJunior,
		DeclaredClass:     ParsePeerClass(t.Get(keyPeerType)),
		AcceptRemoteCrawl: t.Get(keyCrawlAccept) == "true",
		AcceptRemoteIndex: t.Get(keyIndexAccept) == "true",
	}
	if p.Host == "" {
		return Peer{}, fmt.Errorf("%w: missing address", ErrInvalidDescriptor)
	}
	if v, err := strconv.ParseFloat(t.Get(keyVersion), 64); err == nil {
		p.Version = v
	}
	if c, err := strconv.Atoi(t.Get(keyCapacity)); err == nil && c > 0 {
		p.Capacity = c
	}
	if ts, err := time.Parse(TimeLayout, t.Get(keyLastSeen)); err == nil {
		p.LastSeen = ts.UTC()
	}
	return p, nil
}
