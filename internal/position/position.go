package position

import (
	"crypto/md5" //nolint:gosec // Positions must stay compatible with the md5-based address space.
	"encoding/base64"
	"strings"
)

// Position lengths.
const (
	// URLLength is the length of a URL or word position.
	URLLength = 12
	// HostLength is the length of a host (and peer) position.
	HostLength = 6

	localityIndex = 5
	globalStart   = 6
	flagIndex     = URLLength - 1
)

// Flag byte layout.
const (
	flagNonHTTP      = 32
	flagDomainShift  = 2
	flagDomainMask   = 28
	flagLengthMask   = 3
	cardinalChars    = 10
	cardinalBits     = cardinalChars * 6
	cardinalRingMask = uint64(1)<<cardinalBits - 1
)

// alphabet is the URL-safe base64 alphabet. Its order defines the ordering of
// positions on the ring.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

var coder = base64.RawURLEncoding

// Position is an immutable identifier in the shared address space.
// It is either a 12-character URL/word position or a 6-character host position.
type Position string

// String returns the position as a string.
func (p Position) String() string {
	return string(p)
}

// Valid reports whether p has a known length and only alphabet characters.
func (p Position) Valid() bool {
	if len(p) != URLLength && len(p) != HostLength {
		return false
	}
	for i := 0; i < len(p); i++ {
		if _, ok := decodeChar(p[i]); !ok {
			return false
		}
	}
	return true
}

// IsURL reports whether p is a full 12-character position.
func (p Position) IsURL() bool {
	return len(p) == URLLength && p.Valid()
}

// IsHost reports whether p is a 6-character host position.
func (p Position) IsHost() bool {
	return len(p) == HostLength && p.Valid()
}

// HostPart returns the host position embedded in a URL position.
// For a host position it returns p itself. Invalid input yields "".
func (p Position) HostPart() Position {
	switch {
	case p.IsURL():
		return p[globalStart:]
	case p.IsHost():
		return p
	default:
		return ""
	}
}

// Flag returns the decoded flag byte, or 0 when p is invalid.
func (p Position) Flag() byte {
	if !p.Valid() {
		return 0
	}
	b, _ := decodeChar(p[len(p)-1])
	return b
}

// IsHTTP reports whether the position was derived from an http URL.
func (p Position) IsHTTP() bool {
	return p.Valid() && p.Flag()&flagNonHTTP == 0
}

// DomainID returns the embedded domain classification id (0..7).
func (p Position) DomainID() int {
	return int(p.Flag()&flagDomainMask) >> flagDomainShift
}

// DomainLengthKey returns the embedded domain length bucket (0..3).
func (p Position) DomainLengthKey() int {
	return int(p.Flag() & flagLengthMask)
}

// DomainLengthEstimate estimates the length of the registrable domain label.
func (p Position) DomainLengthEstimate() int {
	switch p.DomainLengthKey() {
	case 0:
		return 4
	case 1:
		return 10
	case 2:
		return 14
	default:
		return 20
	}
}

// ProbablyRootURL reports whether the locality char matches a host root page
// ("http://host/" or "http://www.host/").
func (p Position) ProbablyRootURL() bool {
	if !p.IsURL() {
		return false
	}
	c := p[localityIndex]
	return c == rootFlag0 || c == rootFlag1
}

// IsLocalClassification reports whether the embedded domain id is the reserved
// local network id.
func IsLocalClassification(p Position) bool {
	return p.Valid() && p.DomainID() == DomainLocal
}

// Distance returns the clockwise ring distance from a to b.
// The ring is spanned by the 60-bit cardinal of the first ten characters;
// shorter positions are padded with the zero character.
func Distance(a, b Position) uint64 {
	ca := cardinal(a)
	cb := cardinal(b)
	return (cb - ca) & cardinalRingMask
}

// cardinal maps a position onto the ring. Characters outside the alphabet
// count as zero; callers validate positions before relying on distances.
func cardinal(p Position) uint64 {
	var c uint64
	for i := 0; i < cardinalChars; i++ {
		var v byte
		if i < len(p) {
			v, _ = decodeChar(p[i])
		}
		c = c<<6 | uint64(v)
	}
	return c
}

func decodeChar(c byte) (byte, bool) {
	i := strings.IndexByte(alphabet, c)
	if i < 0 {
		return 0, false
	}
	return byte(i), true
}

func encodeChar(b byte) byte {
	return alphabet[b&0x3f]
}

// digest returns the base64 form of the md5 digest of s.
func digest(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // Not used for security.
	return coder.EncodeToString(sum[:])
}

func flagByte(isHTTP bool, domainID, lengthKey int) byte {
	var f byte
	if !isHTTP {
		f |= flagNonHTTP
	}
	f |= byte(domainID<<flagDomainShift) & flagDomainMask
	f |= byte(lengthKey) & flagLengthMask
	return f
}
