package transport

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// OnionSuffix is the suffix of hidden-service host names.
const OnionSuffix = ".onion"

const onionV3Version = 0x03

// onionV3Pattern matches v3 onion addresses (56 base32 characters + .onion).
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the prefix of the v3 address checksum input.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is a hidden-service name.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), OnionSuffix)
}

// IsValidV3Address checks format and checksum of a v3 onion address.
// The address must include the ".onion" suffix.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns the first 2 bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}
