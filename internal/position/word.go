package position

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// WordHash returns the 12-character position of a word.
// Words are trimmed, composed to NFC and case folded first, so "Peer" and
// "PEER" share a position.
func WordHash(word string) (Position, error) {
	w := strings.TrimSpace(word)
	if w == "" {
		return "", ErrMalformedIdentity
	}
	w = cases.Fold().String(norm.NFC.String(w))
	return Position(digest(w)[:URLLength]), nil
}
