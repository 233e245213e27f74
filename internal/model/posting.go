package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// Posting is one reverse word index entry: the word at WordHash occurs in
// the document at URLHash.
type Posting struct {
	WordHash position.Position `json:"word_hash"`
	URLHash  position.Position `json:"url_hash"`

	// HitCount is the number of occurrences of the word in the document.
	HitCount int `json:"hit_count"`

	// FirstPosition is the word index of the first occurrence.
	FirstPosition int `json:"first_position"`

	Language string `json:"language,omitempty"`

	// ModDays is the document modification date in days since the epoch.
	ModDays int `json:"mod_days"`
}

// Line renders the posting as a transfer line: the 12-character word hash
// followed by a property list.
func (p Posting) Line() string {
	t := wire.NewTable()
	t.Set("h", p.URLHash.String())
	t.Set("hc", strconv.Itoa(p.HitCount))
	t.Set("pos", strconv.Itoa(p.FirstPosition))
	t.Set("lang", p.Language)
	t.Set("mod", strconv.Itoa(p.ModDays))
	return p.WordHash.String() + wire.FormatProperties(t)
}

// ParsePostingLine parses a transfer line produced by Line.
func ParsePostingLine(line string) (Posting, error) {
	line = strings.TrimSpace(line)
	if len(line) <= position.URLLength {
		return Posting{}, fmt.Errorf("%w: line too short", ErrInvalidPosting)
	}

	word := position.Position(line[:position.URLLength])
	if !word.IsURL() {
		return Posting{}, fmt.Errorf("%w: bad word hash %q", ErrInvalidPosting, word)
	}

	t, err := wire.ParseProperties(line[position.URLLength:])
	if err != nil {
		return Posting{}, fmt.Errorf("%w: %v", ErrInvalidPosting, err)
	}

	urlHash := position.Position(t.Get("h"))
	if !urlHash.IsURL() {
		return Posting{}, fmt.Errorf("%w: bad url hash %q", ErrInvalidPosting, urlHash)
	}

	p := Posting{
		WordHash: word,
		URLHash:  urlHash,
		Language: t.Get("lang"),
	}
	p.HitCount = nonNegative(t.Get("hc"))
	p.FirstPosition = nonNegative(t.Get("pos"))
	p.ModDays = nonNegative(t.Get("mod"))
	return p, nil
}

func nonNegative(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
