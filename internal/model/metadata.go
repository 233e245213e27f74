package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// MetadataEntry describes one crawled URL as stored in the index segment.
type MetadataEntry struct {
	// Hash is the URL position. It is recomputed from URL when parsing and
	// never trusted from the sender.
	Hash position.Position `json:"hash"`

	URL   string `json:"url"`
	Title string `json:"title,omitempty"`

	// Referrer is the position of the page that linked to URL, if known.
	Referrer position.Position `json:"referrer,omitempty"`

	ModDate  time.Time `json:"mod_date"`
	LoadDate time.Time `json:"load_date"`

	Size      int64  `json:"size"`
	WordCount int    `json:"word_count"`
	Language  string `json:"language,omitempty"`
}

// Encode renders the entry as a property list. Free-text values are base64
// encoded so the list stays parseable.
func (m MetadataEntry) Encode() string {
	t := wire.NewTable()
	t.Set("hash", m.Hash.String())
	t.Set("url", wire.MustEncodeString(wire.MethodBase64, m.URL))
	t.Set("descr", wire.MustEncodeString(wire.MethodBase64, m.Title))
	t.Set("referrer", m.Referrer.String())
	t.Set("mod", formatDate(m.ModDate))
	t.Set("load", formatDate(m.LoadDate))
	t.Set("size", strconv.FormatInt(m.Size, 10))
	t.Set("wc", strconv.Itoa(m.WordCount))
	t.Set("lang", m.Language)
	return wire.FormatProperties(t)
}

// ParseMetadataEntry parses an encoded entry. The URL is normalized and the
// hash recomputed; an entry without a parseable URL is rejected.
func ParseMetadataEntry(s string) (MetadataEntry, error) {
	t, err := wire.ParseProperties(s)
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	raw, err := wire.DecodeString(t.Get("url"), "")
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("%w: url: %v", ErrInvalidMetadata, err)
	}
	if raw == "" {
		return MetadataEntry{}, fmt.Errorf("%w: missing url", ErrInvalidMetadata)
	}
	u, err := position.ParseURL(raw)
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	title, err := wire.DecodeString(t.Get("descr"), "")
	if err != nil {
		return MetadataEntry{}, fmt.Errorf("%w: title: %v", ErrInvalidMetadata, err)
	}

	m := MetadataEntry{
		Hash:     u.Position(),
		URL:      u.String(),
		Title:    title,
		ModDate:  parseDate(t.Get("mod")),
		LoadDate: parseDate(t.Get("load")),
		Language: t.Get("lang"),
	}
	if ref := position.Position(t.Get("referrer")); ref.IsURL() {
		m.Referrer = ref
	}
	if n, err := strconv.ParseInt(t.Get("size"), 10, 64); err == nil && n >= 0 {
		m.Size = n
	}
	if n, err := strconv.Atoi(t.Get("wc")); err == nil && n >= 0 {
		m.WordCount = n
	}
	return m, nil
}

// NewMetadataEntry builds an entry for a URL that has just been loaded.
func NewMetadataEntry(u *position.URL, title string, loaded time.Time) MetadataEntry {
	return MetadataEntry{
		Hash:     u.Position(),
		URL:      u.String(),
		Title:    title,
		LoadDate: loaded.UTC(),
	}
}

const dateLayout = "20060102"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
