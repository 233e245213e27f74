package policy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CategoryAll applies a pattern to every category.
const CategoryAll = "all"

// entry is one host/path pattern.
type entry struct {
	host string
	path string
}

// Blacklist holds blocked host/path patterns per category.
// It is safe for concurrent use.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string][]entry
}

// NewBlacklist returns an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string][]entry)}
}

// Add blocks pattern in category. A pattern is "host" or "host/path", where
// host may start with "*." and path may contain globs.
func (b *Blacklist) Add(category, pattern string) error {
	e, err := parseEntry(pattern)
	if err != nil {
		return err
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = CategoryAll
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[category] = append(b.entries[category], e)
	return nil
}

func parseEntry(pattern string) (entry, error) {
	pattern = strings.TrimSpace(pattern)
	host, p, found := strings.Cut(pattern, "/")
	if host == "" {
		return entry{}, fmt.Errorf("%w: %q has no host", ErrInvalidPattern, pattern)
	}
	if !found || p == "" {
		p = "*"
	} else {
		p = "/" + p
	}
	return entry{host: strings.ToLower(host), path: p}, nil
}

// IsBlocked reports whether host and path match a pattern of category or of
// CategoryAll.
func (b *Blacklist) IsBlocked(category, host, path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range []string{category, CategoryAll} {
		for _, e := range b.entries[c] {
			if MatchHost(e.host, host) && MatchPath(e.path, path) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of patterns.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, es := range b.entries {
		n += len(es)
	}
	return n
}

// ParseBlacklist reads a YAML document mapping categories to pattern lists:
//
//	dht:
//	  - "*.spam.example"
//	crawler:
//	  - "ads.example.com/track/*"
func ParseBlacklist(r io.Reader) (*Blacklist, error) {
	var doc map[string][]string
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse blacklist: %w", err)
	}
	b := NewBlacklist()
	for category, patterns := range doc {
		for _, p := range patterns {
			if err := b.Add(category, p); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// LoadBlacklist reads a blacklist file. A missing file yields an empty
// blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the node configuration
	if err != nil {
		if os.IsNotExist(err) {
			return NewBlacklist(), nil
		}
		return nil, fmt.Errorf("failed to open blacklist: %w", err)
	}
	defer f.Close()
	return ParseBlacklist(f)
}
