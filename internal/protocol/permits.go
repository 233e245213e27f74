package protocol

import (
	"fmt"
	"time"

	cache "github.com/unkn0wn-root/kioshun"

	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// DefaultPermitTTL is how long an access code stays valid.
const DefaultPermitTTL = 10 * time.Minute

// maxPermits bounds the number of outstanding access codes.
const maxPermits = 4096

// permit is what an access code grants.
type permit struct {
	peer     position.Position
	purpose  string
	filename string
}

// Permits issues single-use access codes for payload transfers.
// A code is removed atomically on its first successful use.
type Permits struct {
	codes *cache.InMemoryCache[string, permit]
	ttl   time.Duration
}

// NewPermits creates a permit store whose codes expire after ttl.
func NewPermits(ttl time.Duration) *Permits {
	if ttl <= 0 {
		ttl = DefaultPermitTTL
	}
	return &Permits{
		codes: cache.New[string, permit](cache.Config{
			MaxSize:         maxPermits,
			ShardCount:      4,
			CleanupInterval: time.Minute,
			DefaultTTL:      ttl,
			EvictionPolicy:  cache.LRU,
		}),
		ttl: ttl,
	}
}

// Issue returns a fresh access code for peer.
func (p *Permits) Issue(peer position.Position, purpose, filename string) (string, error) {
	code := wire.NewKey()
	if err := p.codes.Set(code, permit{peer: peer, purpose: purpose, filename: filename}, p.ttl); err != nil {
		return "", fmt.Errorf("failed to store permit: %w", err)
	}
	return code, nil
}

// Consume validates code for peer and removes it. Of two concurrent calls
// with the same code at most one succeeds.
func (p *Permits) Consume(code string, peer position.Position) (purpose, filename string, err error) {
	granted, ok := p.codes.Get(code)
	if !ok {
		return "", "", ErrPermitNotFound
	}
	if granted.peer != peer {
		return "", "", ErrPermitMismatch
	}
	if !p.codes.Delete(code) {
		return "", "", ErrPermitNotFound
	}
	return granted.purpose, granted.filename, nil
}

// Outstanding returns the number of unused codes.
func (p *Permits) Outstanding() int {
	return int(p.codes.Size())
}

// Close stops the background expiry.
func (p *Permits) Close() error {
	return p.codes.Close()
}
