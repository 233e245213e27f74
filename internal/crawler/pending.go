package crawler

import (
	"time"

	cache "github.com/unkn0wn-root/kioshun"

	"github.com/nao1215/peercrawl/internal/position"
)

// DefaultPendingTTL is how long a delegation waits for its receipt.
const DefaultPendingTTL = 24 * time.Hour

const maxPending = 1 << 16

// Pending tracks URLs delegated to other peers. Entries without a receipt
// expire after the configured TTL.
type Pending struct {
	delegations *cache.InMemoryCache[string, position.Position]
	ttl         time.Duration
}

// NewPending creates an empty set whose entries expire after ttl.
func NewPending(ttl time.Duration) *Pending {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Pending{
		delegations: cache.New[string, position.Position](cache.Config{
			MaxSize:         maxPending,
			ShardCount:      16,
			CleanupInterval: time.Minute,
			DefaultTTL:      ttl,
			EvictionPolicy:  cache.LRU,
		}),
		ttl: ttl,
	}
}

// Add records that hash was delegated to delegate.
func (p *Pending) Add(hash, delegate position.Position) {
	// Set only fails for a zero capacity cache.
	_ = p.delegations.Set(hash.String(), delegate, p.ttl)
}

// Remove forgets hash and reports whether it was pending.
func (p *Pending) Remove(hash position.Position) bool {
	return p.delegations.Delete(hash.String())
}

// Contains reports whether hash is waiting for a receipt.
func (p *Pending) Contains(hash position.Position) bool {
	return p.delegations.Exists(hash.String())
}

// Delegate returns the peer hash was delegated to.
func (p *Pending) Delegate(hash position.Position) (position.Position, bool) {
	return p.delegations.Get(hash.String())
}

// Size returns the number of pending delegations.
func (p *Pending) Size() int {
	return int(p.delegations.Size())
}

// Close stops the background expiry.
func (p *Pending) Close() error {
	return p.delegations.Close()
}
