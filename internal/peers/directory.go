package peers

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// defaultShardCount is the number of directory shards. Must be a power of two.
const defaultShardCount = 16

// shard is one partition of the directory.
type shard struct {
	mu    sync.RWMutex
	peers map[position.Position]model.Peer
}

// Directory is the set of known peers keyed by position.
type Directory struct {
	shards []*shard
	mask   uint64
	now    func() time.Time

	selfMu sync.RWMutex
	self   model.Peer
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithShardCount sets the number of shards. It is rounded up to a power of two.
func WithShardCount(n int) DirectoryOption {
	return func(d *Directory) {
		count := 1
		for count < n {
			count <<= 1
		}
		d.shards = newShards(count)
		d.mask = uint64(count - 1)
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) {
		d.now = now
	}
}

// NewDirectory creates an empty directory.
func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		shards: newShards(defaultShardCount),
		mask:   defaultShardCount - 1,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{peers: make(map[position.Position]model.Peer)}
	}
	return shards
}

func (d *Directory) shardFor(pos position.Position) *shard {
	return d.shards[xxhash.Sum64String(string(pos))&d.mask]
}

// Self returns the record describing this node.
func (d *Directory) Self() model.Peer {
	d.selfMu.RLock()
	defer d.selfMu.RUnlock()
	return d.self
}

// SetSelf replaces the record describing this node.
func (d *Directory) SetSelf(p model.Peer) {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()
	d.self = p
}

// Lookup returns the peer at pos.
func (d *Directory) Lookup(pos position.Position) (model.Peer, error) {
	s := d.shardFor(pos)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[pos]
	if !ok {
		return model.Peer{}, fmt.Errorf("%w: %s", ErrNotFound, pos)
	}
	return p, nil
}

// Upsert merges p into the directory and returns the stored record.
// A new peer starts as junior; an existing peer keeps its assigned class.
// LastSeen never moves backwards.
func (d *Directory) Upsert(p model.Peer) (model.Peer, error) {
	if !p.Position.IsHost() {
		return model.Peer{}, fmt.Errorf("%w: position %q", ErrInvalidPeer, p.Position)
	}
	return d.merge(p, func(old model.Peer, exists bool) model.PeerClass {
		if exists {
			return old.Class
		}
		return model.ClassJunior
	}), nil
}

// UpsertVerified merges p and sets its class. Only the verification path
// calls it.
func (d *Directory) UpsertVerified(p model.Peer, class model.PeerClass) (model.Peer, error) {
	if !p.Position.IsHost() {
		return model.Peer{}, fmt.Errorf("%w: position %q", ErrInvalidPeer, p.Position)
	}
	return d.merge(p, func(model.Peer, bool) model.PeerClass { return class }), nil
}

func (d *Directory) merge(p model.Peer, classOf func(old model.Peer, exists bool) model.PeerClass) model.Peer {
	if p.LastSeen.IsZero() {
		p.LastSeen = d.now().UTC()
	}

	s := d.shardFor(p.Position)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.peers[p.Position]
	p.Class = classOf(old, exists)
	if exists && old.LastSeen.After(p.LastSeen) {
		p.LastSeen = old.LastSeen
	}
	if exists && p.Name == "" {
		p.Name = old.Name
	}
	s.peers[p.Position] = p
	return p
}

// Demote sets the class of pos to junior. It reports whether pos was known.
func (d *Directory) Demote(pos position.Position) bool {
	s := d.shardFor(pos)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[pos]
	if !ok {
		return false
	}
	p.Class = model.ClassJunior
	s.peers[pos] = p
	return true
}

// Touch advances the last-seen time of pos to now.
func (d *Directory) Touch(pos position.Position) bool {
	now := d.now().UTC()
	s := d.shardFor(pos)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[pos]
	if !ok {
		return false
	}
	if now.After(p.LastSeen) {
		p.LastSeen = now
	}
	s.peers[pos] = p
	return true
}

// Remove deletes pos and reports whether it was present.
func (d *Directory) Remove(pos position.Position) bool {
	s := d.shardFor(pos)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[pos]; !ok {
		return false
	}
	delete(s.peers, pos)
	return true
}

// Size returns the number of known peers.
func (d *Directory) Size() int {
	n := 0
	for _, s := range d.shards {
		s.mu.RLock()
		n += len(s.peers)
		s.mu.RUnlock()
	}
	return n
}

// All returns every peer ordered by position.
func (d *Directory) All() []model.Peer {
	out := make([]model.Peer, 0, d.Size())
	for _, s := range d.shards {
		s.mu.RLock()
		for _, p := range s.peers {
			out = append(out, p)
		}
		s.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b model.Peer) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

// Recent returns up to n peers, most recently seen first. Positions in
// exclude are skipped.
func (d *Directory) Recent(n int, exclude ...position.Position) []model.Peer {
	if n <= 0 {
		return nil
	}
	all := d.All()
	out := all[:0]
	for _, p := range all {
		if slices.Contains(exclude, p.Position) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b model.Peer) int {
		return b.LastSeen.Compare(a.LastSeen)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Snapshot returns every peer for persistence.
func (d *Directory) Snapshot() []model.Peer {
	return d.All()
}

// Restore inserts persisted peers as they were stored, including their
// class. Records without a valid position are skipped and counted.
func (d *Directory) Restore(peers []model.Peer) (skipped int) {
	for _, p := range peers {
		if !p.Position.IsHost() {
			skipped++
			continue
		}
		s := d.shardFor(p.Position)
		s.mu.Lock()
		if old, ok := s.peers[p.Position]; !ok || p.LastSeen.After(old.LastSeen) {
			s.peers[p.Position] = p
		}
		s.mu.Unlock()
	}
	return skipped
}
