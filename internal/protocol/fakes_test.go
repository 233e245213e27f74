package protocol

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/position"
)

var errFakeIO = errors.New("disk full")

// fakeQueue stacks URLs in memory and reports known URLs as double.
type fakeQueue struct {
	mu       sync.Mutex
	size     int
	stacked  []EnqueueRequest
	indexed  map[position.Position]bool
	veto     string
	failWith error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{indexed: make(map[position.Position]bool)}
}

func (q *fakeQueue) Enqueue(_ context.Context, req EnqueueRequest) (EnqueueResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return EnqueueResult{}, q.failWith
	}
	if q.veto != "" {
		return EnqueueResult{Status: EnqueueRejected, Reason: q.veto}, nil
	}
	if q.indexed[req.URL.Position()] {
		return EnqueueResult{Status: EnqueueDouble, Reason: "double in: index"}, nil
	}
	q.stacked = append(q.stacked, req)
	return EnqueueResult{Status: EnqueueStacked}, nil
}

func (q *fakeQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size + len(q.stacked)
}

func (q *fakeQueue) calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.stacked)
}

type fakePending struct {
	mu      sync.Mutex
	entries map[position.Position]position.Position
}

func newFakePending() *fakePending {
	return &fakePending{entries: make(map[position.Position]position.Position)}
}

func (p *fakePending) Add(hash, delegate position.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[hash] = delegate
}

func (p *fakePending) Remove(hash position.Position) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[hash]
	delete(p.entries, hash)
	return ok
}

func (p *fakePending) Contains(hash position.Position) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[hash]
	return ok
}

func (p *fakePending) Delegate(hash position.Position) (position.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.entries[hash]
	return d, ok
}

type fakeSegment struct {
	mu        sync.Mutex
	entries   map[position.Position]model.MetadataEntry
	storeErr  error
	lookupErr error
	stores    int
}

func newFakeSegment() *fakeSegment {
	return &fakeSegment{entries: make(map[position.Position]model.MetadataEntry)}
}

func (s *fakeSegment) Store(_ context.Context, e model.MetadataEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stores++
	s.entries[e.Hash] = e
	return nil
}

func (s *fakeSegment) Lookup(_ context.Context, h position.Position) (model.MetadataEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return model.MetadataEntry{}, s.lookupErr
	}
	e, ok := s.entries[h]
	if !ok {
		return model.MetadataEntry{}, errors.New("not found")
	}
	return e, nil
}

func (s *fakeSegment) Exists(_ context.Context, h position.Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[h]
	return ok, nil
}

func (s *fakeSegment) Size(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *fakeSegment) storeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stores
}

type fakePostings struct {
	mu        sync.Mutex
	merged    []model.Posting
	occupancy int
	ceiling   int
	mergeErr  error
}

func (b *fakePostings) Merge(_ context.Context, p []model.Posting) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mergeErr != nil {
		return b.mergeErr
	}
	b.merged = append(b.merged, p...)
	return nil
}

func (b *fakePostings) Occupancy() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occupancy
}

func (b *fakePostings) Ceiling() int {
	return b.ceiling
}

func (b *fakePostings) mergedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.merged)
}

// fakeBlacklist blocks every host listed in hosts.
type fakeBlacklist struct {
	hosts map[string]bool
}

func (b fakeBlacklist) IsBlocked(_, host, _ string) bool {
	return b.hosts[host]
}

// fakeDomains rejects hosts with the given suffix and positions in refused.
type fakeDomains struct {
	rejectSuffix string
	refused      map[position.Position]bool
}

func (d fakeDomains) CheckAccepted(u *position.URL) string {
	if d.rejectSuffix != "" && strings.HasSuffix(u.Host(), d.rejectSuffix) {
		return "host not in crawl scope"
	}
	return ""
}

func (d fakeDomains) AcceptsPosition(p position.Position) bool {
	return !d.refused[p]
}

type fakeErrorLog struct {
	mu      sync.Mutex
	entries []model.ErrorEntry
}

func (l *fakeErrorLog) Push(_ context.Context, e model.ErrorEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []position.Position
}

func (o *fakeObserver) Observed(_ context.Context, e model.MetadataEntry, _ position.Position) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, e.Hash)
}

type fakeSink struct {
	mu        sync.Mutex
	transfers []Transfer
}

func (s *fakeSink) StoreTransfer(_ context.Context, t Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, t)
	return nil
}

// fakeProber answers for every host in reachable.
type fakeProber struct {
	reachable map[string]bool
}

func (p fakeProber) Probe(_ context.Context, target model.Peer) error {
	if p.reachable[target.Host] {
		return nil
	}
	return errors.New("connection refused")
}

// fixture bundles a Service with its fakes.
type fixture struct {
	svc      *Service
	dir      *peers.Directory
	self     model.Peer
	caller   model.Peer
	queue    *fakeQueue
	pending  *fakePending
	segment  *fakeSegment
	postings *fakePostings
	errlog   *fakeErrorLog
	observer *fakeObserver
	sink     *fakeSink
}

func testPeer(t *testing.T, host string, capacity int) model.Peer {
	t.Helper()
	pos, err := position.HostPosition("http", host, 8090)
	if err != nil {
		t.Fatalf("failed to compute position: %v", err)
	}
	return model.Peer{Position: pos, Name: host, Host: host, Port: 8090, Capacity: capacity, Version: 1.0}
}

// newFixture creates a service whose own capacity is 60 pages per minute, so
// the per-request service time is one second. The caller is a known senior
// peer.
func newFixture(t *testing.T, cfg Config, mutate ...func(*Dependencies)) *fixture {
	t.Helper()

	f := &fixture{
		dir:      peers.NewDirectory(),
		self:     testPeer(t, "self.example.org", 60),
		caller:   testPeer(t, "caller.example.net", 30),
		queue:    newFakeQueue(),
		pending:  newFakePending(),
		segment:  newFakeSegment(),
		postings: &fakePostings{ceiling: 1000},
		errlog:   &fakeErrorLog{},
		observer: &fakeObserver{},
		sink:     &fakeSink{},
	}
	f.dir.SetSelf(f.self)
	if _, err := f.dir.UpsertVerified(f.caller, model.ClassSenior); err != nil {
		t.Fatalf("failed to add caller: %v", err)
	}

	hs := peers.NewHandshaker(f.dir, fakeProber{reachable: map[string]bool{}})
	t.Cleanup(func() { _ = hs.Close() })

	deps := Dependencies{
		Directory:  f.dir,
		Handshaker: hs,
		Queue:      f.queue,
		Pending:    f.pending,
		Segment:    f.segment,
		Postings:   f.postings,
		Blacklist:  fakeBlacklist{hosts: map[string]bool{"blocked.example.com": true}},
		Domains:    fakeDomains{rejectSuffix: ".invalid-scope.org"},
		ErrorLog:   f.errlog,
		Observer:   f.observer,
		Sink:       f.sink,
	}
	for _, m := range mutate {
		m(&deps)
	}

	svc, err := NewService(cfg, deps)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	f.svc = svc
	return f
}

// header returns a request header from the caller to the fixture's node.
func (f *fixture) header(key string) Header {
	return Header{Iam: f.caller.Position, Youare: f.self.Position, Key: key}
}

func encode(t *testing.T, s, key string) string {
	t.Helper()
	out, err := EncodeValue(s, key)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	return out
}

func mustURL(t *testing.T, raw string) *position.URL {
	t.Helper()
	u, err := position.ParseURL(raw)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", raw, err)
	}
	return u
}
