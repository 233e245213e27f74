package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/peercrawl/internal/policy"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
)

// DefaultMaxQueue is the hard limit of a Stacker. The admission ceiling of
// the crawl order endpoint is expected to be far below it.
const DefaultMaxQueue = 10000

// Refusal reasons reported by Enqueue.
const (
	ReasonMissingURL   = "missing url"
	ReasonProtocol     = "unsupported protocol"
	ReasonBlacklisted  = "url in blacklist"
	ReasonPathExcluded = "path excluded"
	ReasonDoubleIndex  = "double in: index"
	ReasonDoubleQueue  = "double in: crawler"
)

// IndexChecker reports whether a URL is already indexed.
type IndexChecker interface {
	Exists(ctx context.Context, hash position.Position) (bool, error)
}

// Entry is one stacked URL.
type Entry struct {
	URL       *position.URL
	Referrer  string
	Initiator position.Position
	Profile   string
	Stacked   time.Time
}

// Stacker is the crawl queue of this node. A URL is queued at most once;
// it becomes eligible again after it was popped.
// It is safe for concurrent use.
type Stacker struct {
	index          IndexChecker
	blacklist      protocol.Blacklist
	domains        protocol.DomainPolicy
	ignorePatterns []string
	followPatterns []string
	maxQueue       int
	logger         *slog.Logger
	now            func() time.Time

	mu     sync.Mutex
	queue  []Entry
	queued map[position.Position]struct{}
}

// StackerOption configures a Stacker.
type StackerOption func(*Stacker)

// WithBlacklist refuses URLs blocked in the crawler category.
func WithBlacklist(b protocol.Blacklist) StackerOption {
	return func(s *Stacker) {
		s.blacklist = b
	}
}

// WithDomains refuses URLs outside the crawl scope.
func WithDomains(d protocol.DomainPolicy) StackerOption {
	return func(s *Stacker) {
		s.domains = d
	}
}

// WithIgnorePatterns sets URL path patterns that are never stacked.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
func WithIgnorePatterns(patterns []string) StackerOption {
	return func(s *Stacker) {
		s.ignorePatterns = append([]string(nil), patterns...)
	}
}

// WithFollowPatterns restricts stacking to URL paths matching one of
// patterns. Empty means all paths are allowed (subject to ignore patterns).
func WithFollowPatterns(patterns []string) StackerOption {
	return func(s *Stacker) {
		s.followPatterns = append([]string(nil), patterns...)
	}
}

// WithMaxQueue sets the hard queue limit.
func WithMaxQueue(n int) StackerOption {
	return func(s *Stacker) {
		if n > 0 {
			s.maxQueue = n
		}
	}
}

// WithStackerLogger sets the logger.
func WithStackerLogger(logger *slog.Logger) StackerOption {
	return func(s *Stacker) {
		s.logger = logger
	}
}

// NewStacker creates an empty queue that checks index for URLs that were
// already crawled.
func NewStacker(index IndexChecker, opts ...StackerOption) *Stacker {
	s := &Stacker{
		index:    index,
		maxQueue: DefaultMaxQueue,
		logger:   slog.Default(),
		now:      time.Now,
		queued:   make(map[position.Position]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue implements protocol.CrawlQueue.
func (s *Stacker) Enqueue(ctx context.Context, req protocol.EnqueueRequest) (protocol.EnqueueResult, error) {
	u := req.URL
	if u == nil {
		return rejected(ReasonMissingURL), nil
	}
	if u.Scheme() != "http" && u.Scheme() != "https" {
		return rejected(ReasonProtocol + ": " + u.Scheme()), nil
	}
	if s.blacklist != nil && s.blacklist.IsBlocked(protocol.CategoryCrawler, u.Host(), u.Path()) {
		return rejected(ReasonBlacklisted), nil
	}
	if s.domains != nil {
		if reason := s.domains.CheckAccepted(u); reason != "" {
			return rejected(reason), nil
		}
	}
	if !s.shouldCrawl(u.Path()) {
		return rejected(ReasonPathExcluded), nil
	}

	hash := u.Position()
	if s.index != nil {
		indexed, err := s.index.Exists(ctx, hash)
		if err != nil {
			return protocol.EnqueueResult{}, fmt.Errorf("failed to check index for %s: %w", hash, err)
		}
		if indexed {
			return protocol.EnqueueResult{Status: protocol.EnqueueDouble, Reason: ReasonDoubleIndex}, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[hash]; ok {
		return protocol.EnqueueResult{Status: protocol.EnqueueDouble, Reason: ReasonDoubleQueue}, nil
	}
	if len(s.queue) >= s.maxQueue {
		return protocol.EnqueueResult{}, ErrQueueFull
	}
	s.queue = append(s.queue, Entry{
		URL:       u,
		Referrer:  req.Referrer,
		Initiator: req.Initiator,
		Profile:   req.Profile,
		Stacked:   s.now(),
	})
	s.queued[hash] = struct{}{}
	s.logger.Debug("url stacked", "url", u.String(), "initiator", req.Initiator.String())
	return protocol.EnqueueResult{Status: protocol.EnqueueStacked}, nil
}

func rejected(reason string) protocol.EnqueueResult {
	return protocol.EnqueueResult{Status: protocol.EnqueueRejected, Reason: reason}
}

// shouldCrawl checks the path against ignore and follow patterns.
// Ignore patterns win over follow patterns.
func (s *Stacker) shouldCrawl(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range s.ignorePatterns {
		if policy.MatchPath(pattern, p) {
			return false
		}
	}
	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if policy.MatchPath(pattern, p) {
			return true
		}
	}
	return false
}

// Pop removes and returns the oldest entry.
func (s *Stacker) Pop() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Entry{}, false
	}
	e := s.queue[0]
	s.queue[0] = Entry{}
	s.queue = s.queue[1:]
	delete(s.queued, e.URL.Position())
	return e, true
}

// Size implements protocol.CrawlQueue.
func (s *Stacker) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Contains reports whether hash is waiting in the queue.
func (s *Stacker) Contains(hash position.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queued[hash]
	return ok
}

// Reset drops every queued entry.
func (s *Stacker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.queued = make(map[position.Position]struct{})
}
