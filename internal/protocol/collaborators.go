package protocol

import (
	"context"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// Blacklist categories consulted by the endpoints.
const (
	// CategoryDHT applies to entries received through bulk transfers.
	CategoryDHT = "dht"

	// CategoryCrawler applies to URLs stacked for crawling.
	CategoryCrawler = "crawler"
)

// EnqueueRequest asks the crawl queue to stack one URL.
type EnqueueRequest struct {
	URL       *position.URL
	Referrer  string
	Initiator position.Position
	Profile   string
}

// EnqueueResult is the crawl queue's answer.
type EnqueueResult struct {
	Status EnqueueStatus
	Reason string
}

// CrawlQueue stacks URLs delegated by remote peers.
type CrawlQueue interface {
	// Enqueue stacks req.URL. The returned error is reserved for I/O
	// failures; refusals are reported through EnqueueResult.
	Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error)

	// Size returns the number of URLs waiting to be loaded.
	Size() int
}

// PendingDelegations tracks URLs this node delegated and for which no
// receipt has arrived yet.
type PendingDelegations interface {
	Add(hash position.Position, delegate position.Position)
	Remove(hash position.Position) bool
	Contains(hash position.Position) bool

	// Delegate returns the peer hash was delegated to, if still pending.
	Delegate(hash position.Position) (position.Position, bool)
}

// IndexSegment stores URL metadata entries.
type IndexSegment interface {
	Store(ctx context.Context, entry model.MetadataEntry) error
	Lookup(ctx context.Context, hash position.Position) (model.MetadataEntry, error)
	Exists(ctx context.Context, hash position.Position) (bool, error)
	Size(ctx context.Context) (int, error)
}

// PostingsBuffer collects postings received from other peers before they are
// written to the index.
type PostingsBuffer interface {
	Merge(ctx context.Context, postings []model.Posting) error
	Occupancy() int
	Ceiling() int
}

// Blacklist decides whether a host and path are blocked for a category.
type Blacklist interface {
	IsBlocked(category, host, path string) bool
}

// DomainPolicy decides whether a URL is within the configured crawl scope.
type DomainPolicy interface {
	// CheckAccepted returns "" when u is accepted, otherwise the reason it
	// is not.
	CheckAccepted(u *position.URL) string

	// AcceptsPosition reports whether a URL known only by its position is
	// within scope.
	AcceptsPosition(pos position.Position) bool
}

// ErrorLog records URLs that could not be crawled.
type ErrorLog interface {
	Push(ctx context.Context, entry model.ErrorEntry) error
}

// ResultObserver is notified when a delegated URL was indexed by a remote
// peer.
type ResultObserver interface {
	Observed(ctx context.Context, entry model.MetadataEntry, from position.Position)
}

// Transfer is a payload received under a permit.
type Transfer struct {
	From     position.Position
	Purpose  string
	Filename string
	Payload  []byte
	Received time.Time
}

// TransferSink stores payloads received under a permit.
type TransferSink interface {
	StoreTransfer(ctx context.Context, t Transfer) error
}

type nopObserver struct{}

func (nopObserver) Observed(context.Context, model.MetadataEntry, position.Position) {}
