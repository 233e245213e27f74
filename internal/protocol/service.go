package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/peercrawl/internal/admission"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/position"
)

// Defaults for Config.
const (
	DefaultQueueCeiling  = 100
	DefaultRWIPauseScale = 20000
)

// VersionRange is an inclusive range of protocol versions.
type VersionRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies within r.
func (r VersionRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// DefaultBadVersions lists releases whose postings are known to be corrupt.
var DefaultBadVersions = []VersionRange{{Min: 0.51, Max: 0.535}}

// Config holds the switches of the endpoints.
type Config struct {
	// AcceptRemoteCrawl enables the crawl order endpoint.
	AcceptRemoteCrawl bool

	// AcceptRemoteIndex enables inbound postings and URL transfers.
	AcceptRemoteIndex bool

	// Isolated refuses postings from the network.
	Isolated bool

	// QueueCeiling is the crawl queue size above which orders are rejected.
	QueueCeiling int

	// RWIPauseScale is the pause returned when the postings buffer is full.
	RWIPauseScale int

	// BadVersions lists sender versions whose postings are refused.
	BadVersions []VersionRange

	// PermitTTL is the lifetime of a transfer access code.
	PermitTTL time.Duration
}

// DefaultConfig returns a configuration that accepts remote work.
func DefaultConfig() Config {
	return Config{
		AcceptRemoteCrawl: true,
		AcceptRemoteIndex: true,
		QueueCeiling:      DefaultQueueCeiling,
		RWIPauseScale:     DefaultRWIPauseScale,
		BadVersions:       DefaultBadVersions,
		PermitTTL:         DefaultPermitTTL,
	}
}

// Dependencies are the collaborators of a Service. Observer may be nil.
type Dependencies struct {
	Directory  *peers.Directory
	Handshaker *peers.Handshaker
	Queue      CrawlQueue
	Pending    PendingDelegations
	Segment    IndexSegment
	Postings   PostingsBuffer
	Blacklist  Blacklist
	Domains    DomainPolicy
	ErrorLog   ErrorLog
	Observer   ResultObserver
	Sink       TransferSink
}

func (d Dependencies) validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
	}
	switch {
	case d.Directory == nil:
		return missing("directory")
	case d.Handshaker == nil:
		return missing("handshaker")
	case d.Queue == nil:
		return missing("crawl queue")
	case d.Pending == nil:
		return missing("pending delegations")
	case d.Segment == nil:
		return missing("index segment")
	case d.Postings == nil:
		return missing("postings buffer")
	case d.Blacklist == nil:
		return missing("blacklist")
	case d.Domains == nil:
		return missing("domain policy")
	case d.ErrorLog == nil:
		return missing("error log")
	case d.Sink == nil:
		return missing("transfer sink")
	}
	return nil
}

// Service implements the endpoints of one node.
// It is safe for concurrent use.
type Service struct {
	cfg     Config
	deps    Dependencies
	logger  *slog.Logger
	now     func() time.Time
	permits *Permits

	crawlGate    *admission.Gate[crawlAdmission, CrawlOrderResponse]
	rwiGate      *admission.Gate[rwiAdmission, RWIResponse]
	transferGate *admission.Gate[transferAdmission, TransferReply]
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service. It fails when a required collaborator is
// missing.
func NewService(cfg Config, deps Dependencies, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if cfg.QueueCeiling <= 0 {
		cfg.QueueCeiling = DefaultQueueCeiling
	}
	if cfg.RWIPauseScale <= 0 {
		cfg.RWIPauseScale = DefaultRWIPauseScale
	}

	s := &Service{
		cfg:    cfg,
		deps:   deps,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.permits = NewPermits(cfg.PermitTTL)
	s.crawlGate = s.newCrawlGate()
	s.rwiGate = s.newRWIGate()
	s.transferGate = s.newTransferGate()
	return s, nil
}

// Close releases the permit store.
func (s *Service) Close() error {
	return s.permits.Close()
}

// Self returns the descriptor of this node.
func (s *Service) Self() model.Peer {
	return s.deps.Directory.Self()
}

// isSelf reports whether target is this node's position.
func (s *Service) isSelf(target position.Position) bool {
	self := s.deps.Directory.Self().Position
	return self != "" && target == self
}

// acceptDelay is the number of seconds this node needs per delegated URL,
// derived from its declared capacity in pages per minute.
func (s *Service) acceptDelay() int {
	capacity := s.deps.Directory.Self().Capacity
	if capacity <= 0 {
		capacity = 1
	}
	return max(1, 60/capacity)
}

// knownPeer looks up the caller.
func (s *Service) knownPeer(pos position.Position) (model.Peer, bool) {
	p, err := s.deps.Directory.Lookup(pos)
	if err != nil {
		return model.Peer{}, false
	}
	return p, true
}

// badVersion reports whether v is in a refused range.
func (s *Service) badVersion(v float64) bool {
	for _, r := range s.cfg.BadVersions {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

func (s *Service) logFailure(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.String("error", err.Error()))
	s.logger.LogAttrs(ctx, slog.LevelWarn, msg, attrs...)
}
