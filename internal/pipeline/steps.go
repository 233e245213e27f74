package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
)

// Defaults of the maintenance steps.
const (
	// DefaultRefreshCount is the number of known peers greeted per round.
	DefaultRefreshCount = 20

	// DefaultMaxPeerAge is how long a peer may go unseen before it is
	// dropped from the directory.
	DefaultMaxPeerAge = 7 * 24 * time.Hour
)

// BootstrapStep greets the configured seed peers. Seeds that are already
// known above junior are skipped, as is the own position.
type BootstrapStep struct {
	sweep  *Sweep
	dir    *peers.Directory
	seeds  []model.Peer
	logger *slog.Logger
}

// NewBootstrapStep creates a BootstrapStep greeting seeds.
func NewBootstrapStep(sweep *Sweep, dir *peers.Directory, seeds []model.Peer, logger *slog.Logger) *BootstrapStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &BootstrapStep{sweep: sweep, dir: dir, seeds: seeds, logger: logger}
}

// Name returns the step's name.
func (s *BootstrapStep) Name() string {
	return "bootstrap"
}

// Do greets the seeds that still need it.
func (s *BootstrapStep) Do(ctx context.Context, round *Round) error {
	self := s.dir.Self().Position
	targets := make([]model.Peer, 0, len(s.seeds))
	for _, seed := range s.seeds {
		if seed.Position == self {
			continue
		}
		if known, err := s.dir.Lookup(seed.Position); err == nil && known.Class.AtLeast(model.ClassSenior) {
			continue
		}
		targets = append(targets, seed)
	}
	if len(targets) == 0 {
		return nil
	}

	outcomes, err := s.sweep.Greet(ctx, targets)
	round.record(outcomes)
	if err != nil {
		return err
	}
	reachable := 0
	for _, o := range outcomes {
		if o.Err == nil {
			reachable++
		}
	}
	s.logger.Info("greeted seed peers", "reachable", reachable, "seeds", len(targets))
	if reachable == 0 {
		return fmt.Errorf("%w: %d seeds", ErrNoSeedReachable, len(targets))
	}
	return nil
}

// RefreshStep greets the most recently seen peers. Peers that fail are
// demoted; peers unseen for longer than the maximum age are removed.
type RefreshStep struct {
	sweep  *Sweep
	dir    *peers.Directory
	count  int
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// RefreshStepOption configures a RefreshStep.
type RefreshStepOption func(*RefreshStep)

// WithRefreshCount sets the number of peers greeted per round.
func WithRefreshCount(n int) RefreshStepOption {
	return func(s *RefreshStep) {
		if n > 0 {
			s.count = n
		}
	}
}

// WithMaxPeerAge sets how long a peer may go unseen before it is removed.
// Zero disables removal.
func WithMaxPeerAge(d time.Duration) RefreshStepOption {
	return func(s *RefreshStep) {
		s.maxAge = d
	}
}

// WithRefreshLogger sets the logger of the step.
func WithRefreshLogger(logger *slog.Logger) RefreshStepOption {
	return func(s *RefreshStep) {
		s.logger = logger
	}
}

// WithRefreshClock replaces the time source. Used by tests.
func WithRefreshClock(now func() time.Time) RefreshStepOption {
	return func(s *RefreshStep) {
		s.now = now
	}
}

// NewRefreshStep creates a RefreshStep over dir.
func NewRefreshStep(sweep *Sweep, dir *peers.Directory, opts ...RefreshStepOption) *RefreshStep {
	s := &RefreshStep{
		sweep:  sweep,
		dir:    dir,
		count:  DefaultRefreshCount,
		maxAge: DefaultMaxPeerAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Name returns the step's name.
func (s *RefreshStep) Name() string {
	return "refresh"
}

// Do drops stale peers and greets the most recent ones.
func (s *RefreshStep) Do(ctx context.Context, round *Round) error {
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		for _, p := range s.dir.All() {
			if p.LastSeen.Before(cutoff) && s.dir.Remove(p.Position) {
				s.logger.Debug("dropped stale peer", "peer", p.Position.String(), "last_seen", p.LastSeen)
			}
		}
	}

	targets := s.dir.Recent(s.count, s.dir.Self().Position)
	outcomes, err := s.sweep.Greet(ctx, targets)
	if err != nil {
		return err
	}
	round.record(outcomes)
	for _, o := range outcomes {
		if o.Err != nil {
			s.dir.Demote(o.Peer.Position)
		}
	}
	return nil
}

// PeerStore persists the peer directory.
type PeerStore interface {
	SavePeers(ctx context.Context, peers []model.Peer) error
}

// SaveStep writes the directory to the store.
type SaveStep struct {
	store PeerStore
	dir   *peers.Directory
}

// NewSaveStep creates a SaveStep.
func NewSaveStep(store PeerStore, dir *peers.Directory) *SaveStep {
	return &SaveStep{store: store, dir: dir}
}

// Name returns the step's name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do persists a snapshot of the directory.
func (s *SaveStep) Do(ctx context.Context, round *Round) error {
	snapshot := s.dir.Snapshot()
	if err := s.store.SavePeers(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save peers: %w", err)
	}
	round.Saved = len(snapshot)
	return nil
}

// DefaultPipelineConfig holds the settings of the default maintenance round.
type DefaultPipelineConfig struct {
	Seeds        []model.Peer
	Concurrency  int
	GreetTimeout time.Duration
	RefreshCount int
	MaxPeerAge   time.Duration
	Logger       *slog.Logger
}

// DefaultPipeline builds the standard maintenance round: bootstrap, refresh
// and save. A failing step does not prevent the later ones.
func DefaultPipeline(greeter Greeter, dir *peers.Directory, store PeerStore, cfg DefaultPipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sweep := NewSweep(greeter,
		WithConcurrency(cfg.Concurrency),
		WithGreetTimeout(cfg.GreetTimeout),
		WithSweepLogger(logger),
	)

	p := New(WithLogger(logger), WithContinueOnError(true))
	if len(cfg.Seeds) > 0 {
		p.AddStep(NewBootstrapStep(sweep, dir, cfg.Seeds, logger))
	}
	p.AddStep(NewRefreshStep(sweep, dir,
		WithRefreshCount(cfg.RefreshCount),
		WithMaxPeerAge(cfg.MaxPeerAge),
		WithRefreshLogger(logger),
	))
	if store != nil {
		p.AddStep(NewSaveStep(store, dir))
	}
	return p
}
