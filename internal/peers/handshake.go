package peers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// Handshake limits.
const (
	// MaxReturnedPeers caps the number of descriptors returned by a handshake.
	MaxReturnedPeers = 100

	// MinAddressReportingVersion is the first protocol version whose peers
	// report their own public address.
	MinAddressReportingVersion = 0.383

	// DefaultVerifyTimeout bounds the whole connect-back verification of one
	// caller, across all candidate addresses.
	DefaultVerifyTimeout = 5 * time.Second

	// DefaultRecheckDelay is the wait before re-verifying a peer that failed.
	DefaultRecheckDelay = 10 * time.Minute
)

// Prober performs the connect-back call against a candidate address.
// A nil error means the peer answered as the expected position.
type Prober interface {
	Probe(ctx context.Context, target model.Peer) error
}

// HelloInput is what a caller presents when greeting this node.
type HelloInput struct {
	// Caller is the caller's self-description, parsed from its descriptor.
	Caller model.Peer

	// ArrivalHost is the physical address the request came from.
	ArrivalHost string

	// ClientVersion is the protocol version the caller speaks.
	ClientVersion float64

	// Requested is the number of peer descriptors the caller asked for.
	Requested int
}

// HelloResult is the outcome of a handshake.
type HelloResult struct {
	Self  model.Peer
	Peers []model.Peer

	// Class is the class assigned to the caller.
	Class model.PeerClass

	// YourIP is the address under which the caller was verified, or the
	// arrival address if verification failed.
	YourIP string
}

// Handshaker verifies callers by connecting back to them.
type Handshaker struct {
	dir     *Directory
	prober  Prober
	logger  *slog.Logger
	isLocal func(host string) bool

	verifyTimeout time.Duration
	recheckDelay  time.Duration

	group singleflight.Group

	mu     sync.Mutex
	timers map[position.Position]*time.Timer
	closed bool
}

// HandshakerOption configures a Handshaker.
type HandshakerOption func(*Handshaker)

// WithVerifyTimeout sets the total bound of one verification.
func WithVerifyTimeout(d time.Duration) HandshakerOption {
	return func(h *Handshaker) {
		if d > 0 {
			h.verifyTimeout = d
		}
	}
}

// WithRecheckDelay sets the wait before a failed peer is verified again.
func WithRecheckDelay(d time.Duration) HandshakerOption {
	return func(h *Handshaker) {
		if d > 0 {
			h.recheckDelay = d
		}
	}
}

// WithLocalCheck replaces the local network test applied to candidate
// addresses.
func WithLocalCheck(isLocal func(host string) bool) HandshakerOption {
	return func(h *Handshaker) {
		h.isLocal = isLocal
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandshakerOption {
	return func(h *Handshaker) {
		h.logger = logger
	}
}

// NewHandshaker creates a Handshaker backed by dir.
func NewHandshaker(dir *Directory, prober Prober, opts ...HandshakerOption) *Handshaker {
	h := &Handshaker{
		dir:           dir,
		prober:        prober,
		logger:        slog.New(slog.DiscardHandler),
		isLocal:       position.IsLocalHost,
		verifyTimeout: DefaultVerifyTimeout,
		recheckDelay:  DefaultRecheckDelay,
		timers:        make(map[position.Position]*time.Timer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handshake verifies the caller and returns this node's view of the network.
// A failed verification never fails the handshake; it only lowers the class
// assigned to the caller.
func (h *Handshaker) Handshake(ctx context.Context, in HelloInput) (HelloResult, error) {
	caller := in.Caller
	if !caller.Position.IsHost() {
		return HelloResult{}, fmt.Errorf("%w: position %q", ErrInvalidPeer, caller.Position)
	}
	caller.LastSeen = time.Time{}

	candidates := h.candidates(caller, in)
	verifiedHost, err := h.verify(ctx, caller, candidates)
	result := HelloResult{Self: h.dir.Self()}

	if err == nil {
		caller.Host = verifiedHost
		class := model.ClassSenior
		if caller.DeclaredClass == model.ClassPrincipal {
			class = model.ClassPrincipal
		}
		if _, err := h.dir.UpsertVerified(caller, class); err != nil {
			return HelloResult{}, err
		}
		result.Class = class
		result.YourIP = verifiedHost
	} else {
		h.logger.Debug("handshake verification failed",
			slog.String("peer", caller.Position.String()),
			slog.String("error", err.Error()))
		// Record and recheck only an address that passed the candidate
		// filter, never a self-reported local one.
		if len(candidates) > 0 {
			caller.Host = candidates[0]
		}
		if _, err := h.dir.Upsert(caller); err != nil {
			return HelloResult{}, err
		}
		h.dir.Demote(caller.Position)
		if len(candidates) > 0 {
			h.scheduleRecheck(caller)
		}
		result.Class = model.ClassJunior
		result.YourIP = in.ArrivalHost
	}

	n := min(in.Requested, MaxReturnedPeers, h.dir.Size())
	result.Peers = h.dir.Recent(n, caller.Position, result.Self.Position)
	return result, nil
}

// candidates returns the hosts to try, in order.
func (h *Handshaker) candidates(caller model.Peer, in HelloInput) []string {
	var out []string
	reported := caller.Host
	if reported != "" && reported != in.ArrivalHost &&
		in.ClientVersion >= MinAddressReportingVersion && !h.isLocal(reported) {
		out = append(out, reported)
	}
	if in.ArrivalHost != "" && !h.isLocal(in.ArrivalHost) {
		out = append(out, in.ArrivalHost)
	}
	return out
}

// verify tries each candidate address and returns the first that answers.
// All attempts share one deadline.
func (h *Handshaker) verify(ctx context.Context, caller model.Peer, candidates []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.verifyTimeout)
	defer cancel()

	var errs []error
	for _, host := range candidates {
		target := caller
		target.Host = host
		if err := h.prober.Probe(ctx, target); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return host, nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no routable address", ErrVerificationFailed)
	}
	return "", fmt.Errorf("%w: %w", ErrVerificationFailed, errors.Join(errs...))
}

func (h *Handshaker) probe(ctx context.Context, target model.Peer) error {
	ctx, cancel := context.WithTimeout(ctx, h.verifyTimeout)
	defer cancel()
	return h.prober.Probe(ctx, target)
}

// scheduleRecheck arranges one later verification of p. At most one timer
// per position is pending at a time.
func (h *Handshaker) scheduleRecheck(p model.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if _, ok := h.timers[p.Position]; ok {
		return
	}
	h.timers[p.Position] = time.AfterFunc(h.recheckDelay, func() {
		h.mu.Lock()
		delete(h.timers, p.Position)
		closed := h.closed
		h.mu.Unlock()
		if !closed {
			_, _ = h.Recheck(context.Background(), p)
		}
	})
}

// Recheck verifies p again at p.Host and raises its class on success.
// Addresses on the local network are refused without a connection.
// Concurrent rechecks of the same position share one probe.
func (h *Handshaker) Recheck(ctx context.Context, p model.Peer) (model.PeerClass, error) {
	if p.Host == "" || h.isLocal(p.Host) {
		return model.ClassJunior, fmt.Errorf("%w: local or missing address %q", ErrVerificationFailed, p.Host)
	}
	v, err, _ := h.group.Do(string(p.Position), func() (any, error) {
		if err := h.probe(ctx, p); err != nil {
			return model.ClassJunior, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
		}
		class := model.ClassSenior
		if p.DeclaredClass == model.ClassPrincipal {
			class = model.ClassPrincipal
		}
		if _, err := h.dir.UpsertVerified(p, class); err != nil {
			return model.ClassJunior, err
		}
		h.logger.Debug("peer re-verified",
			slog.String("peer", p.Position.String()),
			slog.String("class", class.String()))
		return class, nil
	})
	class, _ := v.(model.PeerClass)
	return class, err
}

// PendingRechecks returns the number of scheduled re-verifications.
func (h *Handshaker) PendingRechecks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Close stops all scheduled re-verifications.
func (h *Handshaker) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for pos, t := range h.timers {
		t.Stop()
		delete(h.timers, pos)
	}
	return nil
}
