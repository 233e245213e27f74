package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/peercrawl/internal/client"
	"github.com/nao1215/peercrawl/internal/model"
)

// DefaultConcurrency is the number of greetings in flight during a sweep.
const DefaultConcurrency = 10

// Greeter greets one peer.
type Greeter interface {
	Hello(ctx context.Context, target model.Peer) (client.HelloResult, error)
}

// Outcome is the result of greeting one peer.
type Outcome struct {
	Peer   model.Peer
	Result client.HelloResult
	Err    error
}

// Sweep greets many peers concurrently. A failing greeting never stops the
// others; only cancellation ends a sweep early.
type Sweep struct {
	greeter     Greeter
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// SweepOption configures a Sweep.
type SweepOption func(*Sweep)

// WithSweepLogger sets a custom logger for the sweep.
func WithSweepLogger(logger *slog.Logger) SweepOption {
	return func(s *Sweep) {
		s.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent greetings.
func WithConcurrency(n int) SweepOption {
	return func(s *Sweep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithGreetTimeout bounds each greeting. Zero leaves greetings bounded by
// the caller's context only.
func WithGreetTimeout(d time.Duration) SweepOption {
	return func(s *Sweep) {
		s.timeout = d
	}
}

// NewSweep creates a Sweep that greets through greeter.
func NewSweep(greeter Greeter, opts ...SweepOption) *Sweep {
	s := &Sweep{
		greeter:     greeter,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Greet greets every target and returns one outcome per target, in the
// order of targets. The error is non-nil only when ctx was cancelled.
func (s *Sweep) Greet(ctx context.Context, targets []model.Peer) ([]Outcome, error) {
	outcomes := make([]Outcome, len(targets))
	err := s.GreetWithCallback(ctx, targets, func(o Outcome, i int) {
		outcomes[i] = o
	})
	return outcomes, err
}

// GreetWithCallback greets every target and calls callback with each
// outcome and the index of its target. The callback runs on the greeting
// goroutine; each index is written by exactly one call.
func (s *Sweep) GreetWithCallback(ctx context.Context, targets []model.Peer, callback func(o Outcome, index int)) error {
	if len(targets) == 0 {
		return nil
	}
	s.logger.Debug("starting sweep",
		"peers", len(targets),
		"concurrency", s.concurrency,
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				callback(Outcome{Peer: target, Err: ctx.Err()}, i)
				return ctx.Err()
			default:
			}

			greetCtx := ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				greetCtx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}

			res, err := s.greeter.Hello(greetCtx, target)
			if err != nil {
				s.logger.Debug("greeting failed",
					"peer", target.Position.String(),
					"address", target.Address(),
					"error", err,
				)
			}
			callback(Outcome{Peer: target, Result: res, Err: err}, i)
			return nil
		})
	}

	err := g.Wait()
	s.logger.Debug("sweep complete",
		"peers", len(targets),
		"elapsed", time.Since(start),
	)
	return err
}
