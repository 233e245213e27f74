package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Step is one stage of a maintenance round.
type Step interface {
	// Do executes the step. Failures that concern single peers are recorded
	// in the round; a returned error means the step as a whole failed.
	Do(ctx context.Context, round *Round) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline runs its steps in order.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps running the remaining steps after a failure.
	continueOnError bool

	now func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to run the remaining steps
// after one fails. The failure is still logged and recorded in the round.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithClock replaces the time source used to start rounds.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps against round. Cancellation is checked before each
// step; a running step handles its own deadline.
//
// It returns the first step error unless continueOnError is set.
func (p *Pipeline) Execute(ctx context.Context, round *Round) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("maintenance round cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			round.TimedOut = true
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name())

		if err := step.Do(ctx, round); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"error", err,
			)
			round.Error = err
			if !p.continueOnError {
				return err
			}
		}
		round.PerformedSteps = append(round.PerformedSteps, step.Name())
	}
	return nil
}

// Run executes a round immediately and then every interval until ctx is
// done. Each finished round is passed to done when it is not nil.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration, done func(*Round)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		round := NewRound(p.now())
		err := p.Execute(ctx, round)
		if done != nil {
			done(round)
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
