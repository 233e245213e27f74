package admission

import (
	"context"
	"log/slog"
)

// Rule is one admission check.
// Check returns the outcome to answer with and true when the request is
// denied; it must not mutate shared state.
type Rule[Req, Out any] interface {
	Check(ctx context.Context, req Req) (Out, bool)

	// Name returns the rule's name for logging purposes.
	Name() string
}

type ruleFunc[Req, Out any] struct {
	name string
	fn   func(ctx context.Context, req Req) (Out, bool)
}

func (r ruleFunc[Req, Out]) Check(ctx context.Context, req Req) (Out, bool) {
	return r.fn(ctx, req)
}

func (r ruleFunc[Req, Out]) Name() string {
	return r.name
}

// NewRule wraps a function as a Rule.
func NewRule[Req, Out any](name string, fn func(ctx context.Context, req Req) (Out, bool)) Rule[Req, Out] {
	return ruleFunc[Req, Out]{name: name, fn: fn}
}

// Decision is the result of running a gate.
type Decision[Out any] struct {
	// Denied is true when a rule rejected the request.
	Denied bool

	// Rule is the name of the denying rule.
	Rule string

	// Outcome is the denying rule's outcome. Zero when admitted.
	Outcome Out
}

type config struct {
	name   string
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*config)

// WithName sets the gate name used in log records.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets a custom logger for the gate.
// If not set, a discarding logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Gate is an ordered list of rules.
// A Gate is built once and is safe for concurrent use afterwards.
type Gate[Req, Out any] struct {
	rules []Rule[Req, Out]
	cfg   config
}

// New creates an empty gate.
func New[Req, Out any](opts ...Option) *Gate[Req, Out] {
	g := &Gate[Req, Out]{}
	for _, opt := range opts {
		opt(&g.cfg)
	}
	if g.cfg.logger == nil {
		g.cfg.logger = slog.New(slog.DiscardHandler)
	}
	return g
}

// Add appends rules. Rules are evaluated in the order they are added.
func (g *Gate[Req, Out]) Add(rules ...Rule[Req, Out]) *Gate[Req, Out] {
	g.rules = append(g.rules, rules...)
	return g
}

// Evaluate runs the rules in order and stops at the first denial.
func (g *Gate[Req, Out]) Evaluate(ctx context.Context, req Req) Decision[Out] {
	for _, rule := range g.rules {
		out, denied := rule.Check(ctx, req)
		if !denied {
			continue
		}
		g.cfg.logger.Debug("request denied",
			"gate", g.cfg.name,
			"rule", rule.Name(),
		)
		return Decision[Out]{Denied: true, Rule: rule.Name(), Outcome: out}
	}
	return Decision[Out]{}
}

// RuleCount returns the number of rules in the gate.
func (g *Gate[Req, Out]) RuleCount() int {
	return len(g.rules)
}

// RuleNames returns the names of all rules in evaluation order.
func (g *Gate[Req, Out]) RuleNames() []string {
	names := make([]string, len(g.rules))
	for i, r := range g.rules {
		names[i] = r.Name()
	}
	return names
}
