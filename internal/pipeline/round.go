package pipeline

import (
	"time"
)

// Round collects what one maintenance round did.
type Round struct {
	// Started is when the round began.
	Started time.Time

	// Greeted is the number of peers that answered a greeting.
	Greeted int

	// Failed is the number of peers that could not be greeted.
	Failed int

	// Learned is the number of descriptors merged into the directory.
	Learned int

	// Saved is the number of peers written to the store.
	Saved int

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// TimedOut is set when the round was cancelled before all steps ran.
	TimedOut bool

	// Error is the last step failure, if any.
	Error error
}

// NewRound creates an empty round started at now.
func NewRound(now time.Time) *Round {
	return &Round{Started: now.UTC()}
}

// record adds the outcomes of a sweep to the round.
func (r *Round) record(outcomes []Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			r.Failed++
			continue
		}
		r.Greeted++
		r.Learned += o.Result.Learned
	}
}
