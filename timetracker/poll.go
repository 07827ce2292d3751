// Package timetracker holds the time based state machines used by the consumer client:
// the Poll budget bounding a polling operation and its retries, and the Pause tracking
// a single partition's backoff.
package timetracker

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
)

const DefaultPollBackoffStep = 100 * time.Millisecond

// Poll is a time and attempt budget for one logical polling operation.
// It is not safe for concurrent use, each operation owns its own instance.
type Poll struct {
	total       time.Duration
	maxAttempts int
	step        backoff.Backoff
	now         func() time.Time

	origin     time.Time
	deadline   time.Time
	checkpoint time.Time
	attempts   int
}

type PollOption func(*Poll)

// WithStep sets the backoff step, the delay before retry n is step.Next(n) * n.
func WithStep(b backoff.Backoff) PollOption {
	return func(p *Poll) {
		if b != nil {
			p.step = b
		}
	}
}

// WithPollClock overrides the time source.
func WithPollClock(now func() time.Time) PollOption {
	return func(p *Poll) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoll(total time.Duration, maxAttempts int, opts ...PollOption) *Poll {
	p := &Poll{
		total:       max(total, 0),
		maxAttempts: maxAttempts,
		step:        backoff.NewFixed(DefaultPollBackoffStep),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start sets the origin of the budget. Attempts are kept.
func (p *Poll) Start() {
	p.origin = p.now()
	p.deadline = p.origin.Add(p.total)
	p.checkpoint = p.origin
}

// Attempt counts a new attempt of the guarded operation.
func (p *Poll) Attempt() {
	p.attempts++
}

func (p *Poll) Attempts() int {
	return p.attempts
}

func (p *Poll) Remaining() time.Duration {
	return max(p.deadline.Sub(p.now()), 0)
}

func (p *Poll) Exceeded() bool {
	return p.Remaining() == 0
}

// Checkpoint records progress, see Elapsed.
func (p *Poll) Checkpoint() {
	p.checkpoint = p.now()
}

// Elapsed is the time between Start and the last Checkpoint.
func (p *Poll) Elapsed() time.Duration {
	return p.checkpoint.Sub(p.origin)
}

// Retryable reports whether another attempt may be made.
func (p *Poll) Retryable() bool {
	return p.attempts < p.maxAttempts && !p.Exceeded()
}

// NextBackoff is the delay Backoff will wait for, bounded by the remaining budget.
func (p *Poll) NextBackoff() time.Duration {
	attempts := max(p.attempts, 1)
	d := p.step.Next(uint(attempts)) * time.Duration(attempts)

	return min(d, p.Remaining())
}

// Backoff blocks for NextBackoff or until ctx is done.
func (p *Poll) Backoff(ctx context.Context) error {
	d := p.NextBackoff()
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
