package timetracker

import (
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Pause tracks the paused state of one partition.
// Consecutive pauses grow the delay exponentially when enabled, capped at the max timeout.
type Pause struct {
	mu sync.Mutex

	timeout     time.Duration
	maxTimeout  time.Duration
	exponential bool
	now         func() time.Time

	delays *backoff.ExponentialBackOff

	pausedAt   time.Time
	endsAt     time.Time
	count      int
	generation uint64
}

type PauseOption func(*Pause)

// WithPauseClock overrides the time source.
func WithPauseClock(now func() time.Time) PauseOption {
	return func(p *Pause) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPause creates a pause of timeout, doubling on each consecutive pause up to maxTimeout
// when exponential is set. A maxTimeout of zero disables the cap.
func NewPause(timeout, maxTimeout time.Duration, exponential bool, opts ...PauseOption) *Pause {
	p := &Pause{
		timeout:     max(timeout, 0),
		maxTimeout:  max(maxTimeout, 0),
		exponential: exponential,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	ceiling := p.maxTimeout
	if ceiling == 0 {
		ceiling = time.Duration(math.MaxInt64)
	}

	p.delays = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.timeout),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(ceiling),
		backoff.WithMaxElapsedTime(0),
	)

	return p
}

// Pause pauses for the next backoff interval.
func (p *Pause) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pauseFor(p.nextInterval())
}

// PauseFor pauses for d, the backoff sequence still advances.
func (p *Pause) PauseFor(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextInterval()
	p.pauseFor(d)
}

func (p *Pause) pauseFor(d time.Duration) {
	p.pausedAt = p.now()
	p.endsAt = p.pausedAt.Add(d)
	p.count++
	p.generation++
}

func (p *Pause) nextInterval() time.Duration {
	if !p.exponential {
		return p.capped(p.timeout)
	}

	return p.capped(p.delays.NextBackOff())
}

func (p *Pause) capped(d time.Duration) time.Duration {
	if p.maxTimeout > 0 && d > p.maxTimeout {
		return p.maxTimeout
	}
	return d
}

// Resume clears the paused state. The backoff sequence is kept so the next pause grows.
func (p *Pause) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pausedAt = time.Time{}
	p.endsAt = time.Time{}
}

// Expiry reports whether the pause has expired, along with the generation of the
// pause in effect. Every Pause or PauseFor starts a new generation.
func (p *Pause) Expiry() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.generation, !p.pausedAt.IsZero() && !p.now().Before(p.endsAt)
}

// Current reports whether the pause of generation is still in effect.
func (p *Pause) Current(generation uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.pausedAt.IsZero() && p.generation == generation
}

// ResumeGeneration resumes only when the pause of generation is still in effect.
// It returns false, leaving the pause untouched, once the partition was paused again.
func (p *Pause) ResumeGeneration(generation uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pausedAt.IsZero() || p.generation != generation {
		return false
	}

	p.pausedAt = time.Time{}
	p.endsAt = time.Time{}
	return true
}

// Reset returns the backoff to its initial timeout.
func (p *Pause) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count = 0
	p.delays.Reset()
}

func (p *Pause) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.pausedAt.IsZero()
}

// Expired reports whether a pause is in effect and its time has passed.
func (p *Pause) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.pausedAt.IsZero() && !p.now().Before(p.endsAt)
}

// Count is the number of pauses since the last Reset.
func (p *Pause) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.count
}

// EndsAt returns when the current pause expires, zero when not paused.
func (p *Pause) EndsAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.endsAt
}
