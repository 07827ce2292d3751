package committer

import (
	"sync"
	"time"
)

var _ Committer = (*PeriodicCommitter)(nil)

type PeriodicCommitterConfig struct {
	MaxInterval time.Duration
	MaxCount    int
}

type PeriodicCommitterOption func(*PeriodicCommitterConfig)

func WithMaxInterval(d time.Duration) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		if d > 0 {
			cfg.MaxInterval = d
		}
	}
}

func WithMaxCount(c int) PeriodicCommitterOption {
	return func(cfg *PeriodicCommitterConfig) {
		if c > 0 {
			cfg.MaxCount = c
		}
	}
}

// PeriodicCommitter asks for a commit once MaxCount records were processed or
// MaxInterval passed since the last commit, whichever comes first.
type PeriodicCommitter struct {
	c   PeriodicCommitterConfig
	now func() time.Time

	mu         sync.Mutex
	count      int
	lastCommit time.Time
	inFlight   bool
}

func NewPeriodicCommitter(opts ...PeriodicCommitterOption) *PeriodicCommitter {
	return newPeriodicCommitter(time.Now, opts...)
}

func newPeriodicCommitter(now func() time.Time, opts ...PeriodicCommitterOption) *PeriodicCommitter {
	cfg := PeriodicCommitterConfig{
		MaxInterval: 5 * time.Second,
		MaxCount:    100,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &PeriodicCommitter{
		c:          cfg,
		now:        now,
		lastCommit: now(),
	}
}

func (p *PeriodicCommitter) RecordProcessed(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count += count
}

func (p *PeriodicCommitter) TryCommit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight || p.count <= 0 {
		return false
	}

	if p.count < p.c.MaxCount && p.now().Sub(p.lastCommit) < p.c.MaxInterval {
		return false
	}

	p.inFlight = true
	return true
}

// UnlockCommit releases the gate. A failed commit keeps the pending count so the
// next TryCommit asks again.
func (p *PeriodicCommitter) UnlockCommit(committed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight = false
	if committed {
		p.count = 0
		p.lastCommit = p.now()
	}
}

// Pending returns the records processed since the last successful commit.
func (p *PeriodicCommitter) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.count
}
