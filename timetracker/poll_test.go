//go:build unit

package timetracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/timetracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPoll_RemainingAndExceeded(t *testing.T) {
	clock := newFakeClock()
	p := timetracker.NewPoll(time.Second, 10, timetracker.WithPollClock(clock.Now))
	p.Start()

	assert.Equal(t, time.Second, p.Remaining())
	assert.False(t, p.Exceeded())

	clock.Advance(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, p.Remaining())

	clock.Advance(time.Second)
	assert.Equal(t, time.Duration(0), p.Remaining())
	assert.True(t, p.Exceeded())
}

func TestPoll_ZeroBudgetIsExceeded(t *testing.T) {
	p := timetracker.NewPoll(0, 10)
	p.Start()

	assert.True(t, p.Exceeded())
	assert.False(t, p.Retryable())
}

func TestPoll_Checkpoint(t *testing.T) {
	clock := newFakeClock()
	p := timetracker.NewPoll(time.Second, 10, timetracker.WithPollClock(clock.Now))
	p.Start()

	clock.Advance(250 * time.Millisecond)
	p.Checkpoint()
	clock.Advance(100 * time.Millisecond)

	assert.Equal(t, 250*time.Millisecond, p.Elapsed())
}

func TestPoll_RetryableUntilMaxAttempts(t *testing.T) {
	p := timetracker.NewPoll(time.Hour, 3)
	p.Start()

	for i := 1; i <= 2; i++ {
		p.Attempt()
		require.True(t, p.Retryable(), "attempt %d", i)
	}

	p.Attempt()
	assert.Equal(t, 3, p.Attempts())
	assert.False(t, p.Retryable())
}

func TestPoll_AttemptsSurviveRestart(t *testing.T) {
	p := timetracker.NewPoll(time.Hour, 10)
	p.Start()
	p.Attempt()
	p.Attempt()
	p.Start()

	assert.Equal(t, 2, p.Attempts())
}

func TestPoll_NextBackoffGrowsAndIsBounded(t *testing.T) {
	clock := newFakeClock()
	p := timetracker.NewPoll(
		time.Second, 10,
		timetracker.WithPollClock(clock.Now),
		timetracker.WithStep(backoff.NewFixed(100*time.Millisecond)),
	)
	p.Start()

	p.Attempt()
	assert.Equal(t, 100*time.Millisecond, p.NextBackoff())

	p.Attempt()
	assert.Equal(t, 200*time.Millisecond, p.NextBackoff())

	p.Attempt()
	assert.Equal(t, 300*time.Millisecond, p.NextBackoff())

	clock.Advance(900 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, p.NextBackoff())
}

func TestPoll_Backoff(t *testing.T) {
	p := timetracker.NewPoll(time.Second, 10, timetracker.WithStep(backoff.NewFixed(10*time.Millisecond)))
	p.Start()
	p.Attempt()

	start := time.Now()
	require.NoError(t, p.Backoff(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestPoll_BackoffCancelled(t *testing.T) {
	p := timetracker.NewPoll(time.Hour, 10, timetracker.WithStep(backoff.NewFixed(time.Minute)))
	p.Start()
	p.Attempt()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.Backoff(ctx), context.Canceled)
}
