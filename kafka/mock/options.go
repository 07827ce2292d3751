package mockkafka

import (
	"time"
)

// Option is a functional option for configuring a Broker.
type Option func(*Broker)

// WithPollDelay adds an artificial delay to every Poll call.
// This can be useful for testing timeout behavior.
func WithPollDelay(d time.Duration) Option {
	return func(b *Broker) {
		b.pollDelay = d
	}
}

// WithEmptyPollWait makes Poll wait up to d (bounded by its timeout) when no record is available.
// Default is 0, Poll returns immediately.
func WithEmptyPollWait(d time.Duration) Option {
	return func(b *Broker) {
		b.emptyPollWait = d
	}
}

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(b *Broker) {
		b.pollErr = func() error { return err }
	}
}

// WithCommitError configures an error to be returned by all Commit calls.
func WithCommitError(err error) Option {
	return func(b *Broker) {
		b.commitErr = func() error { return err }
	}
}

// WithBuildError makes the connection builder fail.
func WithBuildError(err error) Option {
	return func(b *Broker) {
		b.buildErr = err
	}
}
