package connection

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
)

type ClientOption interface {
	applyClient(*ClientConfig)
}

type ListenerOption interface {
	applyListener(*ListenerConfig)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applyClient(c *ClientConfig) {
	c.Logger = o.logger
}

func (o loggerOption) applyListener(c *ListenerConfig) {
	c.Logger = o.logger
}

func WithLogger(l logger.Logger) loggerOption {
	return loggerOption{logger: l}
}

type telemetryOption struct {
	telemetry *otel.Telemetry
}

func (o telemetryOption) applyClient(c *ClientConfig) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func (o telemetryOption) applyListener(c *ListenerConfig) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

// WithTelemetry sets the OpenTelemetry instruments, noop by default
func WithTelemetry(t *otel.Telemetry) telemetryOption {
	return telemetryOption{telemetry: t}
}

type connectionBuilderOption kafka.ConnectionBuilder

func (o connectionBuilderOption) applyClient(c *ClientConfig) {
	if o != nil {
		c.Builder = kafka.ConnectionBuilder(o)
	}
}

// WithConnectionBuilder sets how broker connections are created, franz-go by default
func WithConnectionBuilder(b kafka.ConnectionBuilder) connectionBuilderOption {
	return connectionBuilderOption(b)
}

type pollRetryBackoffOption struct {
	b backoff.Backoff
}

func (o pollRetryBackoffOption) applyClient(c *ClientConfig) {
	if o.b != nil {
		c.PollRetryBackoff = o.b
	}
}

// WithPollRetryBackoff sets the step of the backoff between poll retries.
// Retry n waits b.Next(n) * n.
func WithPollRetryBackoff(b backoff.Backoff) pollRetryBackoffOption {
	return pollRetryBackoffOption{b: b}
}

type maxPollRetriesOption int

func (o maxPollRetriesOption) applyClient(c *ClientConfig) {
	if o > 0 {
		c.MaxPollRetries = int(o)
	}
}

func WithMaxPollRetries(n int) maxPollRetriesOption {
	return maxPollRetriesOption(n)
}

type clockOption func() time.Time

func (o clockOption) applyClient(c *ClientConfig) {
	if o != nil {
		c.Clock = o
	}
}

// WithClock overrides the time source of the poll budgets
func WithClock(now func() time.Time) clockOption {
	return clockOption(now)
}

type committerOption struct {
	c committer.Committer
}

func (o committerOption) applyListener(c *ListenerConfig) {
	if o.c != nil {
		c.Committer = o.c
	}
}

// WithCommitter sets when the listener commits, a periodic committer by default
func WithCommitter(c committer.Committer) committerOption {
	return committerOption{c: c}
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applyListener(c *ListenerConfig) {
	if o.handler != nil {
		c.ErrorHandler = o.handler
	}
}

// WithErrorHandler sets what the listener does with a record its handler failed on
func WithErrorHandler(h errorhandler.Handler) errorHandlerOption {
	return errorHandlerOption{handler: h}
}

type shutdownTimeoutOption time.Duration

func (o shutdownTimeoutOption) applyListener(c *ListenerConfig) {
	if o > 0 {
		c.ShutdownTimeout = time.Duration(o)
	}
}

// WithShutdownTimeout bounds the final commit when the listener stops
func WithShutdownTimeout(d time.Duration) shutdownTimeoutOption {
	return shutdownTimeoutOption(d)
}
