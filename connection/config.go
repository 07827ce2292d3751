package connection

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/timetracker"
)

// MaxPollRetries is the number of polls a single poll call may make before a
// recoverable broker error is returned to the caller.
const MaxPollRetries = 10

// BaseConfig is shared by the client and the listener
type BaseConfig struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}

type ClientConfig struct {
	BaseConfig
	Builder          kafka.ConnectionBuilder
	MaxPollRetries   int
	PollRetryBackoff backoff.Backoff
	Clock            func() time.Time
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseConfig:       defaultBaseConfig(),
		MaxPollRetries:   MaxPollRetries,
		PollRetryBackoff: backoff.NewFixed(timetracker.DefaultPollBackoffStep),
		Clock:            time.Now,
	}
}

type ListenerConfig struct {
	BaseConfig
	Committer       committer.Committer
	ErrorHandler    errorhandler.Handler
	ShutdownTimeout time.Duration
}

// defaultListenerConfig leaves ErrorHandler unset, NewListener defaults it to
// errorhandler.LogAndPause with the configured logger.
func defaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		BaseConfig:      defaultBaseConfig(),
		Committer:       committer.NewPeriodicCommitter(),
		ShutdownTimeout: 30 * time.Second,
	}
}
