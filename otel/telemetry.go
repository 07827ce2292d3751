package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-consumer"

// Telemetry holds all OpenTelemetry instruments for the consumer client
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Polling metrics
	MessagesConsumed metric.Int64Counter
	PollDuration     metric.Float64Histogram
	PollRetries      metric.Int64Counter

	// Connection metrics
	ConnectionResets metric.Int64Counter
	Commits          metric.Int64Counter

	// Backpressure metrics
	PartitionPauses  metric.Int64Counter
	PartitionResumes metric.Int64Counter

	// Processing metrics
	ProcessDuration metric.Float64Histogram
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	tel := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	var err error

	if tel.MessagesConsumed, err = meter.Int64Counter(
		"messaging.consumer.messages",
		metric.WithDescription("Records returned by batch polls"),
	); err != nil {
		return nil, err
	}

	if tel.PollDuration, err = meter.Float64Histogram(
		"consumer.poll.duration",
		metric.WithDescription("Time per BatchPoll() call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if tel.PollRetries, err = meter.Int64Counter(
		"consumer.poll.retries",
		metric.WithDescription("Poll attempts retried after a recoverable broker error"),
	); err != nil {
		return nil, err
	}

	if tel.ConnectionResets, err = meter.Int64Counter(
		"consumer.connection.resets",
		metric.WithDescription("Broker connections torn down and rebuilt"),
	); err != nil {
		return nil, err
	}

	if tel.Commits, err = meter.Int64Counter(
		"consumer.commits",
		metric.WithDescription("Offset commits issued"),
	); err != nil {
		return nil, err
	}

	if tel.PartitionPauses, err = meter.Int64Counter(
		"consumer.partition.pauses",
		metric.WithDescription("Partitions paused"),
	); err != nil {
		return nil, err
	}

	if tel.PartitionResumes, err = meter.Int64Counter(
		"consumer.partition.resumes",
		metric.WithDescription("Partitions resumed"),
	); err != nil {
		return nil, err
	}

	if tel.ProcessDuration, err = meter.Float64Histogram(
		"stream.process.duration",
		metric.WithDescription("Handler time per record"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return tel, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
