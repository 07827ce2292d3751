//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestRecordCarrier_Get(t *testing.T) {
	rec := &kafka.ConsumerRecord{
		Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("00-abc-def-01")},
			{Key: "other", Value: []byte("value")},
		},
	}
	carrier := NewRecordCarrier(rec)

	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Equal(t, "value", carrier.Get("other"))
	assert.Equal(t, "", carrier.Get("missing"))
}

func TestRecordCarrier_SetOverwritesDuplicates(t *testing.T) {
	rec := &kafka.ConsumerRecord{
		Headers: []kafka.Header{
			{Key: "k", Value: []byte("1")},
			{Key: "k", Value: []byte("2")},
		},
	}
	carrier := NewRecordCarrier(rec)

	carrier.Set("k", "3")
	carrier.Set("new", "4")

	require.Len(t, rec.Headers, 3)
	assert.Equal(t, "3", string(rec.Headers[0].Value))
	assert.Equal(t, "3", string(rec.Headers[1].Value))
	assert.Equal(t, []string{"k", "k", "new"}, carrier.Keys())
}

func TestRecordCarrier_ExtractTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(
		trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		},
	)

	rec := &kafka.ConsumerRecord{}
	prop := propagation.TraceContext{}
	prop.Inject(trace.ContextWithSpanContext(context.Background(), sc), NewRecordCarrier(rec))

	value, ok := kafka.HeaderValue(rec.Headers, "traceparent")
	require.True(t, ok)
	assert.Contains(t, string(value), traceID.String())

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), NewRecordCarrier(rec)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}
