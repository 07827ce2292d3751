//go:build unit

package errorhandler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
)

func TestNewErrorContext(t *testing.T) {
	record := kafka.ConsumerRecord{
		Key:   []byte("key-123"),
		Value: []byte("value-123"),
		Headers: []kafka.Header{
			{Key: "header-1", Value: []byte("value-1")},
		},
		Topic:       "test-topic",
		Partition:   1,
		Offset:      10,
		LeaderEpoch: 2,
		Timestamp:   time.Now(),
	}

	ec := errorhandler.NewErrorContext(record, nil)

	require.Equal(t, record, ec.Record)
	require.Nil(t, ec.Error)
	require.Equal(t, 1, ec.Attempt)
	require.Zero(t, ec.Pauses)
}

func TestErrorContext_Builders(t *testing.T) {
	testErr := errors.New("boom")
	base := errorhandler.NewErrorContext(kafka.ConsumerRecord{Topic: "t"}, nil)

	ec := base.WithError(testErr).WithAttempt(3).WithPauses(2).IncrementAttempt()

	require.ErrorIs(t, ec.Error, testErr)
	require.Equal(t, 4, ec.Attempt)
	require.Equal(t, 2, ec.Pauses)

	require.Nil(t, base.Error, "builders return copies")
	require.Equal(t, 1, base.Attempt)
}

func TestActionType_String(t *testing.T) {
	require.Equal(t, "Pause", errorhandler.ActionPause{}.Type().String())
	require.Equal(t, "Continue", errorhandler.ActionContinue{}.Type().String())
	require.Equal(t, "Retry", errorhandler.ActionRetry{}.Type().String())
	require.Equal(t, "Fail", errorhandler.ActionFail{}.Type().String())
	require.Equal(t, "Unknown", errorhandler.ActionType(42).String())
}
