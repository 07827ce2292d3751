//go:build unit

package kafka_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code kafka.ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, kafka.CodeTimeout},
		{"rebalance", kerr.RebalanceInProgress, kafka.CodeRebalanceInProgress},
		{"wrapped rebalance", fmt.Errorf("poll: %w", kerr.RebalanceInProgress), kafka.CodeRebalanceInProgress},
		{"unknown member", kerr.UnknownMemberID, kafka.CodeMaxPollExceeded},
		{"illegal generation", kerr.IllegalGeneration, kafka.CodeMaxPollExceeded},
		{"client closed", kgo.ErrClientClosed, kafka.CodeTransport},
		{"eof", io.EOF, kafka.CodeTransport},
		{"connection refused", syscall.ECONNREFUSED, kafka.CodeTransport},
		{"no offset", kafka.ErrNoOffset, kafka.CodeNoOffset},
		{"other", errors.New("boom"), kafka.CodeUnknown},
		{"broker error", kerr.TopicAuthorizationFailed, kafka.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				err := kafka.ClassifyError(tt.err)
				require.Equal(t, tt.code, kafka.CodeOf(err))
				require.ErrorIs(t, err, tt.err)
			},
		)
	}
}

func TestClassifyError_KeepsExistingCode(t *testing.T) {
	t.Parallel()
	original := kafka.NewBrokerError(kafka.CodeTransport, errors.New("socket closed"))

	require.Same(t, original, kafka.ClassifyError(original))
	require.NoError(t, kafka.ClassifyError(nil))
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	require.True(t, kafka.IsRecoverable(kafka.NewBrokerError(kafka.CodeRebalanceInProgress, nil)))
	require.True(t, kafka.IsRecoverable(kafka.NewBrokerError(kafka.CodeMaxPollExceeded, nil)))
	require.True(t, kafka.IsRecoverable(fmt.Errorf("wrapped: %w", kafka.NewBrokerError(kafka.CodeTransport, nil))))
	require.False(t, kafka.IsRecoverable(kafka.NewBrokerError(kafka.CodeNoOffset, nil)))
	require.False(t, kafka.IsRecoverable(kafka.NewBrokerError(kafka.CodeTimeout, nil)))
	require.False(t, kafka.IsRecoverable(errors.New("plain")))
}

func TestBrokerError_Message(t *testing.T) {
	t.Parallel()

	require.Equal(t, "broker error: no_offset", kafka.NewBrokerError(kafka.CodeNoOffset, nil).Error())
	require.Equal(
		t, "broker error (transport): reset by peer",
		kafka.NewBrokerError(kafka.CodeTransport, errors.New("reset by peer")).Error(),
	)
}
