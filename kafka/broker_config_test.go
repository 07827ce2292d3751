//go:build unit

package kafka

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseBrokerConfig() map[string]string {
	return map[string]string{
		BootstrapServers: "localhost:9092, localhost:9093",
		GroupID:          "orders-group",
	}
}

func TestBrokerOpts_RequiresBootstrapAndGroup(t *testing.T) {
	t.Parallel()

	_, err := brokerOpts(map[string]string{GroupID: "g"})
	require.ErrorContains(t, err, BootstrapServers)

	_, err = brokerOpts(map[string]string{BootstrapServers: "localhost:9092"})
	require.ErrorContains(t, err, GroupID)
}

func TestBrokerOpts_TranslatesKnownSettings(t *testing.T) {
	t.Parallel()

	cfg := baseBrokerConfig()
	cfg[ClientID] = "consumer-1"
	cfg[SessionTimeoutMs] = "30000"
	cfg[HeartbeatIntervalMs] = "3000"
	cfg[MaxPollIntervalMs] = "300000"
	cfg[AutoOffsetReset] = "earliest"
	cfg[FetchMaxBytes] = "1048576"
	cfg[PartitionAssignment] = "cooperative-sticky"
	cfg[EnableAutoCommit] = "false"

	opts, err := brokerOpts(cfg)
	require.NoError(t, err)
	// auto commit disabling is always prepended, enable.auto.commit=false adds nothing
	require.Len(t, opts, 1+len(cfg)-1)
}

func TestBrokerOpts_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative timeout", SessionTimeoutMs, "-1"},
		{"non numeric timeout", HeartbeatIntervalMs, "soon"},
		{"unknown reset", AutoOffsetReset, "middle"},
		{"unknown balancer", PartitionAssignment, "random"},
		{"auto commit", EnableAutoCommit, "true"},
		{"auto offset store", EnableAutoOffsetStore, "true"},
		{"oversized bytes", FetchMaxBytes, "99999999999"},
		{"unsupported key", "socket.keepalive.enable", "true"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				cfg := baseBrokerConfig()
				cfg[tt.key] = tt.value

				_, err := brokerOpts(cfg)
				require.Error(t, err)
				require.ErrorContains(t, err, tt.key)
			},
		)
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"a:1", "b:2"}, splitList(" a:1 ,, b:2 "))
	require.Empty(t, splitList(""))
}
