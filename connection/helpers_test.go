//go:build unit

package connection_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/connection"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/stretchr/testify/require"
)

func testGroup(topics ...string) config.SubscriptionGroup {
	g := config.SubscriptionGroup{
		ID:          "test-group",
		MaxWaitTime: time.Second,
		MaxMessages: 100,
		Kafka:       map[string]string{kafka.BootstrapServers: "localhost:9092"},
	}
	for _, t := range topics {
		g.Topics = append(g.Topics, config.Topic{Name: t})
	}
	return g
}

func newClient(
	t *testing.T, broker *mockkafka.Broker, group config.SubscriptionGroup, opts ...connection.ClientOption,
) *connection.Client {
	t.Helper()

	opts = append(
		[]connection.ClientOption{
			connection.WithConnectionBuilder(broker.Builder()),
			connection.WithPollRetryBackoff(backoff.NewFixed(time.Millisecond)),
		},
		opts...,
	)

	c, err := connection.NewClient(group, opts...)
	require.NoError(t, err)

	return c
}

func records(n int) []kafka.ConsumerRecord {
	out := make([]kafka.ConsumerRecord, n)
	for i := range out {
		out[i] = kafka.ConsumerRecord{
			Key:    []byte(fmt.Sprintf("key-%d", i)),
			Value:  []byte(fmt.Sprintf("value-%d", i)),
			Offset: int64(i),
		}
	}
	return out
}

func offsets(recs []kafka.ConsumerRecord) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Offset
	}
	return out
}
