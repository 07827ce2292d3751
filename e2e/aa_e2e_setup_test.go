//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/connection"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	consumeWait  = 20 * time.Second
	eventualWait = 15 * time.Second
	shutdownWait = 10 * time.Second
)

// newCluster starts an in-process cluster with the given topics and returns its
// bootstrap address. The cluster is closed via t.Cleanup.
func newCluster(t *testing.T, partitions int32, topics ...string) string {
	t.Helper()

	cluster, err := kfake.NewCluster(
		kfake.NumBrokers(1),
		kfake.SeedTopics(partitions, topics...),
	)
	require.NoError(t, err)
	t.Cleanup(cluster.Close)

	addrs := cluster.ListenAddrs()
	require.NotEmpty(t, addrs)

	return addrs[0]
}

func testTopicName(suffix string) string {
	return fmt.Sprintf("e2e-%s-%d", suffix, time.Now().UnixNano())
}

func subscriptionGroup(broker, groupID string, topics ...string) config.SubscriptionGroup {
	g := config.SubscriptionGroup{
		ID:          groupID,
		MaxWaitTime: 200 * time.Millisecond,
		MaxMessages: 50,
		Kafka: map[string]string{
			kafka.BootstrapServers: broker,
			kafka.AutoOffsetReset:  "earliest",
			kafka.FetchWaitMaxMs:   "50",
		},
	}
	for _, topic := range topics {
		g.Topics = append(g.Topics, config.Topic{Name: topic})
	}
	return g
}

func newClient(t *testing.T, group config.SubscriptionGroup, opts ...connection.ClientOption) *connection.Client {
	t.Helper()

	opts = append([]connection.ClientOption{connection.WithConnectionBuilder(kafka.NewKgoConnectionBuilder())}, opts...)

	c, err := connection.NewClient(group, opts...)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			_ = c.Close(context.Background())
		},
	)

	return c
}

type produced struct {
	Partition int32
	Key       string
	Value     string
}

// produceRecords writes records in order, each to its own partition.
func produceRecords(t *testing.T, broker, topic string, records ...produced) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	)
	require.NoError(t, err)
	defer client.Close()

	for i, r := range records {
		rec := &kgo.Record{
			Topic:     topic,
			Partition: r.Partition,
			Key:       []byte(r.Key),
			Value:     []byte(r.Value),
		}
		require.NoError(t, client.ProduceSync(ctx, rec).FirstErr(), "produce record %d", i)
	}
}

func sequence(partition int32, n int) []produced {
	out := make([]produced, n)
	for i := range out {
		out[i] = produced{
			Partition: partition,
			Key:       fmt.Sprintf("p%d-key-%d", partition, i),
			Value:     fmt.Sprintf("value-%d", i),
		}
	}
	return out
}

func getCommittedOffsets(t *testing.T, broker, groupID string) map[string]map[int32]int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	offsets, err := kadm.NewClient(client).FetchOffsets(ctx, groupID)
	if err != nil {
		return nil
	}

	result := make(map[string]map[int32]int64)
	offsets.Each(
		func(o kadm.OffsetResponse) {
			if _, ok := result[o.Topic]; !ok {
				result[o.Topic] = make(map[int32]int64)
			}
			result[o.Topic][o.Partition] = o.Offset.At
		},
	)

	return result
}

func getConsumerGroupMembers(t *testing.T, broker, groupID string) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	groups, err := kadm.NewClient(client).DescribeGroups(ctx, groupID)
	if err != nil {
		return 0
	}

	group, ok := groups[groupID]
	if !ok {
		return 0
	}

	return len(group.Members)
}

func waitForCommitted(t *testing.T, broker, groupID, topic string, partition int32, offset int64) {
	t.Helper()

	require.Eventually(
		t, func() bool {
			return getCommittedOffsets(t, broker, groupID)[topic][partition] >= offset
		}, eventualWait, 100*time.Millisecond, "offset %d not committed on %s-%d", offset, topic, partition,
	)
}

// collector is a connection.Handler remembering every record it saw.
type collector struct {
	mu   sync.Mutex
	seen []kafka.ConsumerRecord
	fn   func(kafka.ConsumerRecord) error
}

func (c *collector) Handle(_ context.Context, rec kafka.ConsumerRecord) error {
	c.mu.Lock()
	c.seen = append(c.seen, rec)
	fn := c.fn
	c.mu.Unlock()

	if fn != nil {
		return fn(rec)
	}
	return nil
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seen)
}

func (c *collector) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, len(c.seen))
	for i, r := range c.seen {
		keys[i] = string(r.Key)
	}
	return keys
}

func (c *collector) KeysByPartition() map[int32][]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int32][]string)
	for _, r := range c.seen {
		out[r.Partition] = append(out[r.Partition], string(r.Key))
	}
	return out
}

func runListener(t *testing.T, l *connection.Listener) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Run(ctx)
	}()

	t.Cleanup(cancel)
	return cancel, errCh
}

func waitForShutdown(t *testing.T, errCh <-chan error) {
	t.Helper()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(shutdownWait):
		t.Fatal("timeout waiting for listener shutdown")
	}
}

func keys(records []produced) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}
