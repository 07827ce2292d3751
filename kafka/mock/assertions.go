package mockkafka

import (
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
)

// AssertBuildCount verifies how many connections the builder created.
func (b *Broker) AssertBuildCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := b.BuildCount()
	require.Equal(tb, expected, actual, "expected %d connections to be built, got %d", expected, actual)
}

// AssertCommittedOffset verifies the committed offset (next offset to fetch) of a topic-partition.
func (b *Broker) AssertCommittedOffset(tb testing.TB, topic string, partition int32, expected int64) {
	tb.Helper()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	actual, ok := b.CommittedOffset(tp)
	require.True(tb, ok, "expected an offset to be committed for %s", tp)
	require.Equal(tb, expected, actual, "expected committed offset %d for %s, got %d", expected, tp, actual)
}

// AssertNotCommitted verifies no offset was ever committed for a topic-partition.
func (b *Broker) AssertNotCommitted(tb testing.TB, topic string, partition int32) {
	tb.Helper()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	actual, ok := b.CommittedOffset(tp)
	require.False(tb, ok, "expected no committed offset for %s, got %d", tp, actual)
}

// AssertNoUseAfterClose verifies no built connection was called after being closed.
func (b *Broker) AssertNoUseAfterClose(tb testing.TB) {
	tb.Helper()

	for i, c := range b.Connections() {
		require.Zero(tb, c.UsedAfterClose(), "connection %d was used after close", i)
	}
}

// AssertClosed verifies that Close was called.
func (c *Connection) AssertClosed(tb testing.TB) {
	tb.Helper()
	require.True(tb, c.IsClosed(), "expected connection to be closed")
}

// AssertNotClosed verifies that Close was not called.
func (c *Connection) AssertNotClosed(tb testing.TB) {
	tb.Helper()
	require.False(tb, c.IsClosed(), "expected connection to not be closed")
}

// AssertSubscribed verifies that the connection is subscribed to the given topics.
func (c *Connection) AssertSubscribed(tb testing.TB, topics ...string) {
	tb.Helper()

	subs := c.Subscriptions()
	for _, topic := range topics {
		require.Contains(tb, subs, topic, "expected subscription to topic %q", topic)
	}
}

// AssertPaused verifies that a topic-partition is paused.
func (c *Connection) AssertPaused(tb testing.TB, topic string, partition int32) {
	tb.Helper()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	require.True(tb, c.IsPaused(tp), "expected %s to be paused", tp)
}

// AssertNotPaused verifies that a topic-partition is not paused.
func (c *Connection) AssertNotPaused(tb testing.TB, topic string, partition int32) {
	tb.Helper()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	require.False(tb, c.IsPaused(tp), "expected %s to not be paused", tp)
}

// AssertSeeked verifies the connection was seeked to the given target.
func (c *Connection) AssertSeeked(tb testing.TB, target kafka.PauseTarget) {
	tb.Helper()
	require.Contains(tb, c.Seeks(), target, "expected seek to %+v", target)
}

// AssertNoSeeks verifies the connection was never seeked.
func (c *Connection) AssertNoSeeks(tb testing.TB) {
	tb.Helper()

	seeks := c.Seeks()
	require.Empty(tb, seeks, "expected no seeks, got %v", seeks)
}

// AssertStored verifies that a record with the given offset was stored for a topic-partition.
func (c *Connection) AssertStored(tb testing.TB, topic string, partition int32, offset int64) {
	tb.Helper()

	for _, r := range c.StoredRecords() {
		if r.Topic == topic && r.Partition == partition && r.Offset == offset {
			return
		}
	}

	tb.Errorf("expected offset %d of %s-%d to be stored, but it was not", offset, topic, partition)
}

// AssertStoredCount verifies how many StoreOffset calls succeeded.
func (c *Connection) AssertStoredCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.StoredRecords())
	require.Equal(tb, expected, actual, "expected %d stored records, got %d", expected, actual)
}

// AssertCommitCalls verifies how many times Commit was called.
func (c *Connection) AssertCommitCalls(tb testing.TB, expected int) {
	tb.Helper()

	actual := c.CommitCalls()
	require.Equal(tb, expected, actual, "expected %d commit calls, got %d", expected, actual)
}
