package kafka

import (
	"context"
	"time"
)

// Connection is a single live consumer session against the brokers.
// Implementations are not expected to be safe against use after Close.
type Connection interface {
	// Poll waits up to timeout for the next record.
	// A nil record with a nil error means the timeout elapsed without data.
	Poll(ctx context.Context, timeout time.Duration) (*ConsumerRecord, error)

	Pause(partitions ...TopicPartition) error
	Resume(partitions ...TopicPartition) error
	Seek(target PauseTarget) error

	// Assignment returns the partitions currently owned by this session, by topic.
	Assignment() map[string][]int32

	// StoreOffset records the record as processed, it is flushed by the next Commit.
	StoreOffset(record ConsumerRecord) error
	// Commit flushes stored offsets. It fails with a CodeNoOffset BrokerError when
	// nothing is stored.
	Commit(ctx context.Context, async bool) error

	Subscribe(topics []string, rebalanceCb RebalanceCallback) error
	Close()
}

// ConnectionBuilder creates a new, unsubscribed connection from broker settings.
type ConnectionBuilder func(brokerConfig map[string]string) (Connection, error)

type RebalanceCallback interface {
	OnAssigned(ctx context.Context, partitions []TopicPartition)
	OnRevoked(ctx context.Context, partitions []TopicPartition)
}
