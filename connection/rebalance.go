package connection

import (
	"context"
	"slices"
	"sync"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
)

var _ kafka.RebalanceCallback = (*RebalanceManager)(nil)

// RebalanceManager records partition assignment changes between two batches.
// Callbacks may run on the broker client's goroutine, so all state is guarded.
type RebalanceManager struct {
	mu       sync.Mutex
	assigned map[kafka.TopicPartition]struct{}
	revoked  map[kafka.TopicPartition]struct{}
	changed  bool

	logger logger.Logger
}

func NewRebalanceManager(l logger.Logger) *RebalanceManager {
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &RebalanceManager{
		assigned: make(map[kafka.TopicPartition]struct{}),
		revoked:  make(map[kafka.TopicPartition]struct{}),
		logger:   l.With("component", "rebalance_manager"),
	}
}

func (m *RebalanceManager) OnAssigned(_ context.Context, partitions []kafka.TopicPartition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changed = true
	for _, tp := range partitions {
		m.assigned[tp] = struct{}{}
		delete(m.revoked, tp)
	}

	m.logger.Info("Partitions assigned", "partitions", partitions)
}

func (m *RebalanceManager) OnRevoked(_ context.Context, partitions []kafka.TopicPartition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changed = true
	for _, tp := range partitions {
		m.revoked[tp] = struct{}{}
		delete(m.assigned, tp)
	}

	m.logger.Info("Partitions revoked", "partitions", partitions)
}

// Changed reports whether any assignment or revocation happened since the last Clear.
func (m *RebalanceManager) Changed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.changed
}

// Revoked returns the partitions revoked since the last Clear.
func (m *RebalanceManager) Revoked() []kafka.TopicPartition {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedPartitions(m.revoked)
}

// Assigned returns the partitions assigned since the last Clear.
func (m *RebalanceManager) Assigned() []kafka.TopicPartition {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedPartitions(m.assigned)
}

func (m *RebalanceManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changed = false
	clear(m.assigned)
	clear(m.revoked)
}

func sortedPartitions(set map[kafka.TopicPartition]struct{}) []kafka.TopicPartition {
	out := make([]kafka.TopicPartition, 0, len(set))
	for tp := range set {
		out = append(out, tp)
	}

	slices.SortFunc(
		out, func(a, b kafka.TopicPartition) int {
			if a.Topic != b.Topic {
				if a.Topic < b.Topic {
					return -1
				}
				return 1
			}
			return int(a.Partition - b.Partition)
		},
	)

	return out
}
