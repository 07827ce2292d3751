package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Connection = (*KgoConnection)(nil)

type KgoConnectionConfig struct {
	// RevokeCommitTimeout bounds the commit of stored offsets for revoked partitions.
	RevokeCommitTimeout time.Duration
	Hooks               []kgo.Hook
	Opts                []kgo.Opt

	Logger logger.Logger
}

func defaultKgoConnectionConfig() KgoConnectionConfig {
	return KgoConnectionConfig{
		RevokeCommitTimeout: 10 * time.Second,
		Logger:              logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoConnectionConfig)

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoConnectionConfig) {
		cfg.Logger = l
	}
}

// WithHooks registers franz-go hooks (eg. kprom metrics) on every connection.
func WithHooks(hooks ...kgo.Hook) KgoOption {
	return func(cfg *KgoConnectionConfig) {
		cfg.Hooks = append(cfg.Hooks, hooks...)
	}
}

// WithKgoOpts appends raw franz-go options after the broker settings.
func WithKgoOpts(opts ...kgo.Opt) KgoOption {
	return func(cfg *KgoConnectionConfig) {
		cfg.Opts = append(cfg.Opts, opts...)
	}
}

func WithRevokeCommitTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoConnectionConfig) {
		if d > 0 {
			cfg.RevokeCommitTimeout = d
		}
	}
}

// KgoConnection is a Connection backed by a franz-go group consumer.
type KgoConnection struct {
	client *kgo.Client
	config KgoConnectionConfig

	mu          sync.RWMutex
	subscribed  bool
	rebalanceCb RebalanceCallback
	assigned    map[string]map[int32]struct{}
	stored      map[string]map[int32]kgo.EpochOffset

	logger logger.Logger
}

// NewKgoConnectionBuilder returns a ConnectionBuilder creating KgoConnections with opts.
func NewKgoConnectionBuilder(opts ...KgoOption) ConnectionBuilder {
	return func(brokerConfig map[string]string) (Connection, error) {
		return NewKgoConnection(brokerConfig, opts...)
	}
}

func NewKgoConnection(brokerConfig map[string]string, opts ...KgoOption) (*KgoConnection, error) {
	cfg := defaultKgoConnectionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoConnection{
		config:   cfg,
		assigned: make(map[string]map[int32]struct{}),
		stored:   make(map[string]map[int32]kgo.EpochOffset),
		logger:   cfg.Logger.With("component", "connection", "group", brokerConfig[GroupID]),
	}

	kgoOpts, err := brokerOpts(brokerConfig)
	if err != nil {
		return nil, err
	}

	kgoOpts = append(
		kgoOpts,
		kgo.OnPartitionsAssigned(kc.onAssigned),
		kgo.OnPartitionsRevoked(kc.onRevoked),
		kgo.OnPartitionsLost(kc.onLost),
		kgo.WithLogger(newKgoLogger(kc.logger)),
	)
	if len(cfg.Hooks) > 0 {
		kgoOpts = append(kgoOpts, kgo.WithHooks(cfg.Hooks...))
	}
	kgoOpts = append(kgoOpts, cfg.Opts...)

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client

	return kc, nil
}

func (k *KgoConnection) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	k.mu.Lock()
	for topic, partitions := range assigned {
		if _, ok := k.assigned[topic]; !ok {
			k.assigned[topic] = make(map[int32]struct{})
		}
		for _, p := range partitions {
			k.assigned[topic][p] = struct{}{}
		}
	}
	cb := k.rebalanceCb
	k.mu.Unlock()

	if cb != nil {
		cb.OnAssigned(ctx, mapToTopicPartitions(assigned))
	}
}

// onRevoked flushes what was stored for the revoked partitions while we still own them.
func (k *KgoConnection) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	pending := k.release(revoked)

	if len(pending) > 0 {
		commitCtx, cancel := context.WithTimeout(ctx, k.config.RevokeCommitTimeout)
		var commitErr error
		k.client.CommitOffsetsSync(
			commitCtx, pending,
			func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
				commitErr = commitResponseError(resp, err)
			},
		)
		cancel()

		if commitErr != nil {
			k.logger.Warn("Failed to commit offsets of revoked partitions", "error", commitErr)
		}
	}

	k.notifyRevoked(ctx, revoked)
}

// onLost drops stored offsets, the partitions already belong to someone else.
func (k *KgoConnection) onLost(ctx context.Context, _ *kgo.Client, lost map[string][]int32) {
	k.release(lost)
	k.logger.Warn("Partitions lost", "partitions", lost)
	k.notifyRevoked(ctx, lost)
}

func (k *KgoConnection) notifyRevoked(ctx context.Context, revoked map[string][]int32) {
	k.mu.RLock()
	cb := k.rebalanceCb
	k.mu.RUnlock()

	if cb != nil {
		cb.OnRevoked(ctx, mapToTopicPartitions(revoked))
	}
}

// release forgets the partitions and returns the offsets that were stored for them.
func (k *KgoConnection) release(partitions map[string][]int32) map[string]map[int32]kgo.EpochOffset {
	k.mu.Lock()
	defer k.mu.Unlock()

	pending := make(map[string]map[int32]kgo.EpochOffset)
	for topic, ps := range partitions {
		for _, p := range ps {
			delete(k.assigned[topic], p)

			if offset, ok := k.stored[topic][p]; ok {
				if _, exists := pending[topic]; !exists {
					pending[topic] = make(map[int32]kgo.EpochOffset)
				}
				pending[topic][p] = offset
				delete(k.stored[topic], p)
			}
		}

		if len(k.assigned[topic]) == 0 {
			delete(k.assigned, topic)
		}
		if len(k.stored[topic]) == 0 {
			delete(k.stored, topic)
		}
	}

	return pending
}

func (k *KgoConnection) Subscribe(topics []string, rebalanceCb RebalanceCallback) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.subscribed {
		return fmt.Errorf("already subscribed")
	}

	k.rebalanceCb = rebalanceCb
	k.client.AddConsumeTopics(topics...)
	k.subscribed = true

	return nil
}

func (k *KgoConnection) Poll(ctx context.Context, timeout time.Duration) (*ConsumerRecord, error) {
	if timeout <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := k.client.PollRecords(ctx, 1)
	if fetches.IsClientClosed() {
		return nil, NewBrokerError(CodeTransport, kgo.ErrClientClosed)
	}

	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}

		return nil, ClassifyError(fmt.Errorf("poll %s-%d: %w", fe.Topic, fe.Partition, fe.Err))
	}

	records := fetches.Records()
	if len(records) == 0 {
		return nil, nil
	}

	rec := convertRecord(records[0])
	return &rec, nil
}

func (k *KgoConnection) Pause(partitions ...TopicPartition) error {
	k.client.PauseFetchPartitions(topicPartitionsToMap(partitions))
	return nil
}

func (k *KgoConnection) Resume(partitions ...TopicPartition) error {
	k.client.ResumeFetchPartitions(topicPartitionsToMap(partitions))
	return nil
}

// Seek moves the fetch position, buffered data for the partition is discarded.
func (k *KgoConnection) Seek(target PauseTarget) error {
	k.client.SetOffsets(
		map[string]map[int32]kgo.EpochOffset{
			target.Topic: {
				target.Partition: {Epoch: -1, Offset: target.Offset},
			},
		},
	)

	return nil
}

func (k *KgoConnection) Assignment() map[string][]int32 {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(map[string][]int32, len(k.assigned))
	for topic, partitions := range k.assigned {
		for p := range partitions {
			out[topic] = append(out[topic], p)
		}
	}

	return out
}

// StoreOffset remembers the position after record. Records of partitions that are
// no longer assigned are ignored, committing them would be rejected by the group.
func (k *KgoConnection) StoreOffset(record ConsumerRecord) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.assigned[record.Topic][record.Partition]; !ok {
		k.logger.Debug(
			"Skipping offset store for unassigned partition",
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
		)
		return nil
	}

	if _, ok := k.stored[record.Topic]; !ok {
		k.stored[record.Topic] = make(map[int32]kgo.EpochOffset)
	}

	k.stored[record.Topic][record.Partition] = kgo.EpochOffset{
		Epoch:  record.LeaderEpoch,
		Offset: record.Offset + 1,
	}

	return nil
}

func (k *KgoConnection) Commit(ctx context.Context, async bool) error {
	offsets := k.storedSnapshot()
	if len(offsets) == 0 {
		return NewBrokerError(CodeNoOffset, ErrNoOffset)
	}

	if async {
		k.client.CommitOffsets(
			ctx, offsets,
			func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
				if err := commitResponseError(resp, err); err != nil {
					k.logger.Warn("Async offset commit failed", "error", err)
					return
				}
				k.clearCommitted(offsets)
			},
		)

		return nil
	}

	var commitErr error
	k.client.CommitOffsetsSync(
		ctx, offsets,
		func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
			commitErr = commitResponseError(resp, err)
		},
	)

	if commitErr != nil {
		return ClassifyError(fmt.Errorf("commit offsets: %w", commitErr))
	}

	k.clearCommitted(offsets)
	return nil
}

func (k *KgoConnection) Close() {
	k.client.Close()
}

func (k *KgoConnection) storedSnapshot() map[string]map[int32]kgo.EpochOffset {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(map[string]map[int32]kgo.EpochOffset, len(k.stored))
	for topic, partitions := range k.stored {
		out[topic] = make(map[int32]kgo.EpochOffset, len(partitions))
		for p, offset := range partitions {
			out[topic][p] = offset
		}
	}

	return out
}

// clearCommitted drops stored offsets that were not overwritten while the commit was in flight.
func (k *KgoConnection) clearCommitted(committed map[string]map[int32]kgo.EpochOffset) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for topic, partitions := range committed {
		for p, offset := range partitions {
			if current, ok := k.stored[topic][p]; ok && current.Offset == offset.Offset {
				delete(k.stored[topic], p)
			}
		}
		if len(k.stored[topic]) == 0 {
			delete(k.stored, topic)
		}
	}
}

func commitResponseError(resp *kmsg.OffsetCommitResponse, err error) error {
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}

	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return fmt.Errorf("%s-%d: %w", t.Topic, p.Partition, err)
			}
		}
	}

	return nil
}

func convertRecord(r *kgo.Record) ConsumerRecord {
	return ConsumerRecord{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		Key:         r.Key,
		Value:       r.Value,
		Headers:     convertFromKgoHeaders(r.Headers),
		Timestamp:   r.Timestamp,
		LeaderEpoch: r.LeaderEpoch,
	}
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
