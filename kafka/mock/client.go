package mockkafka

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

var _ kafka.Connection = (*Connection)(nil)

var ErrConnectionClosed = errors.New("mock connection closed")

// Broker is an in-memory stand-in for a cluster. Record queues, committed offsets and
// injected errors live here, so they survive connection resets. Each connection built
// through Builder starts consuming from the committed offsets.
type Broker struct {
	mu sync.Mutex

	recordQueues     map[kafka.TopicPartition][]kafka.ConsumerRecord
	committedOffsets map[kafka.TopicPartition]int64

	connections   []*Connection
	brokerConfigs []map[string]string

	pollDelay     time.Duration
	emptyPollWait time.Duration

	pollErr   func() error
	commitErr func() error
	buildErr  error
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		committedOffsets: make(map[kafka.TopicPartition]int64),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Builder returns a kafka.ConnectionBuilder creating connections against this broker.
func (b *Broker) Builder() kafka.ConnectionBuilder {
	return func(brokerConfig map[string]string) (kafka.Connection, error) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.buildErr != nil {
			return nil, b.buildErr
		}

		cfg := make(map[string]string, len(brokerConfig))
		for k, v := range brokerConfig {
			cfg[k] = v
		}
		b.brokerConfigs = append(b.brokerConfigs, cfg)

		c := newConnection(b)
		b.connections = append(b.connections, c)

		return c, nil
	}
}

// AddRecords appends records to a topic-partition queue.
// Records without an offset continue from the last offset in the queue.
func (b *Broker) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	queue := b.recordQueues[tp]

	for _, r := range records {
		r.Topic = topic
		r.Partition = partition

		if r.Offset == 0 && len(queue) > 0 {
			r.Offset = queue[len(queue)-1].Offset + 1
		}

		queue = append(queue, r)
	}

	b.recordQueues[tp] = queue
}

// SetPollError configures an error to be returned on all Poll calls. Pass nil to clear it.
func (b *Broker) SetPollError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.pollErr = nil
	} else {
		b.pollErr = func() error { return err }
	}
}

// SetPollErrorFunc configures a function to determine Poll errors.
func (b *Broker) SetPollErrorFunc(fn func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pollErr = fn
}

// FailPolls makes the next n Poll calls fail with err, across connections.
func (b *Broker) FailPolls(n int, err error) {
	remaining := n
	b.SetPollErrorFunc(
		func() error {
			if remaining <= 0 {
				return nil
			}
			remaining--
			return err
		},
	)
}

// SetCommitError configures an error to be returned on all Commit calls. Pass nil to clear it.
func (b *Broker) SetCommitError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.commitErr = nil
	} else {
		b.commitErr = func() error { return err }
	}
}

func (b *Broker) SetBuildError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buildErr = err
}

// Connections returns every connection built so far, oldest first.
func (b *Broker) Connections() []*Connection {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*Connection, len(b.connections))
	copy(out, b.connections)
	return out
}

// Latest returns the most recently built connection, nil if none.
func (b *Broker) Latest() *Connection {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.connections) == 0 {
		return nil
	}
	return b.connections[len(b.connections)-1]
}

// BuildCount returns how many connections were built.
func (b *Broker) BuildCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.connections)
}

// BrokerConfigs returns the broker settings each connection was built with.
func (b *Broker) BrokerConfigs() []map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]map[string]string, len(b.brokerConfigs))
	copy(out, b.brokerConfigs)
	return out
}

// CommittedOffset returns the committed offset (next offset to fetch) for a topic-partition.
func (b *Broker) CommittedOffset(tp kafka.TopicPartition) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset, ok := b.committedOffsets[tp]
	return offset, ok
}

func (b *Broker) nextPollError() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pollErr == nil {
		return nil
	}
	return b.pollErr()
}

func (b *Broker) nextCommitError() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.commitErr == nil {
		return nil
	}
	return b.commitErr()
}

func (b *Broker) partitionsFor(topics []string) []kafka.TopicPartition {
	b.mu.Lock()
	defer b.mu.Unlock()

	var partitions []kafka.TopicPartition
	for tp := range b.recordQueues {
		if slices.Contains(topics, tp.Topic) {
			partitions = append(partitions, tp)
		}
	}

	slices.SortFunc(
		partitions, func(a, b kafka.TopicPartition) int {
			if a.Topic != b.Topic {
				if a.Topic < b.Topic {
					return -1
				}
				return 1
			}
			return int(a.Partition - b.Partition)
		},
	)

	return partitions
}

// recordAt returns the first record of tp at or after offset.
func (b *Broker) recordAt(tp kafka.TopicPartition, offset int64) (kafka.ConsumerRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.recordQueues[tp] {
		if r.Offset >= offset {
			return r, true
		}
	}

	return kafka.ConsumerRecord{}, false
}

func (b *Broker) commit(offsets map[kafka.TopicPartition]int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tp, offset := range offsets {
		b.committedOffsets[tp] = offset
	}
}

func (b *Broker) committedOrZero(tp kafka.TopicPartition) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.committedOffsets[tp]
}

// Connection is a mock kafka.Connection. Every call made after Close is counted,
// see UsedAfterClose.
type Connection struct {
	broker *Broker

	mu sync.Mutex

	subscriptions []string
	rebalanceCb   kafka.RebalanceCallback
	subscribed    bool

	assignedPartitions []kafka.TopicPartition
	positions          map[kafka.TopicPartition]int64
	paused             map[kafka.TopicPartition]struct{}
	storedOffsets      map[kafka.TopicPartition]int64
	storedRecords      []kafka.ConsumerRecord
	seeks              []kafka.PauseTarget
	next               int

	pollCalls      int
	pauseCalls     int
	resumeCalls    int
	commitCalls    int
	asyncCommits   int
	useAfterClose  int
	closed         bool
	closeCallCount int
}

func newConnection(b *Broker) *Connection {
	return &Connection{
		broker:        b,
		positions:     make(map[kafka.TopicPartition]int64),
		paused:        make(map[kafka.TopicPartition]struct{}),
		storedOffsets: make(map[kafka.TopicPartition]int64),
	}
}

// guard counts calls made after Close. Must be called with c.mu held.
func (c *Connection) guard() bool {
	if c.closed {
		c.useAfterClose++
		return false
	}
	return true
}

// Subscribe assigns every partition of the broker that has records for topics
// and invokes the rebalance callback.
func (c *Connection) Subscribe(topics []string, rebalanceCb kafka.RebalanceCallback) error {
	c.mu.Lock()

	if !c.guard() {
		c.mu.Unlock()
		return ErrConnectionClosed
	}

	if c.subscribed {
		c.mu.Unlock()
		return errors.New("already subscribed")
	}

	c.subscriptions = topics
	c.rebalanceCb = rebalanceCb
	c.subscribed = true

	partitions := c.broker.partitionsFor(topics)
	c.assignedPartitions = partitions
	for _, tp := range partitions {
		c.positions[tp] = c.broker.committedOrZero(tp)
	}
	c.mu.Unlock()

	if len(partitions) > 0 && rebalanceCb != nil {
		rebalanceCb.OnAssigned(context.Background(), partitions)
	}

	return nil
}

// Poll returns the next record of an assigned, non paused partition, round robin across partitions.
func (c *Connection) Poll(ctx context.Context, timeout time.Duration) (*kafka.ConsumerRecord, error) {
	c.mu.Lock()
	c.pollCalls++
	if !c.guard() {
		c.mu.Unlock()
		return nil, kafka.NewBrokerError(kafka.CodeTransport, ErrConnectionClosed)
	}
	c.mu.Unlock()

	if err := c.broker.nextPollError(); err != nil {
		return nil, err
	}

	if c.broker.pollDelay > 0 {
		if err := wait(ctx, c.broker.pollDelay); err != nil {
			return nil, nil
		}
	}

	if rec, ok := c.nextRecord(); ok {
		return &rec, nil
	}

	if c.broker.emptyPollWait > 0 {
		_ = wait(ctx, min(c.broker.emptyPollWait, timeout))
	}

	return nil, nil
}

func (c *Connection) nextRecord() (kafka.ConsumerRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.assignedPartitions)
	for i := 0; i < n; i++ {
		tp := c.assignedPartitions[(c.next+i)%n]
		if _, paused := c.paused[tp]; paused {
			continue
		}

		rec, ok := c.broker.recordAt(tp, c.positions[tp])
		if !ok {
			continue
		}

		c.positions[tp] = rec.Offset + 1
		c.next = (c.next + i + 1) % n
		return rec, true
	}

	return kafka.ConsumerRecord{}, false
}

func (c *Connection) Pause(partitions ...kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pauseCalls++
	if !c.guard() {
		return ErrConnectionClosed
	}

	for _, tp := range partitions {
		c.paused[tp] = struct{}{}
	}

	return nil
}

func (c *Connection) Resume(partitions ...kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resumeCalls++
	if !c.guard() {
		return ErrConnectionClosed
	}

	for _, tp := range partitions {
		delete(c.paused, tp)
	}

	return nil
}

func (c *Connection) Seek(target kafka.PauseTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.guard() {
		return ErrConnectionClosed
	}

	c.seeks = append(c.seeks, target)
	c.positions[target.TopicPartition()] = target.Offset

	return nil
}

func (c *Connection) Assignment() map[string][]int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.guard()

	out := make(map[string][]int32)
	for _, tp := range c.assignedPartitions {
		out[tp.Topic] = append(out[tp.Topic], tp.Partition)
	}

	return out
}

// StoreOffset stores the next offset to fetch (record offset + 1).
func (c *Connection) StoreOffset(record kafka.ConsumerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.guard() {
		return ErrConnectionClosed
	}

	c.storedRecords = append(c.storedRecords, record)
	c.storedOffsets[record.TopicPartition()] = record.Offset + 1

	return nil
}

// Commit moves stored offsets to the broker. Async commits complete immediately.
func (c *Connection) Commit(ctx context.Context, async bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commitCalls++
	if async {
		c.asyncCommits++
	}

	if !c.guard() {
		return kafka.NewBrokerError(kafka.CodeTransport, ErrConnectionClosed)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := c.broker.nextCommitError(); err != nil {
		return err
	}

	if len(c.storedOffsets) == 0 {
		return kafka.NewBrokerError(kafka.CodeNoOffset, kafka.ErrNoOffset)
	}

	c.broker.commit(c.storedOffsets)
	c.storedOffsets = make(map[kafka.TopicPartition]int64)

	return nil
}

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCallCount++
	c.guard()
	c.closed = true
}

// TriggerAssign simulates a partition assignment event.
func (c *Connection) TriggerAssign(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	cb := c.rebalanceCb
	for _, tp := range partitions {
		if !slices.Contains(c.assignedPartitions, tp) {
			c.assignedPartitions = append(c.assignedPartitions, tp)
			c.positions[tp] = c.broker.committedOrZero(tp)
		}
	}
	c.mu.Unlock()

	if cb != nil {
		cb.OnAssigned(context.Background(), partitions)
	}
}

// TriggerRevoke simulates a partition revocation event.
func (c *Connection) TriggerRevoke(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	cb := c.rebalanceCb

	remaining := make([]kafka.TopicPartition, 0, len(c.assignedPartitions))
	for _, assigned := range c.assignedPartitions {
		if !slices.Contains(partitions, assigned) {
			remaining = append(remaining, assigned)
		}
	}
	c.assignedPartitions = remaining
	c.next = 0

	for _, tp := range partitions {
		delete(c.paused, tp)
		delete(c.storedOffsets, tp)
	}
	c.mu.Unlock()

	if cb != nil {
		cb.OnRevoked(context.Background(), partitions)
	}
}

// Subscriptions returns the topics the connection is subscribed to.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, len(c.subscriptions))
	copy(result, c.subscriptions)
	return result
}

// RebalanceCallback returns the callback registered on Subscribe.
func (c *Connection) RebalanceCallback() kafka.RebalanceCallback {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rebalanceCb
}

// AssignedPartitions returns the currently assigned partitions.
func (c *Connection) AssignedPartitions() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.TopicPartition, len(c.assignedPartitions))
	copy(result, c.assignedPartitions)
	return result
}

// IsPaused reports whether tp is currently paused on this connection.
func (c *Connection) IsPaused(tp kafka.TopicPartition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.paused[tp]
	return ok
}

// Seeks returns every seek target in call order.
func (c *Connection) Seeks() []kafka.PauseTarget {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.PauseTarget, len(c.seeks))
	copy(result, c.seeks)
	return result
}

// StoredRecords returns every record passed to StoreOffset, in call order.
func (c *Connection) StoredRecords() []kafka.ConsumerRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]kafka.ConsumerRecord, len(c.storedRecords))
	copy(result, c.storedRecords)
	return result
}

// StoredOffsets returns offsets stored but not yet committed.
func (c *Connection) StoredOffsets() map[kafka.TopicPartition]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[kafka.TopicPartition]int64, len(c.storedOffsets))
	for k, v := range c.storedOffsets {
		result[k] = v
	}
	return result
}

func (c *Connection) PollCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pollCalls
}

func (c *Connection) PauseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pauseCalls
}

func (c *Connection) ResumeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resumeCalls
}

func (c *Connection) CommitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitCalls
}

func (c *Connection) AsyncCommitCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.asyncCommits
}

// UsedAfterClose returns how many calls reached the connection after it was closed.
func (c *Connection) UsedAfterClose() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.useAfterClose
}

// IsClosed returns whether Close has been called.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
