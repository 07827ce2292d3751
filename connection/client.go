// Package connection runs a consumer on top of a single broker connection: batch
// polling with bounded retries, offset storing and committing, and partition
// pause/resume.
package connection

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/timetracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned when the client is used after Stop.
var ErrClosed = errors.New("client is closed")

// Client owns one broker connection for a subscription group.
//
// BatchPoll must only be called from one goroutine at a time. Every other method is
// safe for concurrent use and serialized with the connection resets BatchPoll performs.
type Client struct {
	group     config.SubscriptionGroup
	config    ClientConfig
	rebalance *RebalanceManager
	buffer    *MessagesBuffer

	mu         sync.Mutex
	conn       kafka.Connection
	closed     bool
	stopped    bool
	offsetting bool

	logger    logger.Logger
	telemetry *otel.Telemetry
	attrs     metric.MeasurementOption
}

// NewClient validates the group and builds the first connection.
func NewClient(group config.SubscriptionGroup, opts ...ClientOption) (*Client, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt.applyClient(&cfg)
	}

	l := cfg.Logger.With("component", "client", "group", group.ID)
	if cfg.Builder == nil {
		cfg.Builder = kafka.NewKgoConnectionBuilder(kafka.WithLogger(cfg.Logger))
	}

	group.Kafka = maps.Clone(group.Kafka)
	if group.Kafka == nil {
		group.Kafka = make(map[string]string)
	}
	if _, ok := group.Kafka[kafka.GroupID]; !ok {
		group.Kafka[kafka.GroupID] = group.ID
	}

	c := &Client{
		group:     group,
		config:    cfg,
		rebalance: NewRebalanceManager(cfg.Logger),
		buffer:    NewMessagesBuffer(),
		logger:    l,
		telemetry: cfg.Telemetry,
		attrs:     metric.WithAttributes(otel.AttrGroup.String(group.ID)),
	}

	conn, err := c.buildConnection()
	if err != nil {
		return nil, err
	}
	c.conn = conn

	return c, nil
}

// BatchPoll fills the buffer until MaxWaitTime elapses, MaxMessages records are
// buffered or a poll returns nothing. The returned buffer is reused by the next call.
func (c *Client) BatchPoll(ctx context.Context) (*MessagesBuffer, error) {
	ctx, span := c.telemetry.Tracer.Start(
		ctx, "receive "+c.group.ID,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(otel.AttrGroup.String(c.group.ID)),
	)
	defer span.End()

	start := time.Now()

	c.buffer.Clear()
	c.rebalance.Clear()

	budget := timetracker.NewPoll(c.group.MaxWaitTime, c.config.MaxPollRetries, timetracker.WithPollClock(c.config.Clock))
	budget.Start()

	var err error
	for {
		if budget.Exceeded() || c.buffer.Size() >= c.group.MaxMessages {
			break
		}

		if err = ctx.Err(); err != nil {
			break
		}

		var rec *kafka.ConsumerRecord
		rec, err = c.poll(ctx, budget.Remaining())
		if err != nil || rec == nil {
			break
		}

		c.buffer.Add(*rec)
		budget.Checkpoint()
	}

	if c.rebalance.Changed() {
		c.dropRevoked()
	}

	status := otel.StatusSuccess
	switch {
	case err != nil:
		status = otel.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case c.buffer.Size() == 0:
		status = otel.StatusEmpty
	}

	span.SetAttributes(attribute.Int("messaging.batch.message_count", c.buffer.Size()))
	c.telemetry.PollDuration.Record(
		ctx, time.Since(start).Seconds(), c.attrs,
		metric.WithAttributes(otel.AttrPollStatus.String(status)),
	)
	c.telemetry.MessagesConsumed.Add(ctx, int64(c.buffer.Size()), c.attrs)

	return c.buffer, err
}

// dropRevoked removes records of partitions revoked during the batch and duplicates
// fetched again after an assignment.
func (c *Client) dropRevoked() {
	for _, tp := range c.rebalance.Revoked() {
		c.buffer.Remove(tp)
	}
	c.buffer.Uniq()
}

// poll fetches a single record within timeout. Recoverable broker errors reset the
// connection and are retried while the budget allows it.
func (c *Client) poll(ctx context.Context, timeout time.Duration) (*kafka.ConsumerRecord, error) {
	budget := timetracker.NewPoll(
		timeout, c.config.MaxPollRetries,
		timetracker.WithStep(c.config.PollRetryBackoff),
		timetracker.WithPollClock(c.config.Clock),
	)
	budget.Start()

	for {
		if budget.Exceeded() {
			return nil, nil
		}

		budget.Attempt()

		rec, err := c.pollOnce(ctx, budget.Remaining())
		if err == nil {
			return rec, nil
		}

		code := kafka.CodeOf(err)
		switch {
		case code == kafka.CodeTimeout:
			return nil, nil
		case !kafka.IsRecoverable(err):
			return nil, err
		case !budget.Retryable():
			return nil, fmt.Errorf("poll gave up after %d attempts: %w", budget.Attempts(), err)
		}

		if c.Stopped() {
			return nil, ErrClosed
		}

		c.logger.Warn(
			"Recoverable poll error, resetting connection",
			"error", err,
			"code", code.String(),
			"attempt", budget.Attempts(),
		)

		if rerr := c.Reset(ctx); rerr != nil {
			if errors.Is(rerr, ErrClosed) {
				return nil, ErrClosed
			}
			return nil, errors.Join(err, rerr)
		}

		budget.Checkpoint()

		if !budget.Retryable() {
			return nil, fmt.Errorf("poll gave up after %d attempts: %w", budget.Attempts(), err)
		}

		c.telemetry.PollRetries.Add(
			ctx, 1, c.attrs,
			metric.WithAttributes(otel.AttrErrorCode.String(code.String())),
		)

		if berr := budget.Backoff(ctx); berr != nil {
			return nil, berr
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, timeout time.Duration) (*kafka.ConsumerRecord, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()

	rec, err := conn.Poll(ctx, timeout)
	return rec, kafka.ClassifyError(err)
}

// StoreOffset marks the record as processed, it is sent with the next commit.
func (c *Client) StoreOffset(record kafka.ConsumerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.offsetting = true
	if err := c.conn.StoreOffset(record); err != nil {
		return fmt.Errorf("store offset %s@%d: %w", record.TopicPartition(), record.Offset, err)
	}

	return nil
}

// CommitOffsets commits stored offsets. Nothing is sent when no offset was stored
// since the last commit.
func (c *Client) CommitOffsets(ctx context.Context, async bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitLocked(ctx, async)
}

// CommitOffsetsSync commits stored offsets and waits for the broker.
func (c *Client) CommitOffsetsSync(ctx context.Context) error {
	return c.CommitOffsets(ctx, false)
}

func (c *Client) commitLocked(ctx context.Context, async bool) error {
	if c.closed || !c.offsetting {
		return nil
	}

	mode := otel.CommitModeSync
	if async {
		mode = otel.CommitModeAsync
	}

	err := kafka.ClassifyError(c.conn.Commit(ctx, async))

	status := otel.StatusSuccess
	switch {
	case err == nil:
	case kafka.CodeOf(err) == kafka.CodeNoOffset:
		status = otel.StatusEmpty
		err = nil
	default:
		status = otel.StatusFailed
	}

	c.telemetry.Commits.Add(
		ctx, 1, c.attrs,
		metric.WithAttributes(otel.AttrCommitMode.String(mode), otel.AttrCommitStatus.String(status)),
	)

	if err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	c.offsetting = false
	return nil
}

// Pause stops fetching a partition and rewinds it to offset so the record at offset is
// delivered again after Resume. It does nothing when the client is closed or the
// partition is not assigned.
func (c *Client) Pause(topic string, partition int32, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.assignedLocked(topic, partition) {
		return nil
	}

	target := kafka.PauseTarget{Topic: topic, Partition: partition, Offset: offset}
	tp := target.TopicPartition()

	if err := c.conn.Pause(tp); err != nil {
		return fmt.Errorf("pause %s: %w", tp, err)
	}

	if err := c.conn.Seek(target); err != nil {
		return fmt.Errorf("seek %s to %d: %w", tp, offset, err)
	}

	c.telemetry.PartitionPauses.Add(
		context.Background(), 1, c.attrs,
		metric.WithAttributes(otel.AttrTopic.String(topic), otel.AttrPartition.Int(int(partition))),
	)
	c.logger.Debug("Partition paused", "partition", tp.String(), "offset", offset)

	return nil
}

// Resume restarts fetching a partition. It does nothing when the client is closed or
// the partition is not assigned.
func (c *Client) Resume(topic string, partition int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.assignedLocked(topic, partition) {
		return nil
	}

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	if err := c.conn.Resume(tp); err != nil {
		return fmt.Errorf("resume %s: %w", tp, err)
	}

	c.telemetry.PartitionResumes.Add(
		context.Background(), 1, c.attrs,
		metric.WithAttributes(otel.AttrTopic.String(topic), otel.AttrPartition.Int(int(partition))),
	)
	c.logger.Debug("Partition resumed", "partition", tp.String())

	return nil
}

func (c *Client) assignedLocked(topic string, partition int32) bool {
	return slices.Contains(c.conn.Assignment()[topic], partition)
}

// MarkAsConsumed stores the record's offset without committing.
func (c *Client) MarkAsConsumed(record kafka.ConsumerRecord) error {
	return c.StoreOffset(record)
}

// MarkAsConsumedSync stores the record's offset and commits synchronously.
func (c *Client) MarkAsConsumedSync(ctx context.Context, record kafka.ConsumerRecord) error {
	if err := c.MarkAsConsumed(record); err != nil {
		return err
	}

	return c.CommitOffsetsSync(ctx)
}

// Reset closes the connection, committing what was stored, and builds a new one for
// the same subscription group. A stopped client is never rebuilt, Reset then
// returns ErrClosed.
func (c *Client) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrClosed
	}

	if err := c.closeLocked(ctx); err != nil {
		c.logger.Warn("Final commit before reset failed", "error", err)
	}

	conn, err := c.buildConnection()
	if err != nil {
		return fmt.Errorf("reset connection: %w", err)
	}

	c.conn = conn
	c.closed = false
	c.offsetting = false

	c.telemetry.ConnectionResets.Add(ctx, 1, c.attrs)
	c.logger.Info("Connection reset")

	return nil
}

// Stop commits stored offsets and closes the connection.
func (c *Client) Stop(ctx context.Context) error {
	return c.Close(ctx)
}

// Close commits stored offsets synchronously and closes the connection for good:
// later resets, including the ones a failing poll in flight would trigger, are
// refused. The connection is closed even when the commit fails. Closing twice is a
// no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true

	return c.closeLocked(ctx)
}

func (c *Client) closeLocked(ctx context.Context) error {
	if c.closed {
		return nil
	}

	err := c.commitLocked(ctx, false)

	c.closed = true
	c.conn.Close()

	return err
}

func (c *Client) buildConnection() (kafka.Connection, error) {
	conn, err := c.config.Builder(c.group.Kafka)
	if err != nil {
		return nil, fmt.Errorf("build connection: %w", err)
	}

	if err := conn.Subscribe(c.group.TopicNames(), c.rebalance); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %v: %w", c.group.TopicNames(), err)
	}

	return conn, nil
}

// RebalanceManager returns the callback registered on every connection.
func (c *Client) RebalanceManager() *RebalanceManager {
	return c.rebalance
}

func (c *Client) SubscriptionGroup() config.SubscriptionGroup {
	return c.group
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Stopped reports whether Stop or Close was called. Unlike Closed it stays false
// while a reset is rebuilding the connection.
func (c *Client) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// Offsetting reports whether offsets were stored since the last successful commit.
func (c *Client) Offsetting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.offsetting
}
