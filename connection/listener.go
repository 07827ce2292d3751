package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes a single record.
type Handler interface {
	Handle(ctx context.Context, record kafka.ConsumerRecord) error
}

type HandlerFunc func(ctx context.Context, record kafka.ConsumerRecord) error

func (f HandlerFunc) Handle(ctx context.Context, record kafka.ConsumerRecord) error {
	return f(ctx, record)
}

// ErrHandlerFailed wraps the error of a record the error handler decided to fail on.
var ErrHandlerFailed = errors.New("record handler failed")

// Listener drives a Client: it resumes expired pauses, polls a batch, hands every
// record to the Handler and commits periodically.
type Listener struct {
	client  *Client
	pauses  *PausesManager
	handler Handler
	config  ListenerConfig

	logger    logger.Logger
	telemetry *otel.Telemetry
}

func NewListener(client *Client, pauses *PausesManager, handler Handler, opts ...ListenerOption) *Listener {
	cfg := defaultListenerConfig()
	for _, opt := range opts {
		opt.applyListener(&cfg)
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = errorhandler.LogAndPause(cfg.Logger)
	}

	return &Listener{
		client:    client,
		pauses:    pauses,
		handler:   handler,
		config:    cfg,
		logger:    cfg.Logger.With("component", "listener", "group", client.SubscriptionGroup().ID),
		telemetry: cfg.Telemetry,
	}
}

// Run fetches and processes batches until ctx is cancelled or a fatal error occurs.
// On exit the client is stopped, committing stored offsets, and pauses are cleared.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("Listener started", "topics", l.client.SubscriptionGroup().TopicNames())

	var runErr error
	for ctx.Err() == nil {
		if err := l.fetchLoop(ctx); err != nil {
			l.logger.Error("Fatal error in listener", "error", err)
			runErr = err
			break
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), l.config.ShutdownTimeout)
	defer cancel()

	if err := l.client.Stop(stopCtx); err != nil {
		l.logger.Error("Failed to stop client", "error", err)
		runErr = errors.Join(runErr, err)
	}

	l.pauses.Clear()
	l.logger.Info("Listener stopped")

	return runErr
}

// fetchLoop runs one iteration: resume, poll, process, commit.
func (l *Listener) fetchLoop(ctx context.Context) error {
	l.resumeExpired()

	buffer, err := l.client.BatchPoll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("batch poll: %w", err)
	}

	processed := 0
	for tp, records := range buffer.Partitions() {
		n, err := l.processPartition(ctx, tp, records)
		processed += n
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	return l.commit(ctx, processed)
}

func (l *Listener) resumeExpired() {
	l.pauses.Resume(
		func(topic string, partition int32) {
			if err := l.client.Resume(topic, partition); err != nil {
				l.logger.Warn("Failed to resume partition", "topic", topic, "partition", partition, "error", err)
			}
		},
	)
}

// processPartition handles records of one partition in order. It stops at the first
// record the error handler pauses on, the rest is fetched again after the pause.
func (l *Listener) processPartition(
	ctx context.Context, tp kafka.TopicPartition, records []kafka.ConsumerRecord,
) (int, error) {
	topic, _ := l.client.SubscriptionGroup().Topic(tp.Topic)

	processed := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return processed, nil
		}

		action, herr := l.handle(ctx, rec)

		switch action.Type() {
		case errorhandler.ActionTypePause:
			l.pausePartition(rec)
			return processed, nil

		case errorhandler.ActionTypeFail:
			return processed, fmt.Errorf("%w: %s@%d: %w", ErrHandlerFailed, tp, rec.Offset, herr)

		default:
			if !topic.ManualOffsetManagement {
				if err := l.client.MarkAsConsumed(rec); err != nil {
					return processed, fmt.Errorf("mark consumed %s@%d: %w", tp, rec.Offset, err)
				}
			}

			if pause, ok := l.pauses.Lookup(tp.Topic, tp.Partition); ok {
				pause.Reset()
			}
			processed++
		}
	}

	return processed, nil
}

// handle runs the handler, retrying in place while the error handler asks for it.
// Success yields ActionContinue and a nil error, otherwise the last handler error is
// returned with the decided action.
func (l *Listener) handle(ctx context.Context, rec kafka.ConsumerRecord) (errorhandler.Action, error) {
	ec := errorhandler.NewErrorContext(rec, nil)

	for {
		err := l.process(ctx, rec)
		if err == nil {
			return errorhandler.ActionContinue{}, nil
		}

		if pause, ok := l.pauses.Lookup(rec.Topic, rec.Partition); ok {
			ec = ec.WithPauses(pause.Count())
		}

		action := l.config.ErrorHandler.Handle(ctx, ec.WithError(err))
		if action.Type() != errorhandler.ActionTypeRetry {
			return action, err
		}

		ec = ec.IncrementAttempt()
	}
}

func (l *Listener) process(ctx context.Context, rec kafka.ConsumerRecord) error {
	start := time.Now()

	parent := l.telemetry.Propagator.Extract(ctx, otel.NewRecordCarrier(&rec))
	spanCtx, span := l.telemetry.Tracer.Start(
		parent, "process "+rec.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			otel.AttrTopic.String(rec.Topic),
			otel.AttrPartition.Int(int(rec.Partition)),
			otel.AttrOffset.Int64(rec.Offset),
		),
	)
	defer span.End()

	err := l.handler.Handle(spanCtx, rec)

	status := otel.StatusSuccess
	if err != nil {
		status = otel.StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	l.telemetry.ProcessDuration.Record(
		ctx, time.Since(start).Seconds(),
		metric.WithAttributes(otel.AttrTopic.String(rec.Topic), otel.AttrProcessState.String(status)),
	)

	return err
}

func (l *Listener) pausePartition(rec kafka.ConsumerRecord) {
	pause := l.pauses.Fetch(rec.Topic, rec.Partition)
	pause.Pause()

	if err := l.client.Pause(rec.Topic, rec.Partition, rec.Offset); err != nil {
		l.logger.Warn("Failed to pause partition", "partition", rec.TopicPartition().String(), "error", err)
		return
	}

	l.logger.Debug(
		"Partition paused after handler error",
		"partition", rec.TopicPartition().String(),
		"offset", rec.Offset,
		"until", pause.EndsAt(),
		"pauses", pause.Count(),
	)
}

func (l *Listener) commit(ctx context.Context, processed int) error {
	l.config.Committer.RecordProcessed(processed)
	if !l.config.Committer.TryCommit() {
		return nil
	}

	err := l.client.CommitOffsets(ctx, true)
	l.config.Committer.UnlockCommit(err == nil)

	return err
}
