package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/connection"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/plugins/zaplogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/plugin/kprom"
	otelglobal "go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", "consumer.yaml", "path to the consumer config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		panic(err)
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer zl.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zl)
	l := zaplogger.New(zl)

	if err := run(cfg, l); err != nil {
		l.Error("Consumer exited with error", "error", err)
		os.Exit(1)
	}
}

func newZap(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}

func run(cfg config.Config, l logger.Logger) error {
	metrics := &connectionMetrics{}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Metrics server failed", "error", err)
		}
	}()
	defer server.Close()

	tel, err := newTelemetry()
	if err != nil {
		return err
	}

	client, err := connection.NewClient(
		cfg.SubscriptionGroup,
		connection.WithLogger(l),
		connection.WithTelemetry(tel),
		connection.WithConnectionBuilder(metrics.builder(kafka.WithLogger(l))),
	)
	if err != nil {
		return err
	}

	pauses := connection.NewPausesManager(cfg.Pause)

	listener := connection.NewListener(
		client, pauses, connection.HandlerFunc(logRecord(l)),
		connection.WithLogger(l),
		connection.WithTelemetry(tel),
		connection.WithCommitter(
			committer.NewPeriodicCommitter(
				committer.WithMaxInterval(cfg.Commit.Interval),
				committer.WithMaxCount(cfg.Commit.Count),
			),
		),
		connection.WithErrorHandler(
			errorhandler.ActionLogger(l, logger.DebugLevel, errorhandler.LogAndPause(l)),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		<-ctx.Done()
		l.Info("Received termination signal, shutting down...")
	}()

	return listener.Run(ctx)
}

// newTelemetry reads the otel globals. Providers and exporters are installed by
// the embedding program; without them every instrument is a noop.
func newTelemetry() (*otel.Telemetry, error) {
	return otel.NewTelemetry(
		otelglobal.GetTracerProvider(), otelglobal.GetMeterProvider(), otelglobal.GetTextMapPropagator(),
	)
}

func logRecord(l logger.Logger) func(context.Context, kafka.ConsumerRecord) error {
	return func(_ context.Context, rec kafka.ConsumerRecord) error {
		l.Info(
			"Record received",
			"topic", rec.Topic,
			"partition", rec.Partition,
			"offset", rec.Offset,
			"key", string(rec.Key),
		)
		return nil
	}
}

// connectionMetrics serves the kprom metrics of the live connection. A reset
// builds a new kgo client, which gets a fresh registry since kprom registers its
// collectors once per client.
type connectionMetrics struct {
	current atomic.Pointer[kprom.Metrics]
}

func (m *connectionMetrics) builder(opts ...kafka.KgoOption) kafka.ConnectionBuilder {
	return func(brokerConfig map[string]string) (kafka.Connection, error) {
		metrics := kprom.NewMetrics("consumer", kprom.Registry(prometheus.NewRegistry()))

		conn, err := kafka.NewKgoConnection(brokerConfig, append(opts, kafka.WithHooks(metrics))...)
		if err != nil {
			return nil, err
		}

		m.current.Store(metrics)
		return conn, nil
	}
}

func (m *connectionMetrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics := m.current.Load()
	if metrics == nil {
		http.Error(w, "no connection", http.StatusServiceUnavailable)
		return
	}

	metrics.Handler().ServeHTTP(w, r)
}
