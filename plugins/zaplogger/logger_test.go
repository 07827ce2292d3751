//go:build unit

package zaplogger_test

import (
	"testing"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/plugins/zaplogger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LogsFieldsAtLevel(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	l := zaplogger.New(zap.New(core))

	l.Warn("Partition paused", "topic", "orders", "partition", int32(2))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.WarnLevel, entries[0].Level)
	require.Equal(t, "Partition paused", entries[0].Message)
	require.Equal(t, "orders", entries[0].ContextMap()["topic"])
	require.Equal(t, int32(2), entries[0].ContextMap()["partition"])
}

func TestZapLogger_WithCarriesFields(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	l := zaplogger.New(zap.New(core)).With("component", "client")

	l.Info("Connection built")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "client", entries[0].ContextMap()["component"])
}

func TestZapLogger_SkipsBelowLevel(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	l := zaplogger.New(zap.New(core))

	require.Equal(t, logger.InfoLevel, l.Level())

	l.Debug("dropped")
	l.Error("kept", "odd")

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.All()[0].Message)
}
