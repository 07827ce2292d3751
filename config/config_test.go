//go:build unit

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
subscription_group:
  id: orders-consumer
  max_wait_time: 2s
  max_messages: 50
  kafka:
    bootstrap.servers: localhost:9092
    session.timeout.ms: 6000
  topics:
    - name: orders
    - name: payments
      manual_offset_management: true
pause:
  timeout: 500ms
  max_timeout: 10s
  with_exponential_backoff: true
commit:
  interval: 1s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "consumer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	g := cfg.SubscriptionGroup
	assert.Equal(t, "orders-consumer", g.ID)
	assert.Equal(t, 2*time.Second, g.MaxWaitTime)
	assert.Equal(t, 50, g.MaxMessages)
	assert.Equal(t, "localhost:9092", g.Kafka["bootstrap.servers"])
	assert.Equal(t, "6000", g.Kafka["session.timeout.ms"])
	assert.Equal(t, "orders-consumer", g.Kafka["group.id"], "group id defaults to the subscription group id")
	assert.Equal(t, []string{"orders", "payments"}, g.TopicNames())

	payments, ok := g.Topic("payments")
	require.True(t, ok)
	assert.True(t, payments.ManualOffsetManagement)

	assert.Equal(t, config.PauseConfig{
		Timeout:                500 * time.Millisecond,
		MaxTimeout:             10 * time.Second,
		WithExponentialBackoff: true,
	}, cfg.Pause)

	assert.Equal(t, time.Second, cfg.Commit.Interval)
	assert.Equal(t, config.DefaultCommitCount, cfg.Commit.Count)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.Metrics.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	t.Setenv("CONSUMER__SUBSCRIPTION_GROUP__MAX_MESSAGES", "7")
	t.Setenv("CONSUMER__SUBSCRIPTION_GROUP__KAFKA__bootstrap.servers", "broker:19092")
	t.Setenv("CONSUMER__LOG__LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.SubscriptionGroup.MaxMessages)
	assert.Equal(t, "broker:19092", cfg.SubscriptionGroup.Kafka["bootstrap.servers"])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileFallsBackToEnv(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "no topics configured anywhere")
	assert.Contains(t, err.Error(), "subscription group id is required")
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := config.Load(writeConfig(t, "subscription_group:\n  max_wait_time: soon\n"))
	require.Error(t, err)
}

func TestSubscriptionGroup_Validate(t *testing.T) {
	valid := config.SubscriptionGroup{
		ID:          "g",
		MaxWaitTime: time.Second,
		MaxMessages: 10,
		Topics:      []config.Topic{{Name: "a"}},
	}

	tests := []struct {
		name    string
		mutate  func(*config.SubscriptionGroup)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.SubscriptionGroup) {}},
		{name: "missing id", mutate: func(g *config.SubscriptionGroup) { g.ID = "" }, wantErr: "id is required"},
		{name: "zero wait", mutate: func(g *config.SubscriptionGroup) { g.MaxWaitTime = 0 }, wantErr: "max_wait_time"},
		{name: "zero messages", mutate: func(g *config.SubscriptionGroup) { g.MaxMessages = 0 }, wantErr: "max_messages"},
		{name: "no topics", mutate: func(g *config.SubscriptionGroup) { g.Topics = nil }, wantErr: "at least one topic"},
		{
			name:    "unnamed topic",
			mutate:  func(g *config.SubscriptionGroup) { g.Topics = []config.Topic{{}} },
			wantErr: "has no name",
		},
		{
			name:    "duplicate topic",
			mutate:  func(g *config.SubscriptionGroup) { g.Topics = []config.Topic{{Name: "a"}, {Name: "a"}} },
			wantErr: "listed twice",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				g := valid
				g.Topics = append([]config.Topic(nil), valid.Topics...)
				tt.mutate(&g)

				err := g.Validate()
				if tt.wantErr == "" {
					require.NoError(t, err)
					return
				}
				require.ErrorContains(t, err, tt.wantErr)
			},
		)
	}
}

func TestPauseConfig_Validate(t *testing.T) {
	require.NoError(t, config.DefaultPauseConfig().Validate())
	require.Error(t, config.PauseConfig{}.Validate())
	require.ErrorContains(t, config.PauseConfig{Timeout: time.Minute, MaxTimeout: time.Second}.Validate(), "lower than")
}
