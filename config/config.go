// Package config describes what a consumer subscribes to and how it backs off,
// and loads it from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxWaitTime    = time.Second
	DefaultMaxMessages    = 100
	DefaultPauseTimeout   = time.Second
	DefaultPauseMax       = 30 * time.Second
	DefaultCommitInterval = 5 * time.Second
	DefaultCommitCount    = 1000
	DefaultMetricsAddr    = ":9090"
)

// Topic is a single subscribed topic.
type Topic struct {
	Name string `koanf:"name"`
	// ManualOffsetManagement leaves marking records as consumed to the handler.
	ManualOffsetManagement bool `koanf:"manual_offset_management"`
}

// SubscriptionGroup is a set of topics consumed through one broker connection.
type SubscriptionGroup struct {
	ID          string            `koanf:"id"`
	MaxWaitTime time.Duration     `koanf:"max_wait_time"`
	MaxMessages int               `koanf:"max_messages"`
	Kafka       map[string]string `koanf:"kafka"`
	Topics      []Topic           `koanf:"topics"`
}

// TopicNames returns the subscribed topic names in configuration order.
func (g SubscriptionGroup) TopicNames() []string {
	names := make([]string, 0, len(g.Topics))
	for _, t := range g.Topics {
		names = append(names, t.Name)
	}
	return names
}

// Topic returns the topic with the given name.
func (g SubscriptionGroup) Topic(name string) (Topic, bool) {
	for _, t := range g.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}

func (g SubscriptionGroup) Validate() error {
	var errs []error

	if strings.TrimSpace(g.ID) == "" {
		errs = append(errs, errors.New("subscription group id is required"))
	}
	if g.MaxWaitTime <= 0 {
		errs = append(errs, fmt.Errorf("subscription group %q: max_wait_time must be positive", g.ID))
	}
	if g.MaxMessages <= 0 {
		errs = append(errs, fmt.Errorf("subscription group %q: max_messages must be positive", g.ID))
	}
	if len(g.Topics) == 0 {
		errs = append(errs, fmt.Errorf("subscription group %q: at least one topic is required", g.ID))
	}

	seen := make(map[string]struct{}, len(g.Topics))
	for i, t := range g.Topics {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("subscription group %q: topic %d has no name", g.ID, i))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("subscription group %q: topic %q listed twice", g.ID, t.Name))
		}
		seen[t.Name] = struct{}{}
	}

	return errors.Join(errs...)
}

// PauseConfig controls how long a failing partition stays paused.
type PauseConfig struct {
	Timeout                time.Duration `koanf:"timeout"`
	MaxTimeout             time.Duration `koanf:"max_timeout"`
	WithExponentialBackoff bool          `koanf:"with_exponential_backoff"`
}

func DefaultPauseConfig() PauseConfig {
	return PauseConfig{
		Timeout:                DefaultPauseTimeout,
		MaxTimeout:             DefaultPauseMax,
		WithExponentialBackoff: true,
	}
}

func (p PauseConfig) Validate() error {
	if p.Timeout <= 0 {
		return errors.New("pause timeout must be positive")
	}
	if p.MaxTimeout < p.Timeout {
		return fmt.Errorf("pause max_timeout %s is lower than timeout %s", p.MaxTimeout, p.Timeout)
	}
	return nil
}

type CommitConfig struct {
	Interval time.Duration `koanf:"interval"`
	Count    int           `koanf:"count"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Config is the full configuration of the consumer command.
type Config struct {
	SubscriptionGroup SubscriptionGroup `koanf:"subscription_group"`
	Pause             PauseConfig       `koanf:"pause"`
	Commit            CommitConfig      `koanf:"commit"`
	Log               LogConfig         `koanf:"log"`
	Metrics           MetricsConfig     `koanf:"metrics"`
}

func (c Config) Validate() error {
	return errors.Join(c.SubscriptionGroup.Validate(), c.Pause.Validate())
}

func applyDefaults(c *Config) {
	if c.SubscriptionGroup.MaxWaitTime == 0 {
		c.SubscriptionGroup.MaxWaitTime = DefaultMaxWaitTime
	}
	if c.SubscriptionGroup.MaxMessages == 0 {
		c.SubscriptionGroup.MaxMessages = DefaultMaxMessages
	}
	if c.SubscriptionGroup.Kafka == nil {
		c.SubscriptionGroup.Kafka = make(map[string]string)
	}
	if _, ok := c.SubscriptionGroup.Kafka["group.id"]; !ok && c.SubscriptionGroup.ID != "" {
		c.SubscriptionGroup.Kafka["group.id"] = c.SubscriptionGroup.ID
	}
	if c.Pause.Timeout == 0 {
		c.Pause.Timeout = DefaultPauseTimeout
	}
	if c.Pause.MaxTimeout == 0 {
		c.Pause.MaxTimeout = max(DefaultPauseMax, c.Pause.Timeout)
	}
	if c.Commit.Interval == 0 {
		c.Commit.Interval = DefaultCommitInterval
	}
	if c.Commit.Count == 0 {
		c.Commit.Count = DefaultCommitCount
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}
