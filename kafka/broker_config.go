package kafka

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Broker setting keys understood by NewKgoConnection. They follow the librdkafka
// naming so subscription groups can be shared with other consumers.
const (
	BootstrapServers          = "bootstrap.servers"
	GroupID                   = "group.id"
	ClientID                  = "client.id"
	GroupInstanceID           = "group.instance.id"
	SessionTimeoutMs          = "session.timeout.ms"
	HeartbeatIntervalMs       = "heartbeat.interval.ms"
	MaxPollIntervalMs         = "max.poll.interval.ms"
	AutoOffsetReset           = "auto.offset.reset"
	FetchMaxBytes             = "fetch.max.bytes"
	FetchWaitMaxMs            = "fetch.wait.max.ms"
	MaxPartitionFetchBytes    = "max.partition.fetch.bytes"
	PartitionAssignment       = "partition.assignment.strategy"
	EnableAutoCommit          = "enable.auto.commit"
	EnableAutoOffsetStore     = "enable.auto.offset.store"
	defaultBootstrapSeparator = ","
)

// brokerOpts translates broker settings into franz-go options.
// Offsets are always stored and committed explicitly, so auto commit can only be disabled.
func brokerOpts(cfg map[string]string) ([]kgo.Opt, error) {
	if strings.TrimSpace(cfg[BootstrapServers]) == "" {
		return nil, fmt.Errorf("broker config: %s is required", BootstrapServers)
	}
	if strings.TrimSpace(cfg[GroupID]) == "" {
		return nil, fmt.Errorf("broker config: %s is required", GroupID)
	}

	opts := []kgo.Opt{kgo.DisableAutoCommit()}

	for _, key := range slices.Sorted(maps.Keys(cfg)) {
		value := strings.TrimSpace(cfg[key])

		opt, err := brokerOpt(key, value)
		if err != nil {
			return nil, fmt.Errorf("broker config %s=%q: %w", key, value, err)
		}
		if opt != nil {
			opts = append(opts, opt)
		}
	}

	return opts, nil
}

func brokerOpt(key, value string) (kgo.Opt, error) {
	switch key {
	case BootstrapServers:
		return kgo.SeedBrokers(splitList(value)...), nil
	case GroupID:
		return kgo.ConsumerGroup(value), nil
	case ClientID:
		return kgo.ClientID(value), nil
	case GroupInstanceID:
		return kgo.InstanceID(value), nil
	case SessionTimeoutMs:
		d, err := parseMillis(value)
		if err != nil {
			return nil, err
		}
		return kgo.SessionTimeout(d), nil
	case HeartbeatIntervalMs:
		d, err := parseMillis(value)
		if err != nil {
			return nil, err
		}
		return kgo.HeartbeatInterval(d), nil
	case MaxPollIntervalMs:
		d, err := parseMillis(value)
		if err != nil {
			return nil, err
		}
		return kgo.RebalanceTimeout(d), nil
	case FetchWaitMaxMs:
		d, err := parseMillis(value)
		if err != nil {
			return nil, err
		}
		return kgo.FetchMaxWait(d), nil
	case FetchMaxBytes:
		n, err := parseBytes(value)
		if err != nil {
			return nil, err
		}
		return kgo.FetchMaxBytes(n), nil
	case MaxPartitionFetchBytes:
		n, err := parseBytes(value)
		if err != nil {
			return nil, err
		}
		return kgo.FetchMaxPartitionBytes(n), nil
	case AutoOffsetReset:
		switch value {
		case "earliest", "smallest", "beginning":
			return kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()), nil
		case "latest", "largest", "end":
			return kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()), nil
		default:
			return nil, fmt.Errorf("unknown reset policy")
		}
	case PartitionAssignment:
		balancers := make([]kgo.GroupBalancer, 0, 1)
		for _, name := range splitList(value) {
			switch name {
			case "range":
				balancers = append(balancers, kgo.RangeBalancer())
			case "roundrobin":
				balancers = append(balancers, kgo.RoundRobinBalancer())
			case "sticky":
				balancers = append(balancers, kgo.StickyBalancer())
			case "cooperative-sticky":
				balancers = append(balancers, kgo.CooperativeStickyBalancer())
			default:
				return nil, fmt.Errorf("unknown assignment strategy %q", name)
			}
		}
		return kgo.Balancers(balancers...), nil
	case EnableAutoCommit, EnableAutoOffsetStore:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		if enabled {
			return nil, fmt.Errorf("offsets are managed by the client and cannot be handled automatically")
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported setting")
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, defaultBootstrapSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

func parseMillis(value string) (time.Duration, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("must be positive")
	}

	return time.Duration(ms) * time.Millisecond, nil
}

func parseBytes(value string) (int32, error) {
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}

	return int32(n), nil
}
