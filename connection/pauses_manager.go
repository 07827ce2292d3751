package connection

import (
	"sync"

	"github.com/hugolhafner/go-consumer/config"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/timetracker"
)

// PausesManager owns one timetracker.Pause per partition for the lifetime of a
// subscription group.
type PausesManager struct {
	config config.PauseConfig
	opts   []timetracker.PauseOption

	mu     sync.Mutex
	pauses map[string]map[int32]*timetracker.Pause

	// sweep serializes Resume calls so an expired pause is visited once.
	sweep sync.Mutex
}

func NewPausesManager(cfg config.PauseConfig, opts ...timetracker.PauseOption) *PausesManager {
	return &PausesManager{
		config: cfg,
		opts:   opts,
		pauses: make(map[string]map[int32]*timetracker.Pause),
	}
}

// Fetch returns the pause of a partition, creating it on first use.
func (m *PausesManager) Fetch(topic string, partition int32) *timetracker.Pause {
	m.mu.Lock()
	defer m.mu.Unlock()

	partitions, ok := m.pauses[topic]
	if !ok {
		partitions = make(map[int32]*timetracker.Pause)
		m.pauses[topic] = partitions
	}

	pause, ok := partitions[partition]
	if !ok {
		pause = timetracker.NewPause(
			m.config.Timeout,
			m.config.MaxTimeout,
			m.config.WithExponentialBackoff,
			m.opts...,
		)
		partitions[partition] = pause
	}

	return pause
}

// Lookup returns the pause of a partition without creating it.
func (m *PausesManager) Lookup(topic string, partition int32) (*timetracker.Pause, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pause, ok := m.pauses[topic][partition]
	return pause, ok
}

// Resume calls visit for every paused partition whose pause has expired, then
// resumes that pause. visit runs without the registry lock held. A partition paused
// again after the expiry was seen is neither visited nor resumed; if that happens
// during visit only the resume is skipped, so the new pause is kept.
func (m *PausesManager) Resume(visit func(topic string, partition int32)) {
	type expired struct {
		tp         kafka.TopicPartition
		pause      *timetracker.Pause
		generation uint64
	}

	m.sweep.Lock()
	defer m.sweep.Unlock()

	m.mu.Lock()
	var due []expired
	for topic, partitions := range m.pauses {
		for partition, pause := range partitions {
			if generation, ok := pause.Expiry(); ok {
				due = append(
					due, expired{
						tp:         kafka.TopicPartition{Topic: topic, Partition: partition},
						pause:      pause,
						generation: generation,
					},
				)
			}
		}
	}
	m.mu.Unlock()

	for _, e := range due {
		if !e.pause.Current(e.generation) {
			continue
		}

		visit(e.tp.Topic, e.tp.Partition)
		e.pause.ResumeGeneration(e.generation)
	}
}

// Paused lists partitions currently paused, expired or not.
func (m *PausesManager) Paused() []kafka.TopicPartition {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[kafka.TopicPartition]struct{})
	for topic, partitions := range m.pauses {
		for partition, pause := range partitions {
			if pause.Paused() {
				set[kafka.TopicPartition{Topic: topic, Partition: partition}] = struct{}{}
			}
		}
	}

	return sortedPartitions(set)
}

// Clear drops every pause without resuming any.
func (m *PausesManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.pauses)
}
