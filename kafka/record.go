package kafka

import (
	"strconv"
	"time"
)

// Header represents a single Kafka record header
// kafka needs to support multiple headers with duplicate keys
type Header struct {
	Key   string
	Value []byte
}

// HeaderValue returns the value of the first header matching the given key
// Returns (nil, false) if no header with that key exists
func HeaderValue(headers []Header, key string) ([]byte, bool) {
	for _, h := range headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}

// ConsumerRecord is a single message fetched from a partition.
// The client only relies on Topic, Partition and Offset, everything else is carried through.
type ConsumerRecord struct {
	Key         []byte
	Value       []byte
	Headers     []Header
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Timestamp   time.Time
}

func (r ConsumerRecord) TopicPartition() TopicPartition {
	return TopicPartition{
		Topic:     r.Topic,
		Partition: r.Partition,
	}
}

// PauseTarget returns the position a paused partition should rewind to so that
// this record is delivered again on resume.
func (r ConsumerRecord) PauseTarget() PauseTarget {
	return PauseTarget{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
	}
}

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10)
}

// PauseTarget is the seek position used when a partition is paused:
// consumption resumes from Offset once the partition is resumed.
type PauseTarget struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (t PauseTarget) TopicPartition() TopicPartition {
	return TopicPartition{
		Topic:     t.Topic,
		Partition: t.Partition,
	}
}
