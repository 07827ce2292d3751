package connection

import (
	"github.com/hugolhafner/go-consumer/kafka"
)

// MessagesBuffer holds the records of one batch, in poll order.
// It is owned by the poller and not safe for concurrent use.
type MessagesBuffer struct {
	records []kafka.ConsumerRecord
}

func NewMessagesBuffer() *MessagesBuffer {
	return &MessagesBuffer{}
}

func (b *MessagesBuffer) Add(record kafka.ConsumerRecord) {
	b.records = append(b.records, record)
}

func (b *MessagesBuffer) Size() int {
	return len(b.records)
}

func (b *MessagesBuffer) Clear() {
	clear(b.records)
	b.records = b.records[:0]
}

// Records returns a copy of the buffered records in poll order.
func (b *MessagesBuffer) Records() []kafka.ConsumerRecord {
	out := make([]kafka.ConsumerRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Partitions groups the buffered records by partition, keeping poll order within each.
func (b *MessagesBuffer) Partitions() map[kafka.TopicPartition][]kafka.ConsumerRecord {
	out := make(map[kafka.TopicPartition][]kafka.ConsumerRecord)
	for _, r := range b.records {
		tp := r.TopicPartition()
		out[tp] = append(out[tp], r)
	}
	return out
}

// Each calls fn for every record in poll order until fn returns false.
func (b *MessagesBuffer) Each(fn func(kafka.ConsumerRecord) bool) {
	for _, r := range b.records {
		if !fn(r) {
			return
		}
	}
}

// Remove drops every record of tp.
func (b *MessagesBuffer) Remove(tp kafka.TopicPartition) {
	kept := b.records[:0]
	for _, r := range b.records {
		if r.TopicPartition() != tp {
			kept = append(kept, r)
		}
	}
	clear(b.records[len(kept):])
	b.records = kept
}

// Uniq drops records already buffered at the same position, which happens when a
// partition is handed back and fetched again within one batch.
func (b *MessagesBuffer) Uniq() {
	type position struct {
		tp     kafka.TopicPartition
		offset int64
	}

	seen := make(map[position]struct{}, len(b.records))
	kept := b.records[:0]
	for _, r := range b.records {
		p := position{tp: r.TopicPartition(), offset: r.Offset}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		kept = append(kept, r)
	}
	clear(b.records[len(kept):])
	b.records = kept
}
