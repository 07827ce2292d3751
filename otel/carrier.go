package otel

import "github.com/hugolhafner/go-consumer/kafka"

// RecordCarrier exposes a record's headers to a propagation.TextMapPropagator.
type RecordCarrier struct {
	Record *kafka.ConsumerRecord
}

func NewRecordCarrier(record *kafka.ConsumerRecord) RecordCarrier {
	return RecordCarrier{Record: record}
}

func (c RecordCarrier) Get(key string) string {
	v, _ := kafka.HeaderValue(c.Record.Headers, key)
	return string(v)
}

// Set overwrites every header with the key, or appends one.
func (c RecordCarrier) Set(key, value string) {
	found := false
	for i, h := range c.Record.Headers {
		if h.Key == key {
			c.Record.Headers[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		c.Record.Headers = append(c.Record.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
}

func (c RecordCarrier) Keys() []string {
	keys := make([]string, len(c.Record.Headers))
	for i, h := range c.Record.Headers {
		keys[i] = h.Key
	}
	return keys
}
