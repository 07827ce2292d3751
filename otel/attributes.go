package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrTopic        = attribute.Key("messaging.destination.name")
	AttrPartition    = attribute.Key("messaging.destination.partition.id")
	AttrOffset       = attribute.Key("messaging.kafka.offset")
	AttrGroup        = attribute.Key("messaging.consumer.group.name")
	AttrPollStatus   = attribute.Key("consumer.poll.status")
	AttrCommitMode   = attribute.Key("consumer.commit.mode")
	AttrCommitStatus = attribute.Key("consumer.commit.status")
	AttrErrorCode    = attribute.Key("consumer.error.code")
	AttrProcessState = attribute.Key("consumer.process.status")
)

// Status values
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Commit mode values
const (
	CommitModeSync  = "sync"
	CommitModeAsync = "async"
)
