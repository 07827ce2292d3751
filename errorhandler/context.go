package errorhandler

import (
	"github.com/hugolhafner/go-consumer/kafka"
)

// ErrorContext describes a failed record for a Handler.
type ErrorContext struct {
	// Record is the record the handler failed on.
	Record kafka.ConsumerRecord

	// Error is the error returned by the record handler.
	Error error

	// Attempt is current in place attempt number, 1 indexed.
	Attempt int

	// Pauses is how many times the record's partition was paused since it last made progress.
	Pauses int
}

func NewErrorContext(record kafka.ConsumerRecord, err error) ErrorContext {
	return ErrorContext{
		Record:  record,
		Error:   err,
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithPauses(pauses int) ErrorContext {
	ec.Pauses = pauses
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}
