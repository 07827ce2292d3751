package kafka

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	// CodeTimeout is returned when no data arrived in the poll window
	CodeTimeout
	// CodeRebalanceInProgress the group is rebalancing
	CodeRebalanceInProgress
	// CodeMaxPollExceeded the member was evicted from the group for not polling in time
	CodeMaxPollExceeded
	// CodeTransport broker connection failure
	CodeTransport
	// CodeNoOffset commit requested with no stored offsets
	CodeNoOffset
)

func (c ErrorCode) String() string {
	switch c {
	case CodeTimeout:
		return "timeout"
	case CodeRebalanceInProgress:
		return "rebalance_in_progress"
	case CodeMaxPollExceeded:
		return "max_poll_exceeded"
	case CodeTransport:
		return "transport"
	case CodeNoOffset:
		return "no_offset"
	default:
		return "unknown"
	}
}

var ErrNoOffset = errors.New("no offset to commit")

// BrokerError is an error reported by the broker client, tagged with the kind of failure.
type BrokerError struct {
	Code ErrorCode
	Err  error
}

func (e *BrokerError) Error() string {
	if e.Err == nil {
		return "broker error: " + e.Code.String()
	}

	return "broker error (" + e.Code.String() + "): " + e.Err.Error()
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

func NewBrokerError(code ErrorCode, err error) error {
	return &BrokerError{Code: code, Err: err}
}

func AsBrokerError(err error) (*BrokerError, bool) {
	var be *BrokerError
	if errors.As(err, &be) {
		return be, true
	}

	return nil, false
}

// CodeOf returns the code of the first BrokerError in err's chain, CodeUnknown otherwise.
func CodeOf(err error) ErrorCode {
	if be, ok := AsBrokerError(err); ok {
		return be.Code
	}

	return CodeUnknown
}

// IsRecoverable reports whether err can be cleared by rebuilding the connection.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeRebalanceInProgress, CodeMaxPollExceeded, CodeTransport:
		return true
	default:
		return false
	}
}

// ClassifyError maps franz-go and network errors onto a BrokerError.
// nil stays nil and errors that are already classified are returned as is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := AsBrokerError(err); ok {
		return err
	}

	return &BrokerError{Code: classify(err), Err: err}
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, kerr.RebalanceInProgress):
		return CodeRebalanceInProgress
	case errors.Is(err, kerr.UnknownMemberID),
		errors.Is(err, kerr.IllegalGeneration),
		errors.Is(err, kerr.FencedInstanceID):
		return CodeMaxPollExceeded
	case errors.Is(err, kgo.ErrClientClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return CodeTransport
	case errors.Is(err, ErrNoOffset):
		return CodeNoOffset
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeTransport
	}

	return CodeUnknown
}
