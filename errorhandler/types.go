// Package errorhandler decides what a listener does with a record its handler failed on.
package errorhandler

import (
	"context"
)

type ActionType int

const (
	ActionTypePause    ActionType = iota // Pause the partition and redeliver the record after the backoff
	ActionTypeContinue                   // Skip record, mark it consumed and continue
	ActionTypeRetry                      // Retry this record in place
	ActionTypeFail                       // Stop the listener, the record is not marked
)

func (a ActionType) String() string {
	switch a {
	case ActionTypePause:
		return "Pause"
	case ActionTypeContinue:
		return "Continue"
	case ActionTypeRetry:
		return "Retry"
	case ActionTypeFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

var _ Action = ActionPause{}
var _ Action = ActionContinue{}
var _ Action = ActionRetry{}
var _ Action = ActionFail{}

type Action interface {
	Type() ActionType
}

type ActionPause struct{}

func (a ActionPause) Type() ActionType {
	return ActionTypePause
}

type ActionContinue struct{}

func (a ActionContinue) Type() ActionType {
	return ActionTypeContinue
}

type ActionRetry struct{}

func (a ActionRetry) Type() ActionType {
	return ActionTypeRetry
}

type ActionFail struct{}

func (a ActionFail) Type() ActionType {
	return ActionTypeFail
}

type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}
