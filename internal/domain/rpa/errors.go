package rpa

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrIllegalTransition = errors.New("illegal job status transition")
	ErrLeaseLost         = errors.New("job lease held by another worker")
	ErrInvalidJob        = errors.New("invalid job")
	ErrInvalidPayload    = errors.New("invalid job payload")
)

// Error is a classified worker failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// Classify maps any error to a worker failure. Deadline errors become
// WorkerTimeout; anything unrecognized is Unexpected (retryable).
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindWorkerTimeout, "job exceeded max runtime", err)
	}
	return NewError(KindUnexpected, "", err)
}
