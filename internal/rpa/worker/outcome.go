package worker

import "montero/internal/domain/rpa"

// Outcome is the result of one job attempt: Ok, RetryableErr or PermanentErr.
type Outcome interface {
	outcome()
}

type Ok struct {
	Result rpa.Result
}

type RetryableErr struct {
	Failure rpa.Failure
}

type PermanentErr struct {
	Failure rpa.Failure
}

func (Ok) outcome()           {}
func (RetryableErr) outcome() {}
func (PermanentErr) outcome() {}

func outcomeFromFailure(f rpa.Failure) Outcome {
	if f.Retryable {
		return RetryableErr{Failure: f}
	}
	return PermanentErr{Failure: f}
}
