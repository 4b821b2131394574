package rpa

import (
	"encoding/json"
	"time"
)

type Result struct {
	Message     string `json:"message,omitempty"`
	ArtifactRef string `json:"artifactRef,omitempty"`
}

type Job struct {
	ID             string          `json:"id"`
	Action         Action          `json:"action"`
	Platform       string          `json:"platform"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	SubmittedAt    time.Time       `json:"submittedAt"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"maxAttempts"`
	NotBefore      time.Time       `json:"notBefore"`
	LastError      string          `json:"lastError,omitempty"`
	ErrorKind      Kind            `json:"errorKind,omitempty"`
	Result         Result          `json:"result"`
	WorkerID       string          `json:"workerId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type NewJob struct {
	Action         Action
	Platform       string
	Payload        json.RawMessage
	MaxAttempts    int
	IdempotencyKey string
}

// Failure is what a worker reports for a failed attempt.
type Failure struct {
	Kind      Kind
	Message   string
	Retryable bool
	// Interrupted marks an attempt cut short by worker shutdown. The job is
	// re-queued without consuming an attempt.
	Interrupted bool
}

func FailureFrom(err error) Failure {
	e := Classify(err)
	return Failure{Kind: e.Kind, Message: e.Error(), Retryable: e.Retryable()}
}

type Filter struct {
	Status   Status
	Platform string
	Action   Action
}

// StatusView is the dispatcher's poll response.
type StatusView struct {
	ID          string     `json:"id"`
	Action      Action     `json:"action"`
	Platform    string     `json:"platform"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorKind   Kind       `json:"errorKind,omitempty"`
	Message     string     `json:"message,omitempty"`
	ArtifactRef string     `json:"artifactRef,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	NotBefore   *time.Time `json:"notBefore,omitempty"`
}

func (j Job) View() StatusView {
	v := StatusView{
		ID:          j.ID,
		Action:      j.Action,
		Platform:    j.Platform,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		ErrorKind:   j.ErrorKind,
		Message:     j.Result.Message,
		ArtifactRef: j.Result.ArtifactRef,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
	if j.Status == StatusFailedRetryable {
		nb := j.NotBefore
		v.NotBefore = &nb
	}
	return v
}
