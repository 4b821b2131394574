package rpa

type Action string

const (
	ActionAffiliate      Action = "AFFILIATE"
	ActionCertDownload   Action = "CERT_DOWNLOAD"
	ActionIncapacityFile Action = "INCAPACITY_FILE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAffiliate, ActionCertDownload, ActionIncapacityFile:
		return true
	}
	return false
}

type Status string

const (
	StatusQueued          Status = "QUEUED"
	StatusRunning         Status = "RUNNING"
	StatusSucceeded       Status = "SUCCEEDED"
	StatusFailedRetryable Status = "FAILED_RETRYABLE"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
	StatusCancelled       Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailedRetryable, StatusFailedPermanent, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailedPermanent || s == StatusCancelled
}

// Kind classifies worker-side failures.
type Kind string

const (
	KindPortalTransient    Kind = "PortalTransient"
	KindPortalRejected     Kind = "PortalRejected"
	KindCredentialRejected Kind = "CredentialRejected"
	KindPayloadRejected    Kind = "PayloadRejected"
	KindWorkerTimeout      Kind = "WorkerTimeout"
	KindUnexpected         Kind = "Unexpected"
)

func (k Kind) Retryable() bool {
	switch k {
	case KindPortalTransient, KindWorkerTimeout, KindUnexpected:
		return true
	}
	return false
}

const DefaultMaxAttempts = 3
