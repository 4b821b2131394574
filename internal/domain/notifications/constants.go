package notifications

const (
	KindCredentialRejected = "credential_rejected"
	KindJobFailedPermanent = "job_failed_permanent"
)
