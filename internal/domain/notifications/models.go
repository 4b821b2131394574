package notifications

import (
	"errors"
	"time"
)

var ErrNoticeNotFound = errors.New("notice not found")

// Notice is an operator-facing message raised by the worker side.
type Notice struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	JobID     string     `json:"jobId,omitempty"`
	Platform  string     `json:"platform,omitempty"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}
