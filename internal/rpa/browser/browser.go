// Package browser abstracts the headless browser the portal bots drive. One
// Session belongs to one job and is never shared.
package browser

import (
	"context"
	"errors"
)

var (
	ErrNavigation      = errors.New("navigation failed")
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("timed out waiting for element")
	ErrSessionClosed   = errors.New("browser session closed")
)

type Driver interface {
	// Open starts an isolated browser session for one job on platform.
	Open(ctx context.Context, platform string) (Session, error)
	Close() error
}

type Session interface {
	Navigate(url string) error
	Fill(selector, value string) error
	Click(selector string) error
	// WaitOutcome blocks until the page reached by a submit shows either the
	// failure or the success selector, and reports whether failure won.
	WaitOutcome(failure, success string) (failed bool, err error)
	Text(selector string) (string, error)
	Upload(selector string, paths []string) error
	HTML() (string, error)
	PDF() ([]byte, error)
	Close() error
}
