/*
errors.go - Centralized error taxonomy for the sync pipeline

CATEGORIES:
  ErrTransport:  remote fetch/push/notify failed; the job run fails and
                 the next scheduled tick retries. Never retried inline.
  ErrParse:      a single record is malformed; it is skipped and the
                 batch continues.
  ErrStore:      a durable write failed at the structural level; the
                 whole job run fails.
  ErrValidation: a record is missing a required identifier; it is
                 dropped with a warning.

Packages wrap these sentinels with context via %w so callers can branch
with errors.Is.
*/
package planning

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when a remote endpoint (source feed,
	// calendar, notification server) cannot be reached or answers with
	// a failure status.
	ErrTransport = errors.New("transport failure")

	// ErrParse is returned when a payload or record cannot be decoded.
	ErrParse = errors.New("parse failure")

	// ErrStore is returned when the persistent store fails structurally.
	ErrStore = errors.New("store failure")

	// ErrValidation is returned when a record lacks a required field.
	ErrValidation = errors.New("validation failure")
)

// TransportError carries the endpoint and underlying cause of a failed
// remote call.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// IsRetryable reports whether the error should be retried on a future
// scheduled tick rather than treated as permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrStore)
}
