package domain

import (
	"errors"
	"fmt"
)

// TransientError is a retryable fetch failure: a transport error or a 429/5xx
// response. It never escapes the catalog client unwrapped.
type TransientError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient fetch error %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("transient fetch error %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPStatusCode reports the response status, zero for transport errors.
func (e *TransientError) HTTPStatusCode() int { return e.Status }

// FatalFetchError is a non-retryable status or an exhausted retry budget.
type FatalFetchError struct {
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FatalFetchError) Error() string {
	switch {
	case e.Attempts > 1:
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// HTTPStatusCode reports the last response status, zero when none was received.
func (e *FatalFetchError) HTTPStatusCode() int { return e.Status }

// ParseError reports a malformed payload or a missing required field.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse " + e.What
	}
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DataIntegrityError reports that an expected embedded reference is missing
// from an otherwise valid document.
type DataIntegrityError struct {
	Target string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity %s: %s", e.Target, e.Reason)
}

// StoreConnectionError reports that the persisted store could not be opened or
// initialized. It is fatal for a run.
type StoreConnectionError struct {
	Driver string
	Err    error
}

func (e *StoreConnectionError) Error() string {
	return fmt.Sprintf("connect %s store: %v", e.Driver, e.Err)
}

func (e *StoreConnectionError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsStoreConnection reports whether err carries a StoreConnectionError.
func IsStoreConnection(err error) bool {
	var s *StoreConnectionError
	return errors.As(err, &s)
}
