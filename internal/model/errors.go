package model

import (
	"errors"
	"fmt"
)

// NotFoundError means no identity context could be resolved for a user.
type NotFoundError struct {
	UserID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record found for user %s", e.UserID)
}

// ValidationError is malformed input on a public endpoint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExternalAPIError is a failed call to the scoring API. It is never shown to
// end users; the status machine keeps reporting a pending state instead.
type ExternalAPIError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scoring api: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("scoring api: %v", e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// PersistenceError is a failed store write. Nothing was advanced, so the
// operation can be retried from scratch.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NoDataError means the checkup data is missing or below the sufficiency
// threshold. Retrying will not help until the user re-authenticates.
type NoDataError struct {
	UserID      string
	MetricCount int
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("insufficient checkup data for user %s: %d metrics", e.UserID, e.MetricCount)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNoData reports whether err carries a NoDataError.
func IsNoData(err error) bool {
	var nd *NoDataError
	return errors.As(err, &nd)
}
