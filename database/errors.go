package database

import (
	"errors"

	"runitdb/internal/realtime"
	"runitdb/internal/transport"
)

var (
	// ErrConfig wraps every configuration error: missing endpoint, key or
	// project, invalid identifiers and invalid subscription settings.
	ErrConfig = realtime.ErrConfig

	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Failure is the error returned by CRUD operations when the request could
// not be completed. It marshals to {"error": "...", "status": "failed"}.
type Failure = transport.Failure

// StatusFailed is the Status of every Failure.
const StatusFailed = transport.StatusFailed

func IsFailure(err error) bool {
	_, ok := transport.AsFailure(err)
	return ok
}

func AsFailure(err error) (*Failure, bool) {
	return transport.AsFailure(err)
}

func IsUnauthorized(err error) bool {
	return transport.IsUnauthorized(err)
}

func IsNotFound(err error) bool {
	return transport.IsNotFound(err)
}
