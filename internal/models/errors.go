package models

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage = errors.New("malformed telemetry message")
	ErrStaleResponse    = errors.New("stale response discarded")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnknownFilter    = errors.New("unknown filter")
	ErrInvalidDefcon    = errors.New("defcon must be between 1 and 5")
	ErrInvalidLocation  = errors.New("latitude must be within [-90, 90] and longitude within [-180, 180]")
)

// TransientError wraps a network failure that the owning component retries
// or reports without stopping.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
