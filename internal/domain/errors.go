// Package domain errors.go contains sentinel errors
package domain

import (
	"errors"
	"fmt"
)

// Sentinel domain-level errors reused by higher layers. Expired, exhausted and
// never-existing secrets all collapse to ErrNotFound so callers cannot tell a
// burned link from a bogus one.
var (
	ErrNotFound       = errors.New("secret not found")
	ErrUnauthorized   = errors.New("password required or incorrect")
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRangeNotSatisfied and ErrTooLarge are invalid requests that transports
	// may report more precisely.
	ErrRangeNotSatisfied  = fmt.Errorf("%w: range not satisfiable", ErrInvalidRequest)
	ErrTooLarge           = fmt.Errorf("%w: content too large", ErrInvalidRequest)
	ErrDeliveryFailed     = errors.New("content delivery failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidID          = errors.New("invalid secret id")
)

// InputError is an invalid request whose Msg is safe to show to clients.
type InputError struct {
	Msg string
}

// InvalidInput returns an InputError carrying msg.
func InvalidInput(msg string) error { return &InputError{Msg: msg} }

func (e *InputError) Error() string { return ErrInvalidRequest.Error() + ": " + e.Msg }

// Unwrap lets errors.Is match ErrInvalidRequest.
func (e *InputError) Unwrap() error { return ErrInvalidRequest }
