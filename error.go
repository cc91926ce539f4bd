package dqueue

import (
	"errors"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Err is an error code. Errors returned by the backends and the consumer
// loop wrap one of these codes, so they can be tested with errors.Is
type Err int

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ErrSuccess Err = iota
	ErrBadParameter
	ErrNotFound
	ErrNotImplemented
	ErrConnection
	ErrConstraint
	ErrClaimTransaction
	ErrHandler
	ErrDataCorruption
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Err) Error() string {
	switch e {
	case ErrSuccess:
		return "success"
	case ErrBadParameter:
		return "bad parameter"
	case ErrNotFound:
		return "not found"
	case ErrNotImplemented:
		return "not implemented"
	case ErrConnection:
		return "connection error"
	case ErrConstraint:
		return "constraint error"
	case ErrClaimTransaction:
		return "claim transaction error"
	case ErrHandler:
		return "handler error"
	case ErrDataCorruption:
		return "data corruption"
	}
	return fmt.Sprintf("error code %d", int(e))
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// With returns the error with additional context
func (e Err) With(args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprint(args...))
}

// Withf returns the error with formatted context
func (e Err) Withf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", e, fmt.Sprintf(format, args...))
}

// Wrap returns an error which matches both the code and the cause. If
// err already carries this code, it is returned unchanged. Returns nil
// if err is nil.
func (e Err) Wrap(err error) error {
	if err == nil {
		return nil
	} else if errors.Is(err, e) {
		return err
	}
	return fmt.Errorf("%w: %w", e, err)
}

// Code returns the first error code found in the chain of err, or
// ErrSuccess if err is nil, or -1 if err does not carry any code
func Code(err error) Err {
	if err == nil {
		return ErrSuccess
	}
	var code Err
	if errors.As(err, &code) {
		return code
	}
	return Err(-1)
}
