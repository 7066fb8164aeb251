package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies payment path failures
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "MissingCredential"
	KindInvalidProof      ErrorKind = "InvalidProof"
	KindIndeterminate     ErrorKind = "Indeterminate"
	KindConfiguration     ErrorKind = "Configuration"
)

// PaymentError represents errors that can occur while gating a request
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Error constructors

func NewMissingCredentialError(message string) *PaymentError {
	return &PaymentError{
		Kind:    KindMissingCredential,
		Message: message,
	}
}

func NewInvalidProofError(message string) *PaymentError {
	return &PaymentError{
		Kind:    KindInvalidProof,
		Message: message,
	}
}

func NewIndeterminateError(message string, err error) *PaymentError {
	return &PaymentError{
		Kind:    KindIndeterminate,
		Message: message,
		Err:     err,
	}
}

func NewConfigurationError(message string, err error) *PaymentError {
	return &PaymentError{
		Kind:    KindConfiguration,
		Message: message,
		Err:     err,
	}
}

// IsKind reports whether err carries a PaymentError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
