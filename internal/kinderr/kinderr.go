// Package kinderr implements the closed error taxonomy shared across ichiba's
// components: every failure surfaced to a collaborator is tagged with one of
// a fixed set of kinds instead of an ad-hoc wrapped error.
package kinderr

import "fmt"

// Kind is a closed taxonomy of failure categories. New kinds are never added
// outside this file - every component maps its internal failures onto one of
// these.
type Kind string

const (
	// Config indicates missing or invalid configuration, recoverable by user action.
	Config Kind = "config"
	// Validation indicates a caller-supplied argument failed a precondition.
	// Validation errors never reach the wire and short-circuit before any
	// telemetry or network effect.
	Validation Kind = "validation"
	// Transport indicates a relay/HTTP/WebSocket failure; may be retried.
	Transport Kind = "transport"
	// Protocol indicates an event failed parse/verification/state-machine
	// expectations; logged and dropped.
	Protocol Kind = "protocol"
	// Cipher indicates an encryption/decryption failure.
	Cipher Kind = "cipher"
	// Payment indicates an invoice creation/payment/settlement failure.
	Payment Kind = "payment"
	// Inference indicates an LLM backend failure.
	Inference Kind = "inference"
	// ServiceUnavailable indicates the runtime is degraded; treat as transient.
	ServiceUnavailable Kind = "service_unavailable"
	// Internal indicates an invariant was violated.
	Internal Kind = "internal"
)

// Error is the shared error type. Message is what a collaborator may display;
// Cause, if present, is chained via Unwrap for errors.Is/errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error carrying cause as its chained error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if as(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// as is a narrow errors.As shim kept local to avoid importing errors twice
// for a single call site.
func as(err error, target **Error) bool {
	for err != nil {
		if ke, ok := err.(*Error); ok {
			*target = ke
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
