// Package wallet implements the Lightning wallet adapter: invoice creation,
// payment, balance, deposit addresses, and status checks against an LND
// node's REST API.
package wallet

import "fmt"

// Kind is the wallet package's own closed error taxonomy. It is deliberately
// distinct from kinderr.Kind: wallet failures are grouped the way a payment
// backend groups them (auth vs connection vs transaction) rather than the
// way the rest of ichiba groups protocol/transport failures.
type Kind string

const (
	Config      Kind = "config"
	Connection  Kind = "connection"
	Auth        Kind = "auth"
	Transaction Kind = "transaction"
	LnurlError  Kind = "lnurl_error"
	Validation  Kind = "validation"
	Network     Kind = "network"
	Internal    Kind = "internal"
)

// Error is the wallet package's error type, chained via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wallet %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("wallet %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var we *Error
	if as(err, &we) {
		return we.Kind == kind
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if we, ok := err.(*Error); ok {
			*target = we
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
