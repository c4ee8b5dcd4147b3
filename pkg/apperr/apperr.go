// Package apperr carries the error taxonomy shared by every use case:
// callers branch on Kind, clients see Message, operators see the wrapped Err.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindPayment
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPayment:
		return "payment"
	default:
		return "internal"
	}
}

// Payment error codes.
const (
	CodeRateUnavailable            = "rate_unavailable"
	CodeNoTrustline                = "no_trustline"
	CodeTrustlineLimitExhausted    = "trustline_limit_exhausted"
	CodeTrustlineLimitInsufficient = "trustline_limit_insufficient"
	CodeInvalidDestination         = "invalid_destination"
	CodeLedgerFailure              = "ledger_failure"
	CodeLedgerPending              = "ledger_pending"
	CodeLedgerUnavailable          = "ledger_unavailable"
	CodeHashMismatch               = "hash_mismatch"
	CodeDestinationChanged         = "destination_changed"
)

type Error struct {
	Kind Kind
	// Code is a stable machine-readable identifier, e.g. "no_trustline".
	Code string
	// Field names the offending input for validation errors.
	Field string
	// Detail carries a network diagnostic such as a ledger result code.
	Detail  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_" + field, Field: field, Message: message}
}

func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: "forbidden", Message: message}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: entity + "_not_found", Message: entity + " not found"}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Payment(code, message string, err error) *Error {
	return &Error{Kind: KindPayment, Code: code, Message: message, Err: err}
}

// LedgerFailure builds a payment error carrying the network result code.
func LedgerFailure(resultCode, message string) *Error {
	return &Error{Kind: KindPayment, Code: CodeLedgerFailure, Detail: resultCode, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: message, Err: err}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
