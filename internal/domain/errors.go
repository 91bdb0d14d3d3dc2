package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies failures for the transport layer.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindUpstream   ErrorKind = "upstream"
)

// Error carries a kind and a human readable reason.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func NotFound(reason string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason}
}

func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// Upstream wraps a persistence or provider failure.
func Upstream(reason string, err error) *Error {
	return &Error{Kind: KindUpstream, Reason: reason, Err: err}
}

// KindOf returns the kind of err, KindUpstream for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// ReasonOf returns the user-facing reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUpstream {
			return "internal error"
		}
		return e.Reason
	}
	return "internal error"
}

// Ledger rejections.
var (
	ErrTaskAlreadyCompleted = Conflict("task already completed")
	ErrThresholdNotMet      = Conflict("threshold not met")
	ErrAlreadyCheckedIn     = Conflict("already checked in today")
	ErrInvalidUpgrade       = Validation("invalid upgrade")
	ErrTaskNotFound         = NotFound("task not found")
	ErrTaskInactive         = NotFound("task is not active")
	ErrInvoiceNotFound      = NotFound("invoice not found")
	ErrInvoiceMismatch      = Validation("invoice does not match payment")
	ErrInvoiceAlreadyPaid   = Conflict("invoice already paid")
	ErrWithdrawalNotFound   = NotFound("withdrawal not found")
	ErrWithdrawalProcessed  = Conflict("withdrawal already processed")
)
