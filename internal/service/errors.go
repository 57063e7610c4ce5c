// Package service provides business logic implementations.
package service

import (
	"errors"

	"poke-backend/internal/repository"
)

// User-correctable rejections. These are returned synchronously, never
// retried automatically, and surfaced verbatim to the caller. Everything
// else is reported as a generic retryable failure with detail logged
// server-side.
var (
	ErrSelfPoke         = errors.New("cannot poke yourself")
	ErrTargetInactive   = errors.New("target account is inactive")
	ErrGateNotSatisfied = errors.New("ad attestation not satisfied")
	ErrAccountNotFound  = errors.New("account not found")
)

// Rejection reason codes exposed to API consumers.
const (
	ReasonSelfPoke           = "self_poke"
	ReasonTargetInactive     = "target_inactive"
	ReasonGateNotSatisfied   = "gate_not_satisfied"
	ReasonAlreadyActed       = "already_acted_with_counterpart"
	ReasonDailyLimitReached  = "daily_limit_reached"
	ReasonInsufficientPoints = "insufficient_balance"
)

// RejectionReason maps an error to its user-facing reason code.
// The second return is false for errors that must not reach end users.
func RejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrSelfPoke):
		return ReasonSelfPoke, true
	case errors.Is(err, ErrTargetInactive):
		return ReasonTargetInactive, true
	case errors.Is(err, ErrGateNotSatisfied):
		return ReasonGateNotSatisfied, true
	case errors.Is(err, repository.ErrAlreadyActedWithCounterpart):
		return ReasonAlreadyActed, true
	case errors.Is(err, repository.ErrDailyLimitReached):
		return ReasonDailyLimitReached, true
	case errors.Is(err, repository.ErrInsufficientBalance):
		return ReasonInsufficientPoints, true
	default:
		return "", false
	}
}

// retryableError tags a transient storage failure whose whole attempt was
// rolled back and may safely be repeated by the caller.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return "retryable: " + e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// MarkRetryable tags err as transient.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err is a transient failure the caller may
// repeat.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// isPermanent reports whether err is a domain outcome that retrying the
// same storage operation can never change.
func isPermanent(err error) bool {
	if _, ok := RejectionReason(err); ok {
		return true
	}
	return errors.Is(err, repository.ErrAccountNotFound) ||
		errors.Is(err, repository.ErrLedgerCorrupted) ||
		errors.Is(err, repository.ErrQuotaCorrupted) ||
		errors.Is(err, repository.ErrInvalidAttestation)
}
