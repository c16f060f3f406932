package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Callers are expected to test with
// errors.Is / errors.As so retry policy can differ per failure class.
var (
	// ErrDeviceUnavailable covers discovery that found nothing, a failed
	// connect, a denied transport claim, or an unexpected disconnect.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrDeviceBusy is returned when an operation is attempted on a device
	// handle that is already owned by an in-flight operation.
	ErrDeviceBusy = errors.New("device busy")

	// ErrNothingToCancel reports a cancel request that arrived after the
	// remote operation already completed. It is an outcome, not a failure.
	ErrNothingToCancel = errors.New("nothing to cancel")
)

// ValidationError describes rejected input (bad cart line, bad request).
// Validation never leaves partial state behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// PaymentErrorKind distinguishes remote terminal outcomes. A decline and a
// network timeout are different failure classes with different retry policy.
type PaymentErrorKind string

const (
	PaymentDeclined  PaymentErrorKind = "declined"
	PaymentTimeout   PaymentErrorKind = "timeout"
	PaymentCancelled PaymentErrorKind = "cancelled"
	PaymentNetwork   PaymentErrorKind = "network"
)

// PaymentError is a typed payment-collection failure surfaced to the operator.
type PaymentError struct {
	Kind   PaymentErrorKind
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s: %s", e.Kind, e.Reason)
}

// PersistenceError wraps a failed atomic commit. The checkout attempt is dead
// and must be retried by the operator with the same idempotency key.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
