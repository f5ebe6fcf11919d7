package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrForbidden is returned when the actor is not allowed to touch a record.
var ErrForbidden = errors.New("forbidden")

// ErrPendingPayment signals that the payment provider has not yet reported
// the session as paid. Callers retry; no booking is materialized.
var ErrPendingPayment = errors.New("payment not completed yet")

// ValidationError reports malformed input rejected before storage is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// OverlapConflict reports that a candidate window collides with an existing
// active booking for the same vehicle.
type OverlapConflict struct {
	VehicleID string
	PickupAt  time.Time
	DropoffAt time.Time
}

func (e *OverlapConflict) Error() string {
	return fmt.Sprintf("vehicle %s is already booked between %s and %s",
		e.VehicleID, e.PickupAt.Format(time.RFC3339), e.DropoffAt.Format(time.RFC3339))
}

// DuplicateSession reports that a booking already exists for a payment
// session id. Reconciliation treats this as the success path, not a failure.
type DuplicateSession struct {
	SessionID string
}

func (e *DuplicateSession) Error() string {
	return fmt.Sprintf("booking already exists for payment session %s", e.SessionID)
}

// InvalidTransition reports a booking state change the lifecycle rules forbid.
type InvalidTransition struct {
	From   BookingStatus
	To     BookingStatus
	Reason string
}

func (e *InvalidTransition) Error() string {
	msg := fmt.Sprintf("invalid booking transition %s -> %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// TransientUpstream reports a temporary failure talking to the payment
// provider, or a paid session whose booking intent has not arrived yet.
// Callers should retry (webhook redelivery, client re-poll).
type TransientUpstream struct {
	SessionID string
	Cause     error
}

func (e *TransientUpstream) Error() string {
	return fmt.Sprintf("transient upstream failure for session %s: %v", e.SessionID, e.Cause)
}

func (e *TransientUpstream) Unwrap() error { return e.Cause }

// PermanentReconciliationFailure reports a paid session whose booking intent
// is unrecoverable. This is the only error class that should page an
// operator: the payment succeeded but the booking needs manual confirmation.
type PermanentReconciliationFailure struct {
	SessionID string
	Cause     error
}

func (e *PermanentReconciliationFailure) Error() string {
	return fmt.Sprintf("reconciliation failed permanently for session %s: %v", e.SessionID, e.Cause)
}

func (e *PermanentReconciliationFailure) Unwrap() error { return e.Cause }

// IsOverlapConflict reports whether err is an OverlapConflict.
func IsOverlapConflict(err error) bool {
	var oc *OverlapConflict
	return errors.As(err, &oc)
}

// IsDuplicateSession reports whether err is a DuplicateSession.
func IsDuplicateSession(err error) bool {
	var ds *DuplicateSession
	return errors.As(err, &ds)
}

// IsInvalidTransition reports whether err is an InvalidTransition.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransition
	return errors.As(err, &it)
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var tu *TransientUpstream
	return errors.As(err, &tu)
}
