package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "Pending"
	BookingStatusConfirmed BookingStatus = "Confirmed"
	BookingStatusCancelled BookingStatus = "Cancelled"
	BookingStatusCompleted BookingStatus = "Completed"
)

// PaymentStatus tracks what we know about the money side of a booking.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Booking is a reservation of one vehicle for a half-open [pickup, dropoff)
// window. Rows are never deleted; cancellation is a state.
type Booking struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserID          uuid.UUID     `json:"user_id" db:"user_id"`
	VehicleID       uuid.UUID     `json:"vehicle_id" db:"vehicle_id"`
	PickupAt        time.Time     `json:"pickup_at" db:"pickup_at"`
	DropoffAt       time.Time     `json:"dropoff_at" db:"dropoff_at"`
	PickupLocation  string        `json:"pickup_location" db:"pickup_location"`
	DropoffLocation *string       `json:"dropoff_location,omitempty" db:"dropoff_location"`
	TotalAmount     float64       `json:"total_amount" db:"total_amount"`
	Status          BookingStatus `json:"status" db:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status" db:"payment_status"`

	// PaymentSessionID is the external checkout session that paid for this
	// booking. Nullable, but unique across all bookings when present; the
	// partial unique index on it is the reconciliation idempotency anchor.
	PaymentSessionID *string `json:"payment_session_id,omitempty" db:"payment_session_id"`
	PaymentMethod    string  `json:"payment_method" db:"payment_method"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the booking currently holds its vehicle's window
// for overlap purposes.
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// Window returns the booking's reserved interval.
func (b *Booking) Window() Window {
	return Window{PickupAt: b.PickupAt, DropoffAt: b.DropoffAt}
}

// Window is a half-open time interval [PickupAt, DropoffAt).
type Window struct {
	PickupAt  time.Time
	DropoffAt time.Time
}

// Overlaps reports whether two half-open windows intersect. Touching
// boundaries (one ends exactly when the other starts) do not overlap.
func (w Window) Overlaps(other Window) bool {
	return w.PickupAt.Before(other.DropoffAt) && w.DropoffAt.After(other.PickupAt)
}

// BookingIntent is the pending-booking payload serialized into the payment
// session's metadata at checkout time and re-derived from the provider-side
// record during reconciliation. Caller-supplied copies are never trusted.
type BookingIntent struct {
	UserID          uuid.UUID `json:"user_id"`
	VehicleID       uuid.UUID `json:"vehicle_id"`
	PickupAt        time.Time `json:"pickup_at"`
	DropoffAt       time.Time `json:"dropoff_at"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation *string   `json:"dropoff_location,omitempty"`
	TotalAmount     float64   `json:"total_amount"`
}

// CreateBookingRequest is the POST /bookings payload.
type CreateBookingRequest struct {
	VehicleID       string  `json:"vehicle_id" binding:"required"`
	PickupAt        string  `json:"pickup_at" binding:"required"`
	DropoffAt       string  `json:"dropoff_at" binding:"required"`
	PickupLocation  string  `json:"pickup_location" binding:"required"`
	DropoffLocation *string `json:"dropoff_location"`
	TotalAmount     float64 `json:"total_amount" binding:"required"`
}

// AdminSetStatusRequest is the PUT /bookings/:id/status payload.
type AdminSetStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
}
