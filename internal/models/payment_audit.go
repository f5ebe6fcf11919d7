package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType identifies what happened in the payment flow.
type PaymentEventType string

const (
	PaymentEventCheckoutCreated  PaymentEventType = "checkout_created"
	PaymentEventWebhookReceived  PaymentEventType = "webhook_received"
	PaymentEventVerifyPoll       PaymentEventType = "verify_poll"
	PaymentEventBookingConfirmed PaymentEventType = "booking_confirmed"
	PaymentEventDuplicateSession PaymentEventType = "duplicate_session"
	PaymentEventReconcileFailed  PaymentEventType = "reconciliation_failed"
)

// PaymentEventSource identifies which transport delivered the event.
type PaymentEventSource string

const (
	PaymentSourceWebhook PaymentEventSource = "provider_webhook"
	PaymentSourcePoll    PaymentEventSource = "client_poll"
	PaymentSourceBackend PaymentEventSource = "backend"
)

// PaymentAudit is an immutable log entry for one payment event. Every
// reconciliation attempt leaves a row here so a paid session can always be
// traced, even when the booking had to be confirmed manually.
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	SessionID   string             `json:"session_id" db:"session_id"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	PaymentStatus *string    `json:"payment_status,omitempty" db:"payment_status"`
	BookingID     *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`

	RawBody      *string `json:"raw_body,omitempty" db:"raw_body"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	IPAddress    *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceFamily *string `json:"device_family,omitempty" db:"device_family"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates an audit entry with the required fields set.
func NewPaymentAudit(sessionID string, eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		SessionID:   sessionID,
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking links the audit entry to a booking.
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetError records a failure message.
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetRawBody keeps the raw payload of the triggering request.
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	if body != "" {
		pa.RawBody = &body
	}
	return pa
}

// SetAmounts records expected vs received amounts and whether they match.
func (pa *PaymentAudit) SetAmounts(expected, received float64) *PaymentAudit {
	match := expected == received
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.AmountsMatch = &match
	return pa
}
