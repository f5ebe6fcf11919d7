package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/motofy/rental-backend/internal/models"
)

// PaymentAuditRepository appends to the immutable payment audit log. There
// are no update or delete operations on purpose.
type PaymentAuditRepository struct {
	db *sqlx.DB
}

// NewPaymentAuditRepository creates a new PaymentAuditRepository
func NewPaymentAuditRepository(db *sqlx.DB) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db}
}

// Insert appends one audit entry.
func (r *PaymentAuditRepository) Insert(audit *models.PaymentAudit) error {
	query := `
		INSERT INTO payment_audits (
			id, session_id, event_type, event_source,
			expected_amount, received_amount, amounts_match,
			payment_status, booking_id, raw_body, error_message,
			ip_address, user_agent, device_family, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(query,
		audit.ID, audit.SessionID, audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.PaymentStatus, audit.BookingID, audit.RawBody, audit.ErrorMessage,
		audit.IPAddress, audit.UserAgent, audit.DeviceFamily, audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment audit: %w", err)
	}
	return nil
}

// ListBySession returns the audit trail for one payment session, oldest
// first.
func (r *PaymentAuditRepository) ListBySession(sessionID string) ([]models.PaymentAudit, error) {
	var audits []models.PaymentAudit
	query := `
		SELECT id, session_id, event_type, event_source,
		       expected_amount, received_amount, amounts_match,
		       payment_status, booking_id, raw_body, error_message,
		       ip_address, user_agent, device_family, created_at
		FROM payment_audits
		WHERE session_id = $1
		ORDER BY created_at`
	if err := r.db.Select(&audits, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
