package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/motofy/rental-backend/internal/models"
)

// BookingRepository handles booking table operations. All status writes go
// through the lifecycle service; nothing else mutates bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, user_id, vehicle_id, pickup_at, dropoff_at,
	pickup_location, dropoff_location, total_amount,
	status, payment_status, payment_session_id, payment_method,
	created_at, updated_at`

// BeginTx starts a transaction for callers that need booking and vehicle
// writes to commit together.
func (r *BookingRepository) BeginTx() (*sqlx.Tx, error) {
	return r.db.Beginx()
}

// CreateTx inserts a new booking inside tx. Constraint violations come back
// as typed conflicts so callers can tell "already handled" from "broken":
// the exclusion constraint maps to OverlapConflict and the payment session
// unique index to DuplicateSession.
func (r *BookingRepository) CreateTx(tx *sqlx.Tx, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	query := `
		INSERT INTO bookings (
			id, user_id, vehicle_id, pickup_at, dropoff_at,
			pickup_location, dropoff_location, total_amount,
			status, payment_status, payment_session_id, payment_method,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := tx.Exec(query,
		booking.ID, booking.UserID, booking.VehicleID, booking.PickupAt, booking.DropoffAt,
		booking.PickupLocation, booking.DropoffLocation, booking.TotalAmount,
		booking.Status, booking.PaymentStatus, booking.PaymentSessionID, booking.PaymentMethod,
		booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return translateConflict(err, booking)
	}
	return nil
}

// Create inserts a new booking outside any caller transaction.
func (r *BookingRepository) Create(booking *models.Booking) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := r.CreateTx(tx, booking); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetByID retrieves a booking by ID. Returns (nil, nil) when missing.
func (r *BookingRepository) GetByID(id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	err := r.db.Get(&booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetByIDTx is GetByID inside a transaction, locking the row for update.
func (r *BookingRepository) GetByIDTx(tx *sqlx.Tx, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	err := tx.Get(&booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetByPaymentSessionID retrieves the booking materialized for a payment
// session, if any. Returns (nil, nil) when missing.
func (r *BookingRepository) GetByPaymentSessionID(sessionID string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_session_id = $1`
	err := r.db.Get(&booking, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by session: %w", err)
	}
	return &booking, nil
}

// ListActiveByVehicle returns the vehicle's non-cancelled bookings, the set
// the overlap checker evaluates candidates against.
func (r *BookingRepository) ListActiveByVehicle(vehicleID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE vehicle_id = $1 AND status IN ('Pending', 'Confirmed')
		ORDER BY pickup_at`
	if err := r.db.Select(&bookings, query, vehicleID); err != nil {
		return nil, fmt.Errorf("failed to list active bookings: %w", err)
	}
	return bookings, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(userID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.db.Select(&bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

// ListAll returns every booking, newest first. Admin oversight only.
func (r *BookingRepository) ListAll(limit, offset int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.Select(&bookings, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// UpdateStatusTx writes a booking's lifecycle and payment status inside tx.
// Status transitions within an active window can trip the overlap exclusion
// constraint, which is translated like inserts are.
func (r *BookingRepository) UpdateStatusTx(tx *sqlx.Tx, booking *models.Booking, status models.BookingStatus, paymentStatus models.PaymentStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, payment_status = $2, updated_at = $3
		WHERE id = $4`
	result, err := tx.Exec(query, status, paymentStatus, time.Now(), booking.ID)
	if err != nil {
		return translateConflict(err, booking)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindPendingForIntentTx looks for the user's Pending booking matching an
// exact vehicle and window, locking it for update. Reconciliation prefers
// transitioning such a hold over inserting a second row.
func (r *BookingRepository) FindPendingForIntentTx(tx *sqlx.Tx, userID, vehicleID uuid.UUID, pickupAt, dropoffAt time.Time) (*models.Booking, error) {
	var booking models.Booking
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1 AND vehicle_id = $2
		  AND pickup_at = $3 AND dropoff_at = $4
		  AND status = 'Pending'
		FOR UPDATE`
	err := tx.Get(&booking, query, userID, vehicleID, pickupAt, dropoffAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending booking: %w", err)
	}
	return &booking, nil
}

// MarkConfirmedTx confirms a booking and attaches the payment session that
// paid for it. A racing confirmation of the same session trips the partial
// unique index and comes back as DuplicateSession.
func (r *BookingRepository) MarkConfirmedTx(tx *sqlx.Tx, id uuid.UUID, sessionID string) error {
	query := `
		UPDATE bookings
		SET status = 'Confirmed', payment_status = 'paid',
		    payment_session_id = $1, updated_at = $2
		WHERE id = $3`
	result, err := tx.Exec(query, sessionID, time.Now(), id)
	if err != nil {
		return translateConflict(err, &models.Booking{ID: id, PaymentSessionID: &sessionID})
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountConfirmedExcluding counts the vehicle's Confirmed bookings other than
// the one given. The availability release path uses this to stay
// conservative when more than one Confirmed booking holds a vehicle.
func (r *BookingRepository) CountConfirmedExcluding(tx *sqlx.Tx, vehicleID, excludingBookingID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE vehicle_id = $1 AND status = 'Confirmed' AND id <> $2`
	if err := tx.Get(&count, query, vehicleID, excludingBookingID); err != nil {
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	return count, nil
}

// translateConflict converts Postgres constraint violations into the typed
// conflicts callers branch on. Everything else is wrapped as-is.
func translateConflict(err error, booking *models.Booking) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("failed to write booking: %w", err)
	}

	switch pqErr.Code {
	case "23505": // unique_violation
		if strings.Contains(pqErr.Constraint, "payment_session") {
			sessionID := ""
			if booking.PaymentSessionID != nil {
				sessionID = *booking.PaymentSessionID
			}
			return &models.DuplicateSession{SessionID: sessionID}
		}
	case "23P01": // exclusion_violation
		return &models.OverlapConflict{
			VehicleID: booking.VehicleID.String(),
			PickupAt:  booking.PickupAt,
			DropoffAt: booking.DropoffAt,
		}
	}
	return fmt.Errorf("failed to write booking: %w", err)
}
