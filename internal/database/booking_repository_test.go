package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingRepo(t *testing.T) (*BookingRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewBookingRepository(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func testBooking() *models.Booking {
	sessionID := "cs_test_123"
	return &models.Booking{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		VehicleID:        uuid.New(),
		PickupAt:         time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		DropoffAt:        time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
		PickupLocation:   "Downtown branch",
		TotalAmount:      150,
		Status:           models.BookingStatusConfirmed,
		PaymentStatus:    models.PaymentStatusPaid,
		PaymentSessionID: &sessionID,
		PaymentMethod:    "stripe",
	}
}

func TestCreateConflictTranslation(t *testing.T) {
	t.Run("exclusion violation becomes OverlapConflict", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		booking := testBooking()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"})
		mock.ExpectRollback()

		err := repo.Create(booking)
		require.Error(t, err)
		assert.True(t, models.IsOverlapConflict(err))

		var oErr *models.OverlapConflict
		require.ErrorAs(t, err, &oErr)
		assert.Equal(t, booking.VehicleID.String(), oErr.VehicleID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("session unique violation becomes DuplicateSession", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		booking := testBooking()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_payment_session_id_key"})
		mock.ExpectRollback()

		err := repo.Create(booking)
		require.Error(t, err)
		assert.True(t, models.IsDuplicateSession(err))

		var dErr *models.DuplicateSession
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, "cs_test_123", dErr.SessionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other unique violation stays a plain error", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		booking := testBooking()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_pkey"})
		mock.ExpectRollback()

		err := repo.Create(booking)
		require.Error(t, err)
		assert.False(t, models.IsDuplicateSession(err))
		assert.False(t, models.IsOverlapConflict(err))
	})

	t.Run("non-postgres error is wrapped", func(t *testing.T) {
		repo, mock := newBookingRepo(t)
		booking := testBooking()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO bookings").
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectRollback()

		err := repo.Create(booking)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to write booking")
	})
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	repo, mock := newBookingRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM bookings WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	booking, err := repo.GetByID(id)
	assert.NoError(t, err)
	assert.Nil(t, booking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByPaymentSessionIDMissingReturnsNil(t *testing.T) {
	repo, mock := newBookingRepo(t)

	mock.ExpectQuery("payment_session_id = \\$1").
		WithArgs("cs_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	booking, err := repo.GetByPaymentSessionID("cs_missing")
	assert.NoError(t, err)
	assert.Nil(t, booking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConfirmedConflictTranslation(t *testing.T) {
	repo, mock := newBookingRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET status = 'Confirmed'").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_payment_session_id_key"})
	mock.ExpectRollback()

	tx, err := repo.BeginTx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.MarkConfirmedTx(tx, id, "cs_test_456")
	require.Error(t, err)
	assert.True(t, models.IsDuplicateSession(err))
}

func TestUpdateStatusMissingBooking(t *testing.T) {
	repo, mock := newBookingRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := repo.BeginTx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.UpdateStatusTx(tx, &models.Booking{ID: id}, models.BookingStatusCancelled, models.PaymentStatusRefunded)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateStatusOverlapCarriesWindow(t *testing.T) {
	repo, mock := newBookingRepo(t)
	booking := testBooking()
	booking.Status = models.BookingStatusCancelled

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"})

	tx, err := repo.BeginTx()
	require.NoError(t, err)
	defer tx.Rollback()

	// Reinstating a cancelled booking into an occupied window must report
	// the booking's own vehicle and window, not zero values.
	err = repo.UpdateStatusTx(tx, booking, models.BookingStatusConfirmed, models.PaymentStatusPaid)
	require.Error(t, err)

	var oErr *models.OverlapConflict
	require.ErrorAs(t, err, &oErr)
	assert.Equal(t, booking.VehicleID.String(), oErr.VehicleID)
	assert.Equal(t, booking.PickupAt, oErr.PickupAt)
	assert.Equal(t, booking.DropoffAt, oErr.DropoffAt)
}
