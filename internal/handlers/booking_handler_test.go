package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/middleware"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/motofy/rental-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	mock   sqlmock.Sqlmock
	router *gin.Engine
	userID uuid.UUID
}

func newBookingFixture(t *testing.T, asAdmin bool) *bookingFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	bookingRepo := database.NewBookingRepository(db)
	vehicleRepo := database.NewVehicleRepository(db)
	logger := testLogger()
	availability := services.NewAvailabilityService(vehicleRepo, bookingRepo, logger)
	bookingService := services.NewBookingService(bookingRepo, vehicleRepo, availability, logger)
	handler := NewBookingHandler(bookingService, logger)

	f := &bookingFixture{mock: mock, userID: uuid.New()}

	role := string(models.RoleUser)
	if asAdmin {
		role = string(models.RoleAdmin)
	}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{
			UserID: f.userID,
			Email:  "renter@example.com",
			Role:   role,
		})
	})
	router.POST("/bookings", handler.Create)
	router.PUT("/bookings/:id/cancel", handler.Cancel)
	router.PUT("/bookings/:id/status", handler.SetStatus)
	f.router = router
	return f
}

func (f *bookingFixture) do(method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func availableVehicleRows(id uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "brand", "price_per_day", "price_per_hour",
		"fuel_type", "seats", "transmission", "registration_no",
		"description", "status", "availability", "created_at", "updated_at",
	}).AddRow(
		id, "Honda CB500X", "Honda", 75.0, nil,
		"petrol", 2, "manual", "WP-ABC-1234",
		nil, models.VehicleStatusAvailable, true, now, now,
	)
}

func emptyBookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "vehicle_id", "pickup_at", "dropoff_at",
		"pickup_location", "dropoff_location", "total_amount",
		"status", "payment_status", "payment_session_id", "payment_method",
		"created_at", "updated_at",
	})
}

func TestCreateBookingReturns201(t *testing.T) {
	f := newBookingFixture(t, false)
	vehicleID := uuid.New()

	f.mock.ExpectQuery("FROM vehicles WHERE id = \\$1").
		WithArgs(vehicleID).
		WillReturnRows(availableVehicleRows(vehicleID))
	f.mock.ExpectQuery("FROM bookings").
		WillReturnRows(emptyBookingRows())
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	w := f.do(http.MethodPost, "/bookings", models.CreateBookingRequest{
		VehicleID:      vehicleID.String(),
		PickupAt:       "2026-03-10T10:00:00Z",
		DropoffAt:      "2026-03-12T10:00:00Z",
		PickupLocation: "Downtown branch",
		TotalAmount:    150,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.BookingStatusPending, resp.Booking.Status)
	assert.Equal(t, f.userID, resp.Booking.UserID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateBookingOverlapReturns409(t *testing.T) {
	f := newBookingFixture(t, false)
	vehicleID := uuid.New()
	now := time.Now()

	f.mock.ExpectQuery("FROM vehicles WHERE id = \\$1").
		WithArgs(vehicleID).
		WillReturnRows(availableVehicleRows(vehicleID))
	f.mock.ExpectQuery("FROM bookings").
		WillReturnRows(emptyBookingRows().AddRow(
			uuid.New(), uuid.New(), vehicleID,
			time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
			"Airport branch", nil, 200.0,
			models.BookingStatusConfirmed, models.PaymentStatusPaid, nil, "stripe",
			now, now,
		))

	w := f.do(http.MethodPost, "/bookings", models.CreateBookingRequest{
		VehicleID:      vehicleID.String(),
		PickupAt:       "2026-03-10T10:00:00Z",
		DropoffAt:      "2026-03-12T10:00:00Z",
		PickupLocation: "Downtown branch",
		TotalAmount:    150,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// Two racing creates can both pass the advisory check; the database
// exclusion constraint stops the second insert and the handler still
// answers 409.
func TestCreateBookingRaceLoserReturns409(t *testing.T) {
	f := newBookingFixture(t, false)
	vehicleID := uuid.New()

	f.mock.ExpectQuery("FROM vehicles WHERE id = \\$1").
		WithArgs(vehicleID).
		WillReturnRows(availableVehicleRows(vehicleID))
	f.mock.ExpectQuery("FROM bookings").
		WillReturnRows(emptyBookingRows())
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&pq.Error{Code: "23P01", Constraint: "bookings_no_overlap"})
	f.mock.ExpectRollback()

	w := f.do(http.MethodPost, "/bookings", models.CreateBookingRequest{
		VehicleID:      vehicleID.String(),
		PickupAt:       "2026-03-10T10:00:00Z",
		DropoffAt:      "2026-03-12T10:00:00Z",
		PickupLocation: "Downtown branch",
		TotalAmount:    150,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateBookingValidation(t *testing.T) {
	f := newBookingFixture(t, false)

	t.Run("bad window", func(t *testing.T) {
		w := f.do(http.MethodPost, "/bookings", models.CreateBookingRequest{
			VehicleID:      uuid.New().String(),
			PickupAt:       "2026-03-12T10:00:00Z",
			DropoffAt:      "2026-03-10T10:00:00Z",
			PickupLocation: "Downtown branch",
			TotalAmount:    150,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad vehicle id", func(t *testing.T) {
		w := f.do(http.MethodPost, "/bookings", models.CreateBookingRequest{
			VehicleID:      "not-a-uuid",
			PickupAt:       "2026-03-10T10:00:00Z",
			DropoffAt:      "2026-03-12T10:00:00Z",
			PickupLocation: "Downtown branch",
			TotalAmount:    150,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := f.do(http.MethodPost, "/bookings", map[string]string{"vehicle_id": uuid.New().String()})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelForeignBookingReturns403(t *testing.T) {
	f := newBookingFixture(t, false)
	bookingID := uuid.New()
	now := time.Now()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM bookings WHERE id = \\$1").
		WithArgs(bookingID).
		WillReturnRows(emptyBookingRows().AddRow(
			bookingID, uuid.New(), uuid.New(), now.Add(24*time.Hour), now.Add(48*time.Hour),
			"Downtown branch", nil, 150.0,
			models.BookingStatusPending, models.PaymentStatusPending, nil, "stripe",
			now, now,
		))
	f.mock.ExpectRollback()

	w := f.do(http.MethodPut, "/bookings/"+bookingID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelMissingBookingReturns404(t *testing.T) {
	f := newBookingFixture(t, false)
	bookingID := uuid.New()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM bookings WHERE id = \\$1").
		WithArgs(bookingID).
		WillReturnRows(emptyBookingRows())
	f.mock.ExpectRollback()

	w := f.do(http.MethodPut, "/bookings/"+bookingID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetStatusInvalidTransitionReturns400(t *testing.T) {
	f := newBookingFixture(t, true)
	bookingID := uuid.New()
	now := time.Now()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM bookings WHERE id = \\$1").
		WithArgs(bookingID).
		WillReturnRows(emptyBookingRows().AddRow(
			bookingID, f.userID, uuid.New(), now.Add(-72*time.Hour), now.Add(-48*time.Hour),
			"Downtown branch", nil, 150.0,
			models.BookingStatusCompleted, models.PaymentStatusPaid, nil, "stripe",
			now, now,
		))
	f.mock.ExpectRollback()

	w := f.do(http.MethodPut, "/bookings/"+bookingID.String()+"/status",
		models.AdminSetStatusRequest{Status: models.BookingStatusConfirmed})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetStatusUnknownValueReturns400(t *testing.T) {
	f := newBookingFixture(t, true)

	w := f.do(http.MethodPut, "/bookings/"+uuid.New().String()+"/status",
		map[string]string{"status": "Teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
