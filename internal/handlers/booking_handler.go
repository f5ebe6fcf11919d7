package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/middleware"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/motofy/rental-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles booking lifecycle HTTP requests
type BookingHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookingService *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// Create places a Pending booking - POST /api/v1/bookings
//
// Returns 201 with the booking, 400 on validation failure, 404 for an
// unknown vehicle and 409 when the window collides with an active booking.
func (h *BookingHandler) Create(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	intent, err := intentFromRequest(userCtx.UserID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.bookingService.Create(intent)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"booking": booking})
}

// Get returns one booking - GET /api/v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.bookingService.GetByID(bookingID)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	if booking.UserID != userCtx.UserID && !userCtx.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your booking"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// Cancel cancels a booking - PUT /api/v1/bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.bookingService.Cancel(bookingID, userCtx.UserID, userCtx.IsAdmin())
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// SetStatus applies an admin transition - PUT /api/v1/bookings/:id/status
func (h *BookingHandler) SetStatus(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req models.AdminSetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	switch req.Status {
	case models.BookingStatusPending, models.BookingStatusConfirmed,
		models.BookingStatusCancelled, models.BookingStatusCompleted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(req.Status)})
		return
	}

	var booking *models.Booking
	if req.Status == models.BookingStatusCompleted {
		booking, err = h.bookingService.Complete(bookingID)
	} else {
		booking, err = h.bookingService.AdminSetStatus(bookingID, req.Status)
	}
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// MyBookings lists the caller's bookings - GET /api/v1/bookings/my-bookings
func (h *BookingHandler) MyBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookings, err := h.bookingService.ListByUser(userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list user bookings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ListAll lists every booking - GET /api/v1/bookings/admin/all
func (h *BookingHandler) ListAll(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookingService.ListAll(limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list bookings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

func (h *BookingHandler) respondBookingError(c *gin.Context, err error) {
	var (
		vErr *models.ValidationError
		oErr *models.OverlapConflict
		tErr *models.InvalidTransition
	)
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
	case errors.As(err, &oErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "vehicle is already booked for the requested window",
			"vehicle_id": oErr.VehicleID,
			"pickup_at":  oErr.PickupAt,
			"dropoff_at": oErr.DropoffAt,
		})
	case errors.As(err, &tErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": tErr.Error(),
			"from":  tErr.From,
			"to":    tErr.To,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking or vehicle not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to modify this booking"})
	default:
		h.logger.WithError(err).Error("Booking operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// intentFromRequest parses and validates the request into a booking intent.
func intentFromRequest(userID uuid.UUID, req *models.CreateBookingRequest) (*models.BookingIntent, error) {
	vehicleID, err := uuid.Parse(req.VehicleID)
	if err != nil {
		return nil, models.NewValidationError("vehicle_id", "must be a valid uuid")
	}
	window, err := services.ParseWindow(req.PickupAt, req.DropoffAt)
	if err != nil {
		return nil, err
	}
	if req.TotalAmount <= 0 {
		return nil, models.NewValidationError("total_amount", "must be positive")
	}
	return &models.BookingIntent{
		UserID:          userID,
		VehicleID:       vehicleID,
		PickupAt:        window.PickupAt,
		DropoffAt:       window.DropoffAt,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		TotalAmount:     req.TotalAmount,
	}, nil
}
