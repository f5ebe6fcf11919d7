package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/middleware"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/motofy/rental-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// PaymentHandler exposes the checkout endpoint and the two transport
// adapters into the reconciler: the provider webhook and the client poll.
type PaymentHandler struct {
	stripeService  *services.StripeService
	reconciler     *services.ReconcilerService
	bookingService *services.BookingService
	vehicleRepo    *database.VehicleRepository
	auditRepo      *database.PaymentAuditRepository
	logger         *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(
	stripeService *services.StripeService,
	reconciler *services.ReconcilerService,
	bookingService *services.BookingService,
	vehicleRepo *database.VehicleRepository,
	auditRepo *database.PaymentAuditRepository,
	logger *logrus.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		stripeService:  stripeService,
		reconciler:     reconciler,
		bookingService: bookingService,
		vehicleRepo:    vehicleRepo,
		auditRepo:      auditRepo,
		logger:         logger,
	}
}

// CreateCheckoutSession opens a hosted payment page for a booking intent -
// POST /api/v1/payments/create-checkout-session
//
// The intent is validated against the overlap rules before the user is sent
// to pay, so nobody pays for a window that cannot be confirmed.
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
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

	if err := h.bookingService.AdmitIntent(intent); err != nil {
		var oErr *models.OverlapConflict
		switch {
		case errors.As(err, &oErr):
			c.JSON(http.StatusConflict, gin.H{"error": "vehicle is already booked for the requested window"})
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(intent.VehicleID)
	if err != nil || vehicle == nil {
		h.logger.WithError(err).Error("Failed to load vehicle for checkout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start checkout"})
		return
	}

	session, err := h.stripeService.CreateCheckoutSession(c.Request.Context(), intent, vehicle.Name)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create checkout session")
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, try again"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// Webhook receives provider callbacks - POST /api/v1/payments/webhook
//
// The signature is verified against the raw body. After that the response is
// always 200 {received:true}, even when reconciliation fails internally;
// anything else trains the provider to hammer us with retries. Failures are
// logged and audited for out-of-band remediation.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := h.stripeService.ParseWebhookEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.WithError(err).Warn("Webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		// Not an event we act on. Acknowledge and move on.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	session, err := services.SessionFromEvent(event)
	if err != nil || session.ID == "" {
		h.logger.WithError(err).WithField("event_id", event.ID).Error("Webhook event carries no usable session")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	meta := services.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	h.reconciler.RecordDelivery(session.ID, models.PaymentSourceWebhook, string(body), meta)

	if h.reconciler.SeenBefore(c.Request.Context(), session.ID) {
		h.logger.WithField("session_id", session.ID).Info("Duplicate webhook delivery")
	}

	if _, err := h.reconciler.Reconcile(c.Request.Context(), session.ID, models.PaymentSourceWebhook, meta); err != nil {
		if !errors.Is(err, models.ErrPendingPayment) {
			h.logger.WithError(err).WithField("session_id", session.ID).
				Error("Webhook reconciliation failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// VerifySession is the client poll - GET /api/v1/payments/verify/:session_id
//
// Returns {status: confirmed|pending|failed}; confirmed responses include
// the booking.
func (h *PaymentHandler) VerifySession(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session id"})
		return
	}

	meta := services.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	h.reconciler.RecordDelivery(sessionID, models.PaymentSourcePoll, "", meta)

	booking, err := h.reconciler.Reconcile(c.Request.Context(), sessionID, models.PaymentSourcePoll, meta)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrPendingPayment):
			c.JSON(http.StatusOK, gin.H{"status": "pending"})
		case models.IsTransient(err):
			c.JSON(http.StatusOK, gin.H{"status": "pending", "retry": true})
		default:
			// Paid but unconfirmable. The money is safe; support picks it
			// up from the audit trail.
			h.logger.WithError(err).WithField("session_id", sessionID).
				Error("Verify poll hit unrecoverable reconciliation failure")
			c.JSON(http.StatusOK, gin.H{
				"status":  "failed",
				"message": "payment received, booking pending manual confirmation",
			})
		}
		return
	}

	if booking.UserID != userCtx.UserID && !userCtx.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your payment session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "confirmed", "booking": booking})
}

// SessionAudit returns the audit trail for one payment session -
// GET /api/v1/payments/admin/audit/:session_id
//
// This is the support tool for sessions stuck in
// "payment received, booking pending manual confirmation".
func (h *PaymentHandler) SessionAudit(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session id"})
		return
	}

	entries, err := h.auditRepo.ListBySession(sessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load payment audit trail")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit trail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "events": entries, "count": len(entries)})
}
