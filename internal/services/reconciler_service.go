package services

import (
	"context"
	"fmt"

	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/mssola/user_agent"
	"github.com/sirupsen/logrus"
)

// RequestMeta carries transport-level details of the request that triggered
// reconciliation, recorded in the payment audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// ReconcilerService is the single entry point that turns "payment succeeded"
// into "booking confirmed". Both the provider webhook and the client poll
// funnel into Reconcile; whichever arrives first wins and the other observes
// the same committed row. The unique index on payment_session_id is the only
// mutual exclusion — no in-process lock, because the two triggers may land
// on different instances.
type ReconcilerService struct {
	bookingRepo    *database.BookingRepository
	bookingService *BookingService
	provider       PaymentProvider
	auditRepo      *database.PaymentAuditRepository
	cache          *CacheService
	logger         *logrus.Logger
}

// NewReconcilerService creates a new ReconcilerService
func NewReconcilerService(
	bookingRepo *database.BookingRepository,
	bookingService *BookingService,
	provider PaymentProvider,
	auditRepo *database.PaymentAuditRepository,
	cache *CacheService,
	logger *logrus.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		bookingRepo:    bookingRepo,
		bookingService: bookingService,
		provider:       provider,
		auditRepo:      auditRepo,
		cache:          cache,
		logger:         logger,
	}
}

// Reconcile resolves a payment session into its confirmed booking.
//
// Returns the confirmed booking on success (including when another attempt
// already confirmed it), ErrPendingPayment while the provider has not seen
// the money, TransientUpstream when the provider is unreachable or the
// intent has not arrived yet, and PermanentReconciliationFailure when the
// session is paid but its intent is unrecoverable.
func (s *ReconcilerService) Reconcile(ctx context.Context, sessionID string, source models.PaymentEventSource, meta RequestMeta) (*models.Booking, error) {
	log := s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"source":     source,
	})

	existing, err := s.bookingRepo.GetByPaymentSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.PaymentStatus == models.PaymentStatusPaid {
		log.WithField("booking_id", existing.ID).Info("Session already reconciled")
		s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventDuplicateSession, source).
			SetBooking(existing.ID), meta)
		return existing, nil
	}

	session, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		tErr := &models.TransientUpstream{SessionID: sessionID, Cause: err}
		log.WithError(err).Warn("Provider session lookup failed")
		s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventReconcileFailed, source).
			SetError(tErr), meta)
		return nil, tErr
	}

	if !session.IsPaid() {
		log.WithField("payment_status", session.PaymentStatus).Info("Session not paid yet")
		return nil, models.ErrPendingPayment
	}

	intent, err := session.BookingIntent()
	if err != nil {
		// Paid but the intent blob cannot be decoded. Retrying will never
		// help; a human has to confirm this booking from the audit trail.
		pErr := &models.PermanentReconciliationFailure{SessionID: sessionID, Cause: err}
		log.WithError(err).Error("Paid session carries unrecoverable booking intent")
		s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventReconcileFailed, source).
			SetError(pErr).SetRawBody(session.Metadata["booking_intent"]), meta)
		return nil, pErr
	}
	if intent == nil {
		// A callback can race ahead of the intent becoming visible on the
		// provider side. Transient: redelivery or the next poll retries.
		tErr := &models.TransientUpstream{
			SessionID: sessionID,
			Cause:     fmt.Errorf("paid session has no booking intent attached"),
		}
		log.Warn("Paid session has no booking intent yet")
		s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventReconcileFailed, source).
			SetError(tErr), meta)
		return nil, tErr
	}

	expected := intent.TotalAmount
	received := float64(session.AmountTotal) / 100

	booking, err := s.bookingService.ConfirmViaPayment(intent, sessionID)
	if err != nil {
		// A losing racer can trip either constraint: the session unique
		// index, or the overlap exclusion when the winner's row already
		// occupies the window. Whichever fired, the winner's row is the
		// canonical result as long as the session owns one.
		if models.IsDuplicateSession(err) || models.IsOverlapConflict(err) {
			winner, ferr := s.bookingRepo.GetByPaymentSessionID(sessionID)
			if ferr != nil {
				return nil, ferr
			}
			if winner != nil {
				log.WithField("booking_id", winner.ID).Info("Concurrent reconciliation won the race, returning winner")
				s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventDuplicateSession, source).
					SetBooking(winner.ID), meta)
				return winner, nil
			}
			if models.IsDuplicateSession(err) {
				return nil, fmt.Errorf("session %s confirmed concurrently but booking not found", sessionID)
			}
			// Overlap with an unrelated booking, not a race. Fall through.
		}
		log.WithError(err).Error("Booking confirmation failed for paid session")
		s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventReconcileFailed, source).
			SetError(err).SetAmounts(expected, received), meta)
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateVehicle(ctx, booking.VehicleID)
	}

	log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"vehicle_id": booking.VehicleID,
	}).Info("Booking confirmed from payment session")
	s.audit(models.NewPaymentAudit(sessionID, models.PaymentEventBookingConfirmed, source).
		SetBooking(booking.ID).SetAmounts(expected, received), meta)

	return booking, nil
}

// RecordDelivery logs the arrival of a payment event before any processing,
// so even deliveries that fail signature-adjacent parsing leave a trace.
func (s *ReconcilerService) RecordDelivery(sessionID string, source models.PaymentEventSource, rawBody string, meta RequestMeta) {
	audit := models.NewPaymentAudit(sessionID, models.PaymentEventWebhookReceived, source)
	if source == models.PaymentSourcePoll {
		audit.EventType = models.PaymentEventVerifyPoll
	}
	if rawBody != "" {
		audit.SetRawBody(rawBody)
	}
	s.audit(audit, meta)
}

// SeenBefore reports whether a webhook for this session was already
// delivered, using the cache's replay marker. Advisory only.
func (s *ReconcilerService) SeenBefore(ctx context.Context, sessionID string) bool {
	return s.cache.MarkSessionSeen(ctx, sessionID)
}

func (s *ReconcilerService) audit(audit *models.PaymentAudit, meta RequestMeta) {
	if meta.IPAddress != "" {
		audit.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		audit.UserAgent = &meta.UserAgent
		ua := user_agent.New(meta.UserAgent)
		name, version := ua.Browser()
		family := fmt.Sprintf("%s %s (%s)", name, version, ua.OS())
		audit.DeviceFamily = &family
	}
	if err := s.auditRepo.Insert(audit); err != nil {
		// Auditing never blocks reconciliation.
		s.logger.WithError(err).WithField("session_id", audit.SessionID).
			Error("Failed to write payment audit entry")
	}
}
