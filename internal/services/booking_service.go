package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingService owns the booking state machine. All transitions run inside
// a transaction together with the availability writes they imply, so a
// booking and its vehicle's flag always move together.
type BookingService struct {
	bookingRepo  *database.BookingRepository
	vehicleRepo  *database.VehicleRepository
	availability *AvailabilityService
	overlap      *OverlapChecker
	logger       *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	bookingRepo *database.BookingRepository,
	vehicleRepo *database.VehicleRepository,
	availability *AvailabilityService,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookingRepo:  bookingRepo,
		vehicleRepo:  vehicleRepo,
		availability: availability,
		overlap:      NewOverlapChecker(),
		logger:       logger,
	}
}

// AdmitIntent validates a booking intent against the vehicle catalog and the
// vehicle's active bookings. It is a pre-flight check only; the database
// exclusion constraint remains the arbiter under concurrency.
func (s *BookingService) AdmitIntent(intent *models.BookingIntent) error {
	vehicle, err := s.vehicleRepo.GetByID(intent.VehicleID)
	if err != nil {
		return err
	}
	if vehicle == nil {
		return models.ErrNotFound
	}
	if vehicle.Status == models.VehicleStatusMaintenance {
		return &models.ValidationError{Field: "vehicle_id", Message: "vehicle is under maintenance"}
	}
	if !vehicle.Availability {
		return &models.OverlapConflict{
			VehicleID: intent.VehicleID.String(),
			PickupAt:  intent.PickupAt,
			DropoffAt: intent.DropoffAt,
		}
	}

	existing, err := s.bookingRepo.ListActiveByVehicle(intent.VehicleID)
	if err != nil {
		return err
	}
	candidate := models.Window{PickupAt: intent.PickupAt, DropoffAt: intent.DropoffAt}
	return s.overlap.Admit(intent.VehicleID, candidate, existing)
}

// Create places a Pending hold on the vehicle for the intent's window.
// Admission runs first for a clean error, but the insert itself can still
// lose a race; the repository surfaces that as the same OverlapConflict.
func (s *BookingService) Create(intent *models.BookingIntent) (*models.Booking, error) {
	if err := s.AdmitIntent(intent); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:              uuid.New(),
		UserID:          intent.UserID,
		VehicleID:       intent.VehicleID,
		PickupAt:        intent.PickupAt,
		DropoffAt:       intent.DropoffAt,
		PickupLocation:  intent.PickupLocation,
		DropoffLocation: intent.DropoffLocation,
		TotalAmount:     intent.TotalAmount,
		Status:          models.BookingStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   "stripe",
	}
	if err := s.bookingRepo.Create(booking); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"vehicle_id": booking.VehicleID,
		"user_id":    booking.UserID,
	}).Info("Booking created")

	return booking, nil
}

// ConfirmViaPayment makes the booking for intent Confirmed and paid under
// sessionID. If the user already holds an exact-match Pending booking it is
// promoted in place; otherwise a fresh Confirmed row is inserted. Either
// path hits the unique payment session index, so a second confirmation of
// the same session fails with DuplicateSession and never writes twice.
func (s *BookingService) ConfirmViaPayment(intent *models.BookingIntent, sessionID string) (*models.Booking, error) {
	tx, err := s.bookingRepo.BeginTx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pending, err := s.bookingRepo.FindPendingForIntentTx(tx, intent.UserID, intent.VehicleID, intent.PickupAt, intent.DropoffAt)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	if pending != nil {
		if err := s.bookingRepo.MarkConfirmedTx(tx, pending.ID, sessionID); err != nil {
			return nil, err
		}
		pending.Status = models.BookingStatusConfirmed
		pending.PaymentStatus = models.PaymentStatusPaid
		pending.PaymentSessionID = &sessionID
		booking = pending
	} else {
		booking = &models.Booking{
			ID:               uuid.New(),
			UserID:           intent.UserID,
			VehicleID:        intent.VehicleID,
			PickupAt:         intent.PickupAt,
			DropoffAt:        intent.DropoffAt,
			PickupLocation:   intent.PickupLocation,
			DropoffLocation:  intent.DropoffLocation,
			TotalAmount:      intent.TotalAmount,
			Status:           models.BookingStatusConfirmed,
			PaymentStatus:    models.PaymentStatusPaid,
			PaymentSessionID: &sessionID,
			PaymentMethod:    "stripe",
		}
		if err := s.bookingRepo.CreateTx(tx, booking); err != nil {
			return nil, err
		}
	}

	if err := s.availability.SetUnavailableTx(tx, booking.VehicleID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"session_id": sessionID,
		"promoted":   pending != nil,
	}).Info("Booking confirmed via payment")

	return booking, nil
}

// Cancel transitions a booking to Cancelled on behalf of its owner, or of an
// admin acting on any booking. A paid booking is marked refunded.
func (s *BookingService) Cancel(bookingID, actorID uuid.UUID, isAdmin bool) (*models.Booking, error) {
	tx, err := s.bookingRepo.BeginTx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDTx(tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrNotFound
	}
	if !isAdmin && booking.UserID != actorID {
		return nil, models.ErrForbidden
	}
	if !booking.IsActive() {
		return nil, &models.InvalidTransition{
			From:   booking.Status,
			To:     models.BookingStatusCancelled,
			Reason: "only pending or confirmed bookings can be cancelled",
		}
	}

	wasConfirmed := booking.Status == models.BookingStatusConfirmed
	paymentStatus := booking.PaymentStatus
	if paymentStatus == models.PaymentStatusPaid {
		paymentStatus = models.PaymentStatusRefunded
	}

	if err := s.bookingRepo.UpdateStatusTx(tx, booking, models.BookingStatusCancelled, paymentStatus); err != nil {
		return nil, err
	}
	if wasConfirmed {
		if err := s.availability.ReleaseIfNoOtherActiveTx(tx, booking.VehicleID, bookingID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCancelled
	booking.PaymentStatus = paymentStatus

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"actor_id":   actorID,
		"admin":      isAdmin,
	}).Info("Booking cancelled")

	return booking, nil
}

// AdminSetStatus applies an arbitrary allowed transition. Re-confirming a
// cancelled booking is permitted only while its window has not started, and
// re-enters the overlap constraint like any other claim on the vehicle.
func (s *BookingService) AdminSetStatus(bookingID uuid.UUID, target models.BookingStatus) (*models.Booking, error) {
	tx, err := s.bookingRepo.BeginTx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := s.bookingRepo.GetByIDTx(tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrNotFound
	}

	if err := validateTransition(booking, target, time.Now()); err != nil {
		return nil, err
	}

	paymentStatus := booking.PaymentStatus
	switch target {
	case models.BookingStatusConfirmed:
		paymentStatus = models.PaymentStatusPaid
	case models.BookingStatusCancelled:
		if paymentStatus == models.PaymentStatusPaid {
			paymentStatus = models.PaymentStatusRefunded
		}
	}

	if err := s.bookingRepo.UpdateStatusTx(tx, booking, target, paymentStatus); err != nil {
		return nil, err
	}

	switch {
	case target == models.BookingStatusConfirmed:
		err = s.availability.SetUnavailableTx(tx, booking.VehicleID)
	case booking.Status == models.BookingStatusConfirmed:
		// Leaving Confirmed releases the vehicle unless another confirmed
		// booking still holds it.
		err = s.availability.ReleaseIfNoOtherActiveTx(tx, booking.VehicleID, bookingID)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	from := booking.Status
	booking.Status = target
	booking.PaymentStatus = paymentStatus

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"from":       from,
		"to":         target,
	}).Info("Booking status updated")

	return booking, nil
}

// Complete marks a confirmed booking finished and releases its vehicle.
func (s *BookingService) Complete(bookingID uuid.UUID) (*models.Booking, error) {
	return s.AdminSetStatus(bookingID, models.BookingStatusCompleted)
}

// GetByID returns one booking or ErrNotFound.
func (s *BookingService) GetByID(id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.ErrNotFound
	}
	return booking, nil
}

// ListByUser returns a user's bookings, newest first.
func (s *BookingService) ListByUser(userID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.ListByUser(userID)
}

// ListAll returns a page of all bookings for admin views.
func (s *BookingService) ListAll(limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListAll(limit, offset)
}

func validateTransition(booking *models.Booking, target models.BookingStatus, now time.Time) error {
	from := booking.Status
	if from == target {
		return &models.InvalidTransition{From: from, To: target, Reason: "booking is already in that status"}
	}

	switch from {
	case models.BookingStatusPending:
		if target == models.BookingStatusConfirmed || target == models.BookingStatusCancelled {
			return nil
		}
	case models.BookingStatusConfirmed:
		if target == models.BookingStatusCompleted || target == models.BookingStatusCancelled {
			return nil
		}
	case models.BookingStatusCancelled:
		if target == models.BookingStatusConfirmed {
			if now.After(booking.PickupAt) {
				return &models.InvalidTransition{
					From:   from,
					To:     target,
					Reason: "cannot reinstate a booking whose pickup time has passed",
				}
			}
			return nil
		}
	}
	return &models.InvalidTransition{From: from, To: target, Reason: "transition not allowed"}
}
