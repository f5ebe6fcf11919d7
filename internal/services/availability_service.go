package services

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// AvailabilityService derives a vehicle's availability flag from its
// bookings. It is the only writer of vehicles.availability; every call runs
// inside the caller's booking transaction so the flag can never drift from
// the booking state that justifies it.
type AvailabilityService struct {
	vehicleRepo *database.VehicleRepository
	bookingRepo *database.BookingRepository
	logger      *logrus.Logger
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(
	vehicleRepo *database.VehicleRepository,
	bookingRepo *database.BookingRepository,
	logger *logrus.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		vehicleRepo: vehicleRepo,
		bookingRepo: bookingRepo,
		logger:      logger,
	}
}

// AdminSetAvailability is the manual override endpoint's path. Marking a
// vehicle available is refused while any Confirmed booking still holds it;
// the flag is derived state and an override must not contradict the bookings
// that derive it.
func (s *AvailabilityService) AdminSetAvailability(vehicleID uuid.UUID, available bool) error {
	tx, err := s.bookingRepo.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if available {
		held, err := s.bookingRepo.CountConfirmedExcluding(tx, vehicleID, uuid.Nil)
		if err != nil {
			return err
		}
		if held > 0 {
			return models.NewValidationError("availability",
				"vehicle has confirmed bookings and cannot be marked available")
		}
	}
	if err := s.vehicleRepo.SetAvailabilityTx(tx, vehicleID, available); err != nil {
		return err
	}
	return tx.Commit()
}

// SetUnavailableTx marks the vehicle unavailable inside tx. Called whenever
// a booking for it becomes Confirmed.
func (s *AvailabilityService) SetUnavailableTx(tx *sqlx.Tx, vehicleID uuid.UUID) error {
	return s.vehicleRepo.SetAvailabilityTx(tx, vehicleID, false)
}

// ReleaseIfNoOtherActiveTx restores availability inside tx only when no
// Confirmed booking other than the excluded one still holds the vehicle.
// The re-query is deliberate: a vehicle can carry several Confirmed bookings
// if the overlap invariant was ever bypassed, and releasing on the strength
// of "we just cancelled one" would lie about the rest.
func (s *AvailabilityService) ReleaseIfNoOtherActiveTx(tx *sqlx.Tx, vehicleID, excludingBookingID uuid.UUID) error {
	remaining, err := s.bookingRepo.CountConfirmedExcluding(tx, vehicleID, excludingBookingID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		s.logger.WithFields(logrus.Fields{
			"vehicle_id":         vehicleID,
			"remaining_bookings": remaining,
		}).Info("Vehicle kept unavailable, other confirmed bookings remain")
		return nil
	}
	return s.vehicleRepo.SetAvailabilityTx(tx, vehicleID, true)
}
