package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/models"
)

// OverlapChecker decides whether a candidate rental window may be admitted
// for a vehicle. It is pure: no storage, no clock, no side effects. The
// database exclusion constraint is the final arbiter under concurrency; this
// checker gives callers a fast, testable rejection before any insert is
// attempted.
type OverlapChecker struct{}

// NewOverlapChecker creates an OverlapChecker.
func NewOverlapChecker() *OverlapChecker {
	return &OverlapChecker{}
}

// Admit returns nil when the candidate half-open window [PickupAt, DropoffAt)
// does not collide with any non-cancelled booking in existing. Degenerate
// windows are rejected before any overlap testing. Windows that touch
// exactly (one ends when the other starts) are admitted.
func (c *OverlapChecker) Admit(vehicleID uuid.UUID, candidate models.Window, existing []models.Booking) error {
	if !candidate.DropoffAt.After(candidate.PickupAt) {
		return models.NewValidationError("dropoff_at", "dropoff must be after pickup")
	}

	for i := range existing {
		b := &existing[i]
		if b.Status == models.BookingStatusCancelled {
			continue
		}
		if candidate.Overlaps(b.Window()) {
			return &models.OverlapConflict{
				VehicleID: vehicleID.String(),
				PickupAt:  candidate.PickupAt,
				DropoffAt: candidate.DropoffAt,
			}
		}
	}
	return nil
}

const dateOnlyLayout = "2006-01-02"

// ParseWindow parses pickup/dropoff strings into a Window. RFC 3339
// timestamps are used as-is; bare dates default to day bounds (00:00:00 for
// pickup, 23:59:59 for dropoff) so both precisions can coexist on one
// vehicle without a date-only booking blocking it forever.
func ParseWindow(pickup, dropoff string) (models.Window, error) {
	pickupAt, err := parseTimeOrDate(pickup, false)
	if err != nil {
		return models.Window{}, models.NewValidationError("pickup_at", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	dropoffAt, err := parseTimeOrDate(dropoff, true)
	if err != nil {
		return models.Window{}, models.NewValidationError("dropoff_at", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	if !dropoffAt.After(pickupAt) {
		return models.Window{}, models.NewValidationError("dropoff_at", "dropoff must be after pickup")
	}
	return models.Window{PickupAt: pickupAt, DropoffAt: dropoffAt}, nil
}

func parseTimeOrDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnlyLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location()), nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
}
