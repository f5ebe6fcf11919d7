package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleStatus is the coarse state shown in the catalog.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "Available"
	VehicleStatusBooked      VehicleStatus = "Booked"
	VehicleStatusMaintenance VehicleStatus = "Maintenance"
)

// Vehicle is a rentable unit in the catalog. Availability is derived from the
// set of Confirmed bookings and written only by the availability
// synchronizer, never directly by admin endpoints while a Confirmed booking
// holds the vehicle.
type Vehicle struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	Name           string        `json:"name" db:"name"`
	Brand          string        `json:"brand" db:"brand"`
	PricePerDay    float64       `json:"price_per_day" db:"price_per_day"`
	PricePerHour   *float64      `json:"price_per_hour,omitempty" db:"price_per_hour"`
	FuelType       string        `json:"fuel_type" db:"fuel_type"`
	Seats          int           `json:"seats" db:"seats"`
	Transmission   string        `json:"transmission" db:"transmission"`
	RegistrationNo string        `json:"registration_no" db:"registration_no"`
	Description    *string       `json:"description,omitempty" db:"description"`
	Status         VehicleStatus `json:"status" db:"status"`
	Availability   bool          `json:"availability" db:"availability"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// CreateVehicleRequest is the admin POST /vehicles payload.
type CreateVehicleRequest struct {
	Name           string   `json:"name" binding:"required"`
	Brand          string   `json:"brand" binding:"required"`
	PricePerDay    float64  `json:"price_per_day" binding:"required,gt=0"`
	PricePerHour   *float64 `json:"price_per_hour"`
	FuelType       string   `json:"fuel_type" binding:"required"`
	Seats          int      `json:"seats" binding:"required,gt=0"`
	Transmission   string   `json:"transmission" binding:"required"`
	RegistrationNo string   `json:"registration_no" binding:"required"`
	Description    *string  `json:"description"`
}

// UpdateVehicleRequest is the admin PUT /vehicles/:id payload. Nil fields are
// left unchanged.
type UpdateVehicleRequest struct {
	Name         *string  `json:"name"`
	Brand        *string  `json:"brand"`
	PricePerDay  *float64 `json:"price_per_day"`
	PricePerHour *float64 `json:"price_per_hour"`
	FuelType     *string  `json:"fuel_type"`
	Seats        *int     `json:"seats"`
	Transmission *string  `json:"transmission"`
	Description  *string  `json:"description"`
}
