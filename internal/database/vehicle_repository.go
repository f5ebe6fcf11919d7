package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/motofy/rental-backend/internal/models"
)

// VehicleRepository handles vehicle table operations.
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository creates a new VehicleRepository
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `
	id, name, brand, price_per_day, price_per_hour, fuel_type, seats,
	transmission, registration_no, description, status, availability,
	created_at, updated_at`

// Create inserts a new vehicle.
func (r *VehicleRepository) Create(vehicle *models.Vehicle) error {
	if vehicle.ID == uuid.Nil {
		vehicle.ID = uuid.New()
	}
	now := time.Now()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now
	if vehicle.Status == "" {
		vehicle.Status = models.VehicleStatusAvailable
		vehicle.Availability = true
	}

	query := `
		INSERT INTO vehicles (
			id, name, brand, price_per_day, price_per_hour, fuel_type, seats,
			transmission, registration_no, description, status, availability,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(query,
		vehicle.ID, vehicle.Name, vehicle.Brand, vehicle.PricePerDay, vehicle.PricePerHour,
		vehicle.FuelType, vehicle.Seats, vehicle.Transmission, vehicle.RegistrationNo,
		vehicle.Description, vehicle.Status, vehicle.Availability,
		vehicle.CreatedAt, vehicle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// GetByID retrieves a vehicle by ID. Returns (nil, nil) when missing.
func (r *VehicleRepository) GetByID(id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	err := r.db.Get(&vehicle, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &vehicle, nil
}

// List returns the catalog, newest first.
func (r *VehicleRepository) List() ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY created_at DESC`
	if err := r.db.Select(&vehicles, query); err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return vehicles, nil
}

// Update persists mutable catalog fields. Availability and status are
// deliberately excluded; the synchronizer owns those.
func (r *VehicleRepository) Update(vehicle *models.Vehicle) error {
	vehicle.UpdatedAt = time.Now()
	query := `
		UPDATE vehicles
		SET name = $1, brand = $2, price_per_day = $3, price_per_hour = $4,
		    fuel_type = $5, seats = $6, transmission = $7, description = $8,
		    updated_at = $9
		WHERE id = $10`
	result, err := r.db.Exec(query,
		vehicle.Name, vehicle.Brand, vehicle.PricePerDay, vehicle.PricePerHour,
		vehicle.FuelType, vehicle.Seats, vehicle.Transmission, vehicle.Description,
		vehicle.UpdatedAt, vehicle.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetAvailabilityTx writes the derived availability inside tx, so it commits
// or rolls back together with the booking-state change that caused it.
func (r *VehicleRepository) SetAvailabilityTx(tx *sqlx.Tx, vehicleID uuid.UUID, available bool) error {
	status := models.VehicleStatusBooked
	if available {
		status = models.VehicleStatusAvailable
	}
	query := `UPDATE vehicles SET availability = $1, status = $2, updated_at = $3 WHERE id = $4`
	result, err := tx.Exec(query, available, status, time.Now(), vehicleID)
	if err != nil {
		return fmt.Errorf("failed to set vehicle availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set vehicle availability: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}
