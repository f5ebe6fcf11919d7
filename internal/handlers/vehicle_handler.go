package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/motofy/rental-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// VehicleHandler handles vehicle catalog HTTP requests
type VehicleHandler struct {
	vehicleRepo  *database.VehicleRepository
	availability *services.AvailabilityService
	cache        *services.CacheService
	logger       *logrus.Logger
}

// NewVehicleHandler creates a new VehicleHandler
func NewVehicleHandler(
	vehicleRepo *database.VehicleRepository,
	availability *services.AvailabilityService,
	cache *services.CacheService,
	logger *logrus.Logger,
) *VehicleHandler {
	return &VehicleHandler{
		vehicleRepo:  vehicleRepo,
		availability: availability,
		cache:        cache,
		logger:       logger,
	}
}

// List returns the catalog - GET /api/v1/vehicles
func (h *VehicleHandler) List(c *gin.Context) {
	if vehicles := h.cache.GetVehicleList(c.Request.Context()); vehicles != nil {
		c.JSON(http.StatusOK, gin.H{"vehicles": vehicles, "count": len(vehicles)})
		return
	}

	vehicles, err := h.vehicleRepo.List()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list vehicles")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vehicles"})
		return
	}
	h.cache.SetVehicleList(c.Request.Context(), vehicles)

	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles, "count": len(vehicles)})
}

// Get returns one vehicle - GET /api/v1/vehicles/:id
func (h *VehicleHandler) Get(c *gin.Context) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(vehicleID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load vehicle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vehicle"})
		return
	}
	if vehicle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
}

// Create adds a vehicle to the catalog - POST /api/v1/vehicles (admin)
func (h *VehicleHandler) Create(c *gin.Context) {
	var req models.CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	vehicle := &models.Vehicle{
		ID:             uuid.New(),
		Name:           req.Name,
		Brand:          req.Brand,
		PricePerDay:    req.PricePerDay,
		PricePerHour:   req.PricePerHour,
		FuelType:       req.FuelType,
		Seats:          req.Seats,
		Transmission:   req.Transmission,
		RegistrationNo: req.RegistrationNo,
		Description:    req.Description,
		Status:         models.VehicleStatusAvailable,
		Availability:   true,
	}
	if err := h.vehicleRepo.Create(vehicle); err != nil {
		h.logger.WithError(err).Error("Failed to create vehicle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create vehicle"})
		return
	}
	h.cache.InvalidateVehicleList(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{"vehicle": vehicle})
}

// Update edits catalog fields - PUT /api/v1/vehicles/:id (admin)
//
// Availability and status are not editable here; they belong to the
// availability synchronizer and the dedicated PATCH endpoint.
func (h *VehicleHandler) Update(c *gin.Context) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
		return
	}

	var req models.UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	vehicle, err := h.vehicleRepo.GetByID(vehicleID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load vehicle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vehicle"})
		return
	}
	if vehicle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return
	}

	applyVehicleUpdate(vehicle, &req)
	if err := h.vehicleRepo.Update(vehicle); err != nil {
		h.logger.WithError(err).Error("Failed to update vehicle")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update vehicle"})
		return
	}
	h.cache.InvalidateVehicle(c.Request.Context(), vehicleID)

	c.JSON(http.StatusOK, gin.H{"vehicle": vehicle})
}

// SetAvailabilityRequest is the PATCH /vehicles/:id/availability payload.
type SetAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// SetAvailability manually overrides the availability flag -
// PATCH /api/v1/vehicles/:id/availability (admin)
func (h *VehicleHandler) SetAvailability(c *gin.Context) {
	vehicleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
		return
	}

	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.availability.AdminSetAvailability(vehicleID, *req.Available); err != nil {
		var vErr *models.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusConflict, gin.H{"error": vErr.Error()})
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		default:
			h.logger.WithError(err).Error("Failed to set vehicle availability")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update availability"})
		}
		return
	}
	h.cache.InvalidateVehicle(c.Request.Context(), vehicleID)

	c.JSON(http.StatusOK, gin.H{"vehicle_id": vehicleID, "available": *req.Available})
}

func applyVehicleUpdate(vehicle *models.Vehicle, req *models.UpdateVehicleRequest) {
	if req.Name != nil {
		vehicle.Name = *req.Name
	}
	if req.Brand != nil {
		vehicle.Brand = *req.Brand
	}
	if req.PricePerDay != nil {
		vehicle.PricePerDay = *req.PricePerDay
	}
	if req.PricePerHour != nil {
		vehicle.PricePerHour = req.PricePerHour
	}
	if req.FuelType != nil {
		vehicle.FuelType = *req.FuelType
	}
	if req.Seats != nil {
		vehicle.Seats = *req.Seats
	}
	if req.Transmission != nil {
		vehicle.Transmission = *req.Transmission
	}
	if req.Description != nil {
		vehicle.Description = req.Description
	}
}
