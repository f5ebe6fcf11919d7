package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/motofy/rental-backend/internal/config"
	"github.com/motofy/rental-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheService is a best-effort Redis layer. It caches the vehicle catalog
// and remembers which payment sessions a webhook already delivered. Every
// method degrades to a no-op on cache failure; Postgres stays authoritative
// and the unique session index, not the cache, is what makes reconciliation
// idempotent.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCacheService creates a CacheService, or nil when no Redis address is
// configured. A nil *CacheService is safe to call.
func NewCacheService(cfg *config.RedisConfig, logger *logrus.Logger) *CacheService {
	if cfg.Addr == "" {
		logger.Info("Redis not configured, caching disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &CacheService{client: client, ttl: cfg.TTL, logger: logger}
}

// NewCacheServiceWithClient wires an existing client, used by tests.
func NewCacheServiceWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CacheService {
	return &CacheService{client: client, ttl: ttl, logger: logger}
}

const (
	vehicleListKey   = "vehicles:list"
	sessionSeenKeyPf = "payment:session:seen:"
	sessionSeenTTL   = 48 * time.Hour
)

// GetVehicleList returns the cached catalog, or nil on miss or error.
func (c *CacheService) GetVehicleList(ctx context.Context) []models.Vehicle {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, vehicleListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Vehicle list cache read failed")
		}
		return nil
	}
	var vehicles []models.Vehicle
	if err := json.Unmarshal(raw, &vehicles); err != nil {
		c.logger.WithError(err).Warn("Vehicle list cache entry corrupt, dropping")
		c.client.Del(ctx, vehicleListKey)
		return nil
	}
	return vehicles
}

// SetVehicleList stores the catalog with the configured TTL.
func (c *CacheService) SetVehicleList(ctx context.Context, vehicles []models.Vehicle) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(vehicles)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, vehicleListKey, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Vehicle list cache write failed")
	}
}

// InvalidateVehicleList drops the cached catalog after any vehicle or
// availability write.
func (c *CacheService) InvalidateVehicleList(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, vehicleListKey).Err(); err != nil {
		c.logger.WithError(err).Warn("Vehicle list cache invalidation failed")
	}
}

// InvalidateVehicle drops cache entries affected by a write to one vehicle.
func (c *CacheService) InvalidateVehicle(ctx context.Context, vehicleID uuid.UUID) {
	c.InvalidateVehicleList(ctx)
}

// MarkSessionSeen records a webhook delivery for the session and reports
// whether it was already marked. Advisory only: a false answer on cache
// failure just means the reconciler does the full (still idempotent) path.
func (c *CacheService) MarkSessionSeen(ctx context.Context, sessionID string) bool {
	if c == nil {
		return false
	}
	set, err := c.client.SetNX(ctx, sessionSeenKeyPf+sessionID, time.Now().Unix(), sessionSeenTTL).Result()
	if err != nil {
		c.logger.WithError(err).Warn("Session replay marker write failed")
		return false
	}
	return !set
}

// Close releases the Redis connection.
func (c *CacheService) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
