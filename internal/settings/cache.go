package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

const cacheKey = "app_settings:v1"

type Store interface {
	Settings(ctx context.Context) (*models.VenueSettings, error)
	SaveSettings(ctx context.Context, settings models.VenueSettings) error
}

// Source serves venue settings with a Redis read-through cache in front
// of the store. The kiosk reads settings on every receipt, the row
// changes almost never. With no Redis client it degrades to direct
// reads; with the store down it serves built-in defaults.
type Source struct {
	Store Store
	Redis *redis.Client // nil disables caching
	TTL   time.Duration
	Log   *logger.Logger
}

func NewSource(store Store, redisClient *redis.Client, ttl time.Duration, log *logger.Logger) *Source {
	return &Source{Store: store, Redis: redisClient, TTL: ttl, Log: log}
}

// Current never fails: any store or cache trouble falls back to the
// default settings with a warning.
func (s *Source) Current(ctx context.Context) models.VenueSettings {
	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var settings models.VenueSettings
			if err := json.Unmarshal([]byte(cached), &settings); err == nil {
				return settings
			}
		} else if err != redis.Nil {
			s.Log.Warn("SETTINGS", fmt.Sprintf("Redis read failed: %v", err))
		}
	}

	stored, err := s.Store.Settings(ctx)
	if err != nil {
		s.Log.Warn("SETTINGS", fmt.Sprintf("Falling back to defaults: %v", err))
		return models.DefaultSettings()
	}

	s.cache(ctx, *stored)
	return *stored
}

// Save writes through to the store and refreshes the cache.
func (s *Source) Save(ctx context.Context, settings models.VenueSettings) error {
	if err := s.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	s.cache(ctx, settings)
	return nil
}

func (s *Source) cache(ctx context.Context, settings models.VenueSettings) {
	if s.Redis == nil {
		return
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, cacheKey, payload, s.TTL).Err(); err != nil {
		s.Log.Warn("SETTINGS", fmt.Sprintf("Redis write failed: %v", err))
	}
}
