package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/dentist"
)

const profileKeyPrefix = "dentist:profile:"

// ProfileCache keeps dentist profiles in Redis so every api-server instance
// sees the same entry and an invalidation on one instance reaches all.
// Redis errors degrade to cache misses.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewProfileCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *ProfileCache {
	return &ProfileCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "profile-cache").Logger(),
	}
}

func profileKey(id uuid.UUID) string {
	return profileKeyPrefix + id.String()
}

func (c *ProfileCache) Get(ctx context.Context, id uuid.UUID) (*dentist.Dentist, bool) {
	raw, err := c.client.Get(ctx, profileKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("dentist_id", id.String()).Msg("profile cache read failed")
		}
		return nil, false
	}

	var d dentist.Dentist
	if err := json.Unmarshal(raw, &d); err != nil {
		c.logger.Warn().Err(err).Str("dentist_id", id.String()).Msg("dropping undecodable cached profile")
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &d, true
}

func (c *ProfileCache) Set(ctx context.Context, d *dentist.Dentist) {
	if d == nil || c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		c.logger.Warn().Err(err).Str("dentist_id", d.ID.String()).Msg("profile encode failed")
		return
	}
	if err := c.client.Set(ctx, profileKey(d.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("dentist_id", d.ID.String()).Msg("profile cache write failed")
	}
}

func (c *ProfileCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, profileKey(id)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("dentist_id", id.String()).Msg("profile cache invalidate failed")
	}
}
