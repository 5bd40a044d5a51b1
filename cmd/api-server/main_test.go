package main

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/dentalcare/slot-booking/internal/config"
	"github.com/dentalcare/slot-booking/internal/dentist"
	redisclient "github.com/dentalcare/slot-booking/internal/redis"
)

func TestNewProfileCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tests := []struct {
		name    string
		backend string
		rdb     *redis.Client
		redis   bool
	}{
		{name: "memory backend", backend: config.CacheBackendMemory, rdb: rdb},
		{name: "redis backend", backend: config.CacheBackendRedis, rdb: rdb, redis: true},
		{name: "redis backend without connection", backend: config.CacheBackendRedis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{DentistCacheBackend: tt.backend, DentistCacheTTL: time.Hour}
			cache := newProfileCache(cfg, tt.rdb, zerolog.Nop())
			if tt.redis {
				assert.IsType(t, &redisclient.ProfileCache{}, cache)
				return
			}
			assert.IsType(t, &dentist.MemoryCache{}, cache)
		})
	}
}
