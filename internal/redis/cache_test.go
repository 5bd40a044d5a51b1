package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalcare/slot-booking/internal/dentist"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleDentist(t *testing.T) *dentist.Dentist {
	t.Helper()
	sched, err := dentist.ParseSchedule(dentist.ScheduleDoc{
		Days:                map[string]string{"monday": "09:00-12:00"},
		SlotDurationMinutes: 30,
	})
	require.NoError(t, err)
	return &dentist.Dentist{ID: uuid.New(), Name: "Dr. Crown", Email: "crown@clinic.test", Schedule: sched}
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	addr := mr.Addr()
	client, err := NewRedisClient(context.Background(), addr, "", "")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = NewRedisClient(context.Background(), addr, "", "")
	assert.Error(t, err)
}

func TestProfileCacheRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewProfileCache(client, time.Hour, zerolog.Nop())
	ctx := context.Background()
	d := sampleDentist(t)

	_, ok := cache.Get(ctx, d.ID)
	assert.False(t, ok)

	cache.Set(ctx, d)
	assert.True(t, mr.Exists(profileKey(d.ID)))
	assert.Equal(t, time.Hour, mr.TTL(profileKey(d.ID)))

	got, ok := cache.Get(ctx, d.ID)
	require.True(t, ok)
	assert.Equal(t, d.Email, got.Email)
	assert.Equal(t, d.Schedule.Days[time.Monday], got.Schedule.Days[time.Monday])
}

func TestProfileCacheExpiresAndInvalidates(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewProfileCache(client, time.Minute, zerolog.Nop())
	ctx := context.Background()
	d := sampleDentist(t)

	cache.Set(ctx, d)
	mr.FastForward(time.Minute)
	_, ok := cache.Get(ctx, d.ID)
	assert.False(t, ok)

	cache.Set(ctx, d)
	cache.Invalidate(ctx, d.ID)
	_, ok = cache.Get(ctx, d.ID)
	assert.False(t, ok)
}

func TestProfileCacheDropsCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewProfileCache(client, time.Minute, zerolog.Nop())
	id := uuid.New()

	require.NoError(t, mr.Set(profileKey(id), "{not json"))
	_, ok := cache.Get(context.Background(), id)
	assert.False(t, ok)
	assert.False(t, mr.Exists(profileKey(id)))
}

func TestProfileCacheSatisfiesDentistCache(t *testing.T) {
	var _ dentist.Cache = (*ProfileCache)(nil)
}
