package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *IncidentRepository) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := NewIncidentRepository(nil, client, time.Minute).(*IncidentRepository)
	return mr, repo
}

func TestIncidentCache_RoundTrip(t *testing.T) {
	mr, repo := setupTestRedis(t)
	ctx := context.Background()

	cached, version, err := repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Equal(t, int64(0), version)

	incident := &models.Incident{ID: 5, Type: models.IncidentFire, Status: models.StatusPending}
	stored, err := repo.SetIncidentCache(ctx, incident, version)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, time.Minute, mr.TTL("incident:5"))

	cached, _, err = repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, models.StatusPending, cached.Status)
}

func TestIncidentCache_InvalidateBumpsGeneration(t *testing.T) {
	mr, repo := setupTestRedis(t)
	ctx := context.Background()

	_, err := repo.SetIncidentCache(ctx, &models.Incident{ID: 5}, 0)
	require.NoError(t, err)

	require.NoError(t, repo.InvalidateIncidentCache(ctx, 5))

	assert.False(t, mr.Exists("incident:5"))
	gen, err := mr.Get("incident:5:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	assert.Equal(t, cacheGenerationTTL, mr.TTL("incident:5:gen"))

	cached, version, err := repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Equal(t, int64(1), version)
}

func TestIncidentCache_StaleWriteSkipped(t *testing.T) {
	mr, repo := setupTestRedis(t)
	ctx := context.Background()

	// читатель получил промах и поколение до того, как происшествие приняли
	_, version, err := repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, repo.InvalidateIncidentCache(ctx, 5))

	stale := &models.Incident{ID: 5, Status: models.StatusPending}
	stored, err := repo.SetIncidentCache(ctx, stale, version)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("incident:5"))

	// следующий читатель с актуальным поколением пишет как обычно
	_, version, err = repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)
	fresh := &models.Incident{ID: 5, Status: models.StatusAccepted}
	stored, err = repo.SetIncidentCache(ctx, fresh, version)
	require.NoError(t, err)
	assert.True(t, stored)

	cached, _, err := repo.GetIncidentFromCache(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, cached.Status)
}

func TestIncidentCache_RedisDown(t *testing.T) {
	mr, repo := setupTestRedis(t)
	mr.Close()

	_, _, err := repo.GetIncidentFromCache(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to get incident from cache")
}
