package idempotency

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func exerciseStore(t *testing.T, store Store, prefix string) {
	ctx := context.Background()
	now := fixedTime
	key := prefix + "checkout|key-1"

	res, err := store.Reserve(ctx, key, "fp-1", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)

	res, err = store.Reserve(ctx, key, "fp-1", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, res.State)

	_, err = store.Reserve(ctx, key, "fp-2", now, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	resp := Response{
		Status:  http.StatusCreated,
		Headers: http.Header{"Content-Type": {"application/json"}, "Content-Length": {"12"}},
		Body:    []byte(`{"ok":true}`),
	}
	require.NoError(t, store.SaveResponse(ctx, key, "fp-1", resp, now.Add(time.Minute), time.Hour))

	res, err = store.Reserve(ctx, key, "fp-1", now.Add(2*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateCompleted, res.State)
	assert.Equal(t, http.StatusCreated, res.Record.ResponseStatus)
	assert.Equal(t, []byte(`{"ok":true}`), res.Record.ResponseBody)
	assert.Equal(t, []string{"application/json"}, res.Record.ResponseHeaders["Content-Type"])
	assert.NotContains(t, res.Record.ResponseHeaders, "Content-Length")

	require.NoError(t, store.Release(ctx, key))
	res, err = store.Reserve(ctx, key, "fp-2", now.Add(3*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "")
}

func TestMemoryStore_ExpiredRecordsAreReplaced(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Reserve(ctx, "k", "fp-1", fixedTime, time.Minute)
	require.NoError(t, err)

	res, err := store.Reserve(ctx, "k", "fp-2", fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, res.State)
	assert.Equal(t, "fp-2", res.Record.Fingerprint)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := store.Reserve(ctx, key, "fp", fixedTime, time.Minute)
		require.NoError(t, err)
	}
	_, err := store.Reserve(ctx, "fresh", "fp", fixedTime, time.Hour)
	require.NoError(t, err)

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(10*time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = store.CleanupExpired(ctx, fixedTime.Add(10*time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	res, err := store.Reserve(ctx, "fresh", "fp", fixedTime.Add(10*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, res.State)
}

type RedisStoreSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	suite.Run(t, &RedisStoreSuite{client: redis.NewClient(&redis.Options{Addr: addr})})
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.client.Ping(context.Background()).Err())
	s.store = NewRedisStore(s.client)
}

func (s *RedisStoreSuite) TearDownSuite() {
	_ = s.client.Close()
}

func (s *RedisStoreSuite) TestLifecycle() {
	exerciseStore(s.T(), s.store, time.Now().Format("150405.000000")+"|")
}

func (s *RedisStoreSuite) TestCleanupIsDelegatedToExpiry() {
	removed, err := s.store.CleanupExpired(context.Background(), time.Now(), 10)
	s.Require().NoError(err)
	s.Equal(0, removed)
}
