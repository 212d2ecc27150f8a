package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, perSecond, burst int) (Limiter, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(Options{MaxRatePerSecond: perSecond, MaxBurst: burst, CacheTTL: time.Hour, Now: clock.Now})
	t.Cleanup(func() { require.NoError(t, limiter.Close()) })
	return limiter, clock
}

func TestAllow_BurstThenDeny(t *testing.T) {
	limiter, _ := newLimiter(t, 2, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("user_alice"), "request %d", i)
	}
	assert.False(t, limiter.Allow("user_alice"))
	assert.Equal(t, 0, limiter.Remaining("user_alice"))
}

func TestAllow_RefillsAtConfiguredRate(t *testing.T) {
	limiter, clock := newLimiter(t, 2, 2)

	require.True(t, limiter.Allow("user_alice"))
	require.True(t, limiter.Allow("user_alice"))
	require.False(t, limiter.Allow("user_alice"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, limiter.Allow("user_alice"))
	assert.False(t, limiter.Allow("user_alice"))

	clock.Advance(10 * time.Second)
	assert.Equal(t, 2, limiter.Remaining("user_alice"), "refill caps at burst")
}

func TestAllow_PartialIntervalsAccumulate(t *testing.T) {
	limiter, clock := newLimiter(t, 2, 1)

	require.True(t, limiter.Allow("user_alice"))

	clock.Advance(250 * time.Millisecond)
	assert.False(t, limiter.Allow("user_alice"))
	clock.Advance(250 * time.Millisecond)
	assert.True(t, limiter.Allow("user_alice"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter, _ := newLimiter(t, 1, 1)

	assert.True(t, limiter.Allow("user_alice"))
	assert.False(t, limiter.Allow("user_alice"))
	assert.True(t, limiter.Allow("user_bob"))
}

func TestGetSourceKey(t *testing.T) {
	limiter, _ := newLimiter(t, 1, 1)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1:5555", limiter.GetSourceKey(r))

	r.Header.Set(defaultSourceKey, "client-7")
	assert.Equal(t, "client-7", limiter.GetSourceKey(r))
}

func TestInMemory_Expiration(t *testing.T) {
	cache := NewInMemory()
	defer cache.Close()

	require.NoError(t, cache.SetWithExpiration("a", 4, time.Millisecond))
	require.NoError(t, cache.Set("b", 5))

	assert.Eventually(t, func() bool {
		_, err := cache.Get("a")
		return err == ErrCacheMiss
	}, time.Second, 2*time.Millisecond)

	v, err := cache.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	cache.removeExpired(time.Now())
	cache.mu.RLock()
	assert.Len(t, cache.entries, 1)
	cache.mu.RUnlock()
}
