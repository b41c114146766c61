package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/model"
)

// fakeSampler counts upstream calls and returns canned results.
type fakeSampler struct {
	status *model.Status
	err    error
	calls  int
}

func (f *fakeSampler) Status(ctx context.Context) (*model.Status, error) {
	f.calls++
	return f.status, f.err
}

func TestCacheServesWithinTTL(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{Temperature: model.Float(68)}}
	c := NewCache(sampler, 30*time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	first, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sampler.calls)

	now = now.Add(29 * time.Second)
	second, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sampler.calls, "a fresh cache entry must not hit upstream")
	assert.Same(t, first, second)
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{Temperature: model.Float(68)}}
	c := NewCache(sampler, 30*time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Status(context.Background())
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sampler.calls)
}

func TestCacheCachesFailuresToo(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("device offline")}
	c := NewCache(sampler, 30*time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Status(context.Background())
	require.Error(t, err)

	now = now.Add(5 * time.Second)
	_, err = c.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sampler.calls, "a broken upstream is hit at most once per TTL")
}

func TestPollRefreshesCache(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{Temperature: model.Float(68)}}
	c := NewCache(sampler, 30*time.Second)

	p := New(sampler, newFakeRecorder(), time.Hour, zap.NewNop())
	p.FeedCache(c)
	p.poll(context.Background())
	require.Equal(t, 1, sampler.calls)

	// A read right after a successful poll is served from the cache.
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sampler.calls, "a poll must refresh the cache, not leave it to expire")
	require.NotNil(t, st.Temperature)
	assert.Equal(t, 68.0, *st.Temperature)
}

func TestPollClearsCachedFailure(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("device offline")}
	c := NewCache(sampler, 30*time.Second)

	_, err := c.Status(context.Background())
	require.Error(t, err)

	sampler.err = nil
	sampler.status = &model.Status{Temperature: model.Float(68)}

	p := New(sampler, newFakeRecorder(), time.Hour, zap.NewNop())
	p.FeedCache(c)
	p.poll(context.Background())

	st, err := c.Status(context.Background())
	require.NoError(t, err, "a successful poll must displace a cached failure")
	assert.Equal(t, 68.0, *st.Temperature)
}

func TestCacheInvalidateForcesFetch(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{}}
	c := NewCache(sampler, 30*time.Second)

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sampler.calls)
}
