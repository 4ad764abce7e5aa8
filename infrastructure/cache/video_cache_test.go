package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"linkhealth/domain/model"
	"linkhealth/infrastructure/cache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failGet {
		return redis.NewStringResult("", errors.New("redis down"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type MockVideoProvider struct {
	mock.Mock
}

func (m *MockVideoProvider) GetVideoDetails(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	args := m.Called(ctx, videoID)
	v, _ := args.Get(0).(*model.YouTubeVideo)
	return v, args.Error(1)
}

func (m *MockVideoProvider) ListChannelVideoIDs(ctx context.Context, channelID string, max int) ([]string, error) {
	args := m.Called(ctx, channelID, max)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func TestRedisVideoCache(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := cache.NewRedisVideoCache(kv)

	miss, err := c.GetVideo(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.SetVideo(ctx, &model.YouTubeVideo{ID: "abc", Title: "Hello"}, time.Minute))
	assert.Equal(t, time.Minute, kv.ttls["linkhealth:video:abc"])

	hit, err := c.GetVideo(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Hello", hit.Title)

	kv.failGet = true
	_, err = c.GetVideo(ctx, "abc")
	assert.Error(t, err)
}

func TestCachedVideoProvider_CacheAside(t *testing.T) {
	ctx := context.Background()
	inner := new(MockVideoProvider)
	inner.On("GetVideoDetails", ctx, "abc").Return(&model.YouTubeVideo{ID: "abc", Description: "see https://x.test"}, nil).Once()

	p := cache.NewCachedVideoProvider(inner, cache.NewRedisVideoCache(newFakeKV()), time.Minute)

	first, err := p.GetVideoDetails(ctx, "abc")
	require.NoError(t, err)
	second, err := p.GetVideoDetails(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	inner.AssertExpectations(t)
}

func TestCachedVideoProvider_CacheFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.failGet = true
	inner := new(MockVideoProvider)
	inner.On("GetVideoDetails", ctx, "abc").Return(&model.YouTubeVideo{ID: "abc"}, nil).Twice()
	inner.On("ListChannelVideoIDs", ctx, "UC1", 5).Return([]string{"a", "b"}, nil)

	p := cache.NewCachedVideoProvider(inner, cache.NewRedisVideoCache(kv), time.Minute)
	for i := 0; i < 2; i++ {
		v, err := p.GetVideoDetails(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", v.ID)
	}

	ids, err := p.ListChannelVideoIDs(ctx, "UC1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	inner.AssertExpectations(t)
}

func TestCachedVideoProvider_ProviderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	inner := new(MockVideoProvider)
	inner.On("GetVideoDetails", ctx, "gone").Return(nil, errors.New("video not found"))

	p := cache.NewCachedVideoProvider(inner, cache.NewRedisVideoCache(kv), time.Minute)
	_, err := p.GetVideoDetails(ctx, "gone")
	assert.Error(t, err)
	assert.Empty(t, kv.data)
}
