package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"github.com/redis/go-redis/v9"
)

const videoKeyPrefix = "linkhealth:video:"

// KV is the subset of the Redis client used by RedisVideoCache.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisVideoCache stores video metadata as JSON strings with a Redis TTL.
type RedisVideoCache struct {
	kv KV
}

func NewRedisVideoCache(kv KV) *RedisVideoCache {
	return &RedisVideoCache{kv: kv}
}

func (c *RedisVideoCache) GetVideo(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	raw, err := c.kv.Get(ctx, videoKeyPrefix+videoID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get video %s: %w", videoID, err)
	}
	var v model.YouTubeVideo
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached video %s: %w", videoID, err)
	}
	return &v, nil
}

func (c *RedisVideoCache) SetVideo(ctx context.Context, video *model.YouTubeVideo, ttl time.Duration) error {
	raw, err := json.Marshal(video)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, videoKeyPrefix+video.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set video %s: %w", video.ID, err)
	}
	return nil
}

// CachedVideoProvider serves video details from the cache and fills it on a miss.
// Cache failures are logged and fall through to the provider.
type CachedVideoProvider struct {
	inner repository.IVideoProvider
	cache repository.IVideoCache
	ttl   time.Duration
}

func NewCachedVideoProvider(inner repository.IVideoProvider, cache repository.IVideoCache, ttl time.Duration) *CachedVideoProvider {
	return &CachedVideoProvider{inner: inner, cache: cache, ttl: ttl}
}

func (p *CachedVideoProvider) GetVideoDetails(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	cached, err := p.cache.GetVideo(ctx, videoID)
	if err != nil {
		logger.GetLogger().WithField("videoId", videoID).WithField("error", err).Warn("Video cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	video, err := p.inner.GetVideoDetails(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video != nil && p.ttl > 0 {
		if err := p.cache.SetVideo(ctx, video, p.ttl); err != nil {
			logger.GetLogger().WithField("videoId", videoID).WithField("error", err).Warn("Video cache write failed")
		}
	}
	return video, nil
}

func (p *CachedVideoProvider) ListChannelVideoIDs(ctx context.Context, channelID string, max int) ([]string, error) {
	return p.inner.ListChannelVideoIDs(ctx, channelID, max)
}
