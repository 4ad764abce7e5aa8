package repository

import (
	"context"
	"time"

	"linkhealth/domain/model"
)

// IVideoCache stores video metadata with a TTL. A miss returns (nil, nil).
type IVideoCache interface {
	GetVideo(ctx context.Context, videoID string) (*model.YouTubeVideo, error)
	SetVideo(ctx context.Context, video *model.YouTubeVideo, ttl time.Duration) error
}
