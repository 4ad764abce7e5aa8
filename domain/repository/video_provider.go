package repository

import (
	"context"
	"errors"

	"linkhealth/domain/model"
)

var (
	// ErrVideoNotFound is returned by providers when a video does not exist or is private.
	ErrVideoNotFound = errors.New("video not found")
	// ErrChannelNotFound is returned when a channel id resolves to nothing.
	ErrChannelNotFound = errors.New("channel not found")
)

// IVideoProvider supplies video metadata to the scanner.
type IVideoProvider interface {
	GetVideoDetails(ctx context.Context, videoID string) (*model.YouTubeVideo, error)
	// ListChannelVideoIDs returns up to max upload ids of a channel, newest first. max <= 0 means all.
	ListChannelVideoIDs(ctx context.Context, channelID string, max int) ([]string, error)
}
