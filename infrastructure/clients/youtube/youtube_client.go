package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const playlistPageSize = 50

// Client reads video metadata from the YouTube Data API.
type Client struct {
	service *youtube.Service
}

// Config represents YouTube API configuration
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	APIKey       string `json:"api_key"`
}

// NewYouTubeClient creates a new YouTube API client. An API key is used when
// no OAuth token pair is configured. Extra options are appended last.
func NewYouTubeClient(ctx context.Context, config *Config, extra ...option.ClientOption) (*Client, error) {
	var opts []option.ClientOption
	if (config.AccessToken == "" || config.RefreshToken == "") && config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	} else {
		oauth2Config := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		}
		token := &oauth2.Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(-1 * time.Minute), // Force refresh on first use
		}
		opts = append(opts, option.WithTokenSource(oauth2Config.TokenSource(ctx, token)))
	}
	opts = append(opts, extra...)

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &Client{service: service}, nil
}

var _ repository.IVideoProvider = (*Client)(nil)

// GetVideoDetails retrieves the snippet of a video. Private, deleted and
// unknown videos yield repository.ErrVideoNotFound.
func (c *Client) GetVideoDetails(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	response, err := c.service.Videos.List([]string{"snippet"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("video %s: %w", videoID, repository.ErrVideoNotFound)
		}
		return nil, fmt.Errorf("failed to get video details: %w", err)
	}
	if len(response.Items) == 0 || response.Items[0].Snippet == nil {
		return nil, fmt.Errorf("video %s: %w", videoID, repository.ErrVideoNotFound)
	}

	video := convertToYouTubeVideo(response.Items[0])
	return &video, nil
}

// ListChannelVideoIDs walks the channel's uploads playlist, newest first.
func (c *Client) ListChannelVideoIDs(ctx context.Context, channelID string, max int) ([]string, error) {
	channels, err := c.service.Channels.List([]string{"contentDetails"}).
		Id(channelID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	if len(channels.Items) == 0 || channels.Items[0].ContentDetails == nil ||
		channels.Items[0].ContentDetails.RelatedPlaylists == nil ||
		channels.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, fmt.Errorf("channel %s: %w", channelID, repository.ErrChannelNotFound)
	}
	uploads := channels.Items[0].ContentDetails.RelatedPlaylists.Uploads

	ids := make([]string, 0)
	pageToken := ""
	for {
		call := c.service.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(uploads).
			MaxResults(playlistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list uploads of %s: %w", channelID, err)
		}
		for _, item := range page.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			ids = append(ids, item.ContentDetails.VideoId)
			if max > 0 && len(ids) >= max {
				return ids, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.GetLogger().WithField("channelId", channelID).WithField("videos", len(ids)).Debug("Channel uploads listed")
	return ids, nil
}

func convertToYouTubeVideo(video *youtube.Video) model.YouTubeVideo {
	publishedAt, _ := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
	return model.YouTubeVideo{
		ID:          video.Id,
		Title:       video.Snippet.Title,
		Description: video.Snippet.Description,
		PublishedAt: publishedAt,
		ChannelID:   video.Snippet.ChannelId,
		ChannelName: video.Snippet.ChannelTitle,
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
