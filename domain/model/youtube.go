package model

import "time"

// YouTubeVideo is the metadata the scanner needs from the video provider.
type YouTubeVideo struct {
	ID          string    `json:"id"          bson:"id"`
	Title       string    `json:"title"       bson:"title"`
	Description string    `json:"description" bson:"description"`
	PublishedAt time.Time `json:"publishedAt" bson:"publishedAt"`
	ChannelID   string    `json:"channelId"   bson:"channelId"`
	ChannelName string    `json:"channelName" bson:"channelName"`
}

// VideoRef is one unit of scan work. Links and Description, when present,
// bypass the metadata provider.
type VideoRef struct {
	VideoID     string   `json:"videoId"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description *string  `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// WatchURL returns the canonical watch URL of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
