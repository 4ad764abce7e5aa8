package dto

import "linkhealth/domain/model"

// ScanVideoInput describes a video supplied inline. Links or Description skip the metadata lookup.
type ScanVideoInput struct {
	VideoID     string   `json:"videoId"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description *string  `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// ScanRequest is the body of POST /api/scan. At least one video source is required.
type ScanRequest struct {
	VideoURLs []string         `json:"videoUrls,omitempty"`
	VideoIDs  []string         `json:"videoIds,omitempty"`
	Videos    []ScanVideoInput `json:"videos,omitempty"`
	ChannelID string           `json:"channelId,omitempty"`
	MaxVideos int              `json:"maxVideos,omitempty"`
	Mode      model.ScanMode   `json:"mode,omitempty"`
}

type ScanResult struct {
	Session *model.ScanSession       `json:"session"`
	Reports []*model.VideoLinkReport `json:"reports"`
}

type ScanStartResponse struct {
	Mode      model.ScanMode `json:"mode"`
	SessionID string         `json:"sessionId"`
	JobID     string         `json:"jobId,omitempty"`
	Status    string         `json:"status"`
	Result    *ScanResult    `json:"result,omitempty"`
}

type ScanStatusQuery struct {
	JobID string `form:"jobId" url:"jobId"`
}

type ScanStatusResponse struct {
	JobID     string               `json:"jobId"`
	SessionID string               `json:"sessionId,omitempty"`
	Status    model.JobStatus      `json:"status"`
	Progress  int                  `json:"progress"`
	Result    *model.ScanJobResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type SessionListQuery struct {
	Limit int `form:"limit" url:"limit,omitempty"`
}
