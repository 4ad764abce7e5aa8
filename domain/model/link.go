package model

import "time"

// LinkStatus is the tri-state health verdict of a probed URL.
type LinkStatus string

const (
	LinkWorking LinkStatus = "working"
	LinkWarning LinkStatus = "warning"
	LinkBroken  LinkStatus = "broken"
)

// Link is the immutable result of probing one URL.
type Link struct {
	URL        string     `json:"url"                 bson:"url"`
	Status     LinkStatus `json:"status"              bson:"status"`
	StatusCode int        `json:"statusCode"          bson:"statusCode"`
	ErrorNote  string     `json:"errorNote,omitempty" bson:"errorNote,omitempty"`
}

// VideoLinkReport holds the probed links of one video. Re-scans replace it wholesale.
type VideoLinkReport struct {
	VideoID    string    `json:"videoId"    bson:"videoId"`
	SessionID  string    `json:"sessionId"  bson:"sessionId"`
	UserID     string    `json:"userId"     bson:"userId"`
	VideoTitle string    `json:"videoTitle" bson:"videoTitle"`
	VideoURL   string    `json:"videoUrl"   bson:"videoUrl"`
	Links      []Link    `json:"links"      bson:"links"`
	CheckedAt  time.Time `json:"checkedAt"  bson:"checkedAt"`
}

// Count returns how many links of the report carry the given status.
func (r *VideoLinkReport) Count(status LinkStatus) int {
	n := 0
	for _, l := range r.Links {
		if l.Status == status {
			n++
		}
	}
	return n
}
