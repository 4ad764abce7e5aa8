package filecsv

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"linkhealth/domain/model"
	"linkhealth/infrastructure/logger"
)

var linkReportHeader = []string{"video_id", "video_title", "video_url", "link_url", "status", "status_code", "error_note", "checked_at"}

// WriteLinkReports writes one CSV row per probed link.
func WriteLinkReports(w io.Writer, reports []*model.VideoLinkReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(linkReportHeader); err != nil {
		return err
	}
	for _, r := range reports {
		checkedAt := ""
		if !r.CheckedAt.IsZero() {
			checkedAt = r.CheckedAt.UTC().Format(time.RFC3339)
		}
		for _, l := range r.Links {
			row := []string{
				r.VideoID,
				r.VideoTitle,
				r.VideoURL,
				l.URL,
				string(l.Status),
				strconv.Itoa(l.StatusCode),
				l.ErrorNote,
				checkedAt,
			}
			if err := cw.Write(row); err != nil {
				logger.GetLogger().WithField("error", err).Error("Error while writing csv row")
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
