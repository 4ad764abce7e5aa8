package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"
)

const (
	SessionsCollection = "scan_sessions"
	JobsCollection     = "scan_jobs"
	ReportsCollection  = "video_link_reports"
)

// ScanIndexes lists the fields scan queries filter on, per collection.
var ScanIndexes = map[string][]string{
	SessionsCollection: {"userId"},
	ReportsCollection:  {"sessionId", "userId"},
}

// ScanRepository stores scan records in any document store.
type ScanRepository struct {
	store repository.IDocumentStore
}

func NewScanRepository(store repository.IDocumentStore) repository.IScanRepository {
	return &ScanRepository{store: store}
}

func (r *ScanRepository) SaveSession(ctx context.Context, session *model.ScanSession) error {
	return r.store.Put(ctx, SessionsCollection, session.SessionID, session)
}

func (r *ScanRepository) GetSession(ctx context.Context, sessionID string) (*model.ScanSession, error) {
	var session model.ScanSession
	if err := r.store.Get(ctx, SessionsCollection, sessionID, &session); err != nil {
		return nil, wrapNotFound(err, "scan session %s", sessionID)
	}
	return &session, nil
}

// ListSessionsByUser returns the user's sessions, newest first.
func (r *ScanRepository) ListSessionsByUser(ctx context.Context, userID string) ([]*model.ScanSession, error) {
	sessions := make([]*model.ScanSession, 0)
	if err := r.store.Query(ctx, SessionsCollection, repository.Filter{"userId": userID}, &sessions); err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *ScanRepository) SaveJob(ctx context.Context, job *model.ScanJob) error {
	return r.store.Put(ctx, JobsCollection, job.JobID, job)
}

func (r *ScanRepository) GetJob(ctx context.Context, jobID string) (*model.ScanJob, error) {
	var job model.ScanJob
	if err := r.store.Get(ctx, JobsCollection, jobID, &job); err != nil {
		return nil, wrapNotFound(err, "scan job %s", jobID)
	}
	return &job, nil
}

// SaveReport overwrites the user's previous report for the same video.
func (r *ScanRepository) SaveReport(ctx context.Context, report *model.VideoLinkReport) error {
	return r.store.Put(ctx, ReportsCollection, reportID(report.UserID, report.VideoID), report)
}

// ListReportsBySession returns reports in the order their videos were checked.
func (r *ScanRepository) ListReportsBySession(ctx context.Context, sessionID string) ([]*model.VideoLinkReport, error) {
	reports := make([]*model.VideoLinkReport, 0)
	if err := r.store.Query(ctx, ReportsCollection, repository.Filter{"sessionId": sessionID}, &reports); err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CheckedAt.Before(reports[j].CheckedAt)
	})
	return reports, nil
}

func reportID(userID, videoID string) string {
	return userID + ":" + videoID
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf(format+": %w", append(args, repository.ErrNotFound)...)
	}
	return err
}
