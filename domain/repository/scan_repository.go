package repository

import (
	"context"

	"linkhealth/domain/model"
)

type IScanRepository interface {
	SaveSession(ctx context.Context, session *model.ScanSession) error
	GetSession(ctx context.Context, sessionID string) (*model.ScanSession, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*model.ScanSession, error)
	SaveJob(ctx context.Context, job *model.ScanJob) error
	GetJob(ctx context.Context, jobID string) (*model.ScanJob, error)
	SaveReport(ctx context.Context, report *model.VideoLinkReport) error
	ListReportsBySession(ctx context.Context, sessionID string) ([]*model.VideoLinkReport, error)
}
