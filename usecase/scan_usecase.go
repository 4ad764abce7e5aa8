package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"linkhealth/domain/apperror"
	"linkhealth/domain/dto"
	"linkhealth/domain/model"
	"linkhealth/domain/repository"
	"linkhealth/infrastructure/filecsv"
	"linkhealth/infrastructure/logger"
	"linkhealth/infrastructure/metrics"
	"linkhealth/infrastructure/utils"
	"linkhealth/usecase/linkcheck"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobEnqueuer publishes the first attempt of an asynchronous scan job.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload []byte) error
}

// ScanConfig holds the tracker policy. Zero values fall back to safe defaults.
type ScanConfig struct {
	// SyncVideoLimit caps synchronous batches; 0 disables the cap.
	SyncVideoLimit int
	// PlanLimit returns the max videos per scan for a plan; 0 means unlimited.
	PlanLimit func(plan string) int
	// DefaultMode is used when a request names no mode. Empty picks async when a queue is wired.
	DefaultMode model.ScanMode
	// Concurrency bounds parallel probes per video in async scans.
	Concurrency int
	// InterVideoPause is waited between videos in async scans.
	InterVideoPause time.Duration
	// MaxAttempts is the delivery budget of a job; the last attempt fails the job instead of asking for redelivery.
	MaxAttempts int
	Now         func() time.Time
}

type IScanUsecase interface {
	StartScan(ctx context.Context, userID, plan string, req *dto.ScanRequest) (*dto.ScanStartResponse, error)
	GetJobStatus(ctx context.Context, userID, jobID string) (*dto.ScanStatusResponse, error)
	GetSession(ctx context.Context, userID, sessionID string) (*dto.ScanResult, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*model.ScanSession, error)
	ExportSessionCSV(ctx context.Context, userID, sessionID string, w io.Writer) error
	ProcessJob(ctx context.Context, msg repository.JobMessage) error
	WithBroadcaster(fn func(model.ScanEvent)) IScanUsecase
}

type scanUsecase struct {
	repo      repository.IScanRepository
	scanner   *linkcheck.Scanner
	videos    repository.IVideoProvider
	queue     JobEnqueuer
	cfg       ScanConfig
	broadcast func(model.ScanEvent)
}

// NewScanUsecase wires the tracker. videos and queue may be nil: without a
// provider only inline links and descriptions can be scanned, without a queue
// only synchronous scans are accepted.
func NewScanUsecase(repo repository.IScanRepository, scanner *linkcheck.Scanner, videos repository.IVideoProvider, queue JobEnqueuer, cfg ScanConfig) IScanUsecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &scanUsecase{repo: repo, scanner: scanner, videos: videos, queue: queue, cfg: cfg}
}

func (u *scanUsecase) WithBroadcaster(fn func(model.ScanEvent)) IScanUsecase {
	u.broadcast = fn
	return u
}

func (u *scanUsecase) StartScan(ctx context.Context, userID, plan string, req *dto.ScanRequest) (*dto.ScanStartResponse, error) {
	if userID == "" {
		return nil, apperror.New(apperror.KindInput, "user id required")
	}
	if req == nil {
		return nil, apperror.New(apperror.KindInput, "request body required")
	}
	mode, err := u.resolveMode(req.Mode)
	if err != nil {
		return nil, err
	}

	limit := u.planLimit(plan)
	refs, err := u.resolveVideos(ctx, req, limit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(refs) > limit {
		return nil, apperror.New(apperror.KindPlanLimit, "plan %q allows %d videos per scan, requested %d", planName(plan), limit, len(refs))
	}

	if mode == model.ScanModeSync {
		return u.runSync(ctx, userID, refs)
	}
	return u.enqueueAsync(ctx, userID, plan, refs)
}

func (u *scanUsecase) runSync(ctx context.Context, userID string, refs []model.VideoRef) (*dto.ScanStartResponse, error) {
	if u.cfg.SyncVideoLimit > 0 && len(refs) > u.cfg.SyncVideoLimit {
		return nil, apperror.New(apperror.KindInput, "synchronous scans are limited to %d videos, use mode \"async\" for %d videos", u.cfg.SyncVideoLimit, len(refs))
	}

	session := model.NewScanSession(uuid.NewString(), userID, model.ScanModeSync, videoIDs(refs), u.cfg.Now())
	if err := u.repo.SaveSession(ctx, session); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not create scan session")
	}

	// a running scan is never cancelled by the caller going away
	runCtx := context.WithoutCancel(ctx)
	if err := u.runGuarded(runCtx, session, refs, linkcheck.ScanOptions{Concurrency: 1}, nil); err != nil {
		u.failSession(runCtx, session, apperror.Message(err))
		return nil, apperror.Wrap(apperror.KindInternal, err, "scan %s failed", session.SessionID)
	}

	reports, err := u.repo.ListReportsBySession(runCtx, session.SessionID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not load scan reports")
	}
	return &dto.ScanStartResponse{
		Mode:      model.ScanModeSync,
		SessionID: session.SessionID,
		Status:    string(session.Status),
		Result:    &dto.ScanResult{Session: session, Reports: reports},
	}, nil
}

func (u *scanUsecase) enqueueAsync(ctx context.Context, userID, plan string, refs []model.VideoRef) (*dto.ScanStartResponse, error) {
	now := u.cfg.Now()
	job := model.NewScanJob(uuid.NewString(), userID, now)
	session := model.NewScanSession(uuid.NewString(), userID, model.ScanModeAsync, videoIDs(refs), now)
	session.JobID = job.JobID
	job.SessionID = session.SessionID

	payload, err := json.Marshal(model.ScanJobPayload{UserID: userID, Plan: plan, SessionID: session.SessionID, Videos: refs})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not encode scan job")
	}
	if err := u.repo.SaveSession(ctx, session); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not create scan session")
	}
	if err := u.repo.SaveJob(ctx, job); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not create scan job")
	}

	if err := u.queue.Enqueue(ctx, job.JobID, payload); err != nil {
		logger.GetLogger().WithField("jobId", job.JobID).WithField("error", err).Error("Failed to enqueue scan job")
		msg := "could not enqueue scan job"
		if ferr := job.Fail(msg, u.cfg.Now()); ferr == nil {
			_ = u.repo.SaveJob(context.WithoutCancel(ctx), job)
		}
		u.failSession(context.WithoutCancel(ctx), session, msg)
		return nil, apperror.Wrap(apperror.KindInternal, err, msg)
	}

	logger.GetLogger().WithFields(logrus.Fields{
		"jobId":     job.JobID,
		"sessionId": session.SessionID,
		"videos":    len(refs),
	}).Info("Scan job queued")
	return &dto.ScanStartResponse{
		Mode:      model.ScanModeAsync,
		SessionID: session.SessionID,
		JobID:     job.JobID,
		Status:    string(job.Status),
	}, nil
}

// ProcessJob runs one delivery of an async scan. Returning an error asks the
// queue for redelivery; that only happens for transient storage failures
// while attempts remain.
func (u *scanUsecase) ProcessJob(ctx context.Context, msg repository.JobMessage) error {
	log := logger.GetLogger().WithFields(logrus.Fields{"jobId": msg.JobID, "attempt": msg.Attempt})

	job, err := u.repo.GetJob(ctx, msg.JobID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("Dropping delivery for unknown job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}
	if job.Status.IsTerminal() {
		log.WithField("status", job.Status).Info("Job already finished, skipping delivery")
		return nil
	}

	var payload model.ScanJobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || len(payload.Videos) == 0 {
		log.WithField("error", err).Error("Invalid scan job payload")
		return u.failJob(ctx, job, nil, "invalid scan job payload")
	}

	if err := job.Activate(u.cfg.Now()); err != nil {
		return nil
	}
	if err := u.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("activate job %s: %w", job.JobID, err)
	}

	session, err := u.sessionForJob(ctx, job, &payload)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		if session.Status == model.ScanCompleted {
			return u.completeJob(ctx, job, session)
		}
		return u.failJob(ctx, job, nil, session.Error)
	}

	opts := linkcheck.ScanOptions{Concurrency: u.cfg.Concurrency, PauseBetweenVideos: u.cfg.InterVideoPause}
	runErr := u.runGuarded(ctx, session, payload.Videos, opts, func(s *model.ScanSession) {
		if err := job.SetProgress(s.Progress, u.cfg.Now()); err != nil {
			return
		}
		if err := u.repo.SaveJob(ctx, job); err != nil {
			log.WithField("error", err).Warn("Failed to save job progress")
		}
	})
	if runErr == nil {
		return u.completeJob(ctx, job, session)
	}

	if apperror.IsKind(runErr, apperror.KindJobExecution) || msg.Attempt >= u.cfg.MaxAttempts {
		log.WithField("error", runErr).Error("Scan job failed")
		return u.failJob(context.WithoutCancel(ctx), job, session, apperror.Message(runErr))
	}
	log.WithField("error", runErr).Warn("Scan job attempt failed, requesting redelivery")
	return runErr
}

// sessionForJob returns the session the job should run in. A session left
// processing by a crashed attempt is failed and replaced.
func (u *scanUsecase) sessionForJob(ctx context.Context, job *model.ScanJob, payload *model.ScanJobPayload) (*model.ScanSession, error) {
	sessionID := job.SessionID
	if sessionID == "" {
		sessionID = payload.SessionID
	}
	session, err := u.repo.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	case session.Status == model.ScanProcessing:
		logger.GetLogger().WithField("sessionId", session.SessionID).Warn("Superseding session left by an earlier attempt")
		u.failSession(ctx, session, "superseded by a retry of the job")
	default:
		return session, nil
	}

	if err == nil {
		sessionID = uuid.NewString()
	}
	fresh := model.NewScanSession(sessionID, job.UserID, model.ScanModeAsync, videoIDs(payload.Videos), u.cfg.Now())
	fresh.JobID = job.JobID
	if err := u.repo.SaveSession(ctx, fresh); err != nil {
		return nil, fmt.Errorf("create session for job %s: %w", job.JobID, err)
	}
	job.SessionID = fresh.SessionID
	return fresh, nil
}

// runGuarded converts a panic anywhere in the run into a JobExecutionError.
func (u *scanUsecase) runGuarded(ctx context.Context, session *model.ScanSession, refs []model.VideoRef, opts linkcheck.ScanOptions, onProgress func(*model.ScanSession)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.New(apperror.KindJobExecution, "scan crashed: %v", r)
		}
	}()
	return u.runSession(ctx, session, refs, opts, onProgress)
}

// runSession drives the scanner for both modes and persists every step.
func (u *scanUsecase) runSession(ctx context.Context, session *model.ScanSession, refs []model.VideoRef, opts linkcheck.ScanOptions, onProgress func(*model.ScanSession)) error {
	started := time.Now()
	if err := session.Start(u.cfg.Now()); err != nil {
		return err
	}
	if err := u.repo.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session %s: %w", session.SessionID, err)
	}
	u.publish(session)

	_, err := u.scanner.Scan(ctx, refs, opts, func(r linkcheck.VideoResult) error {
		if r.Report != nil {
			r.Report.SessionID = session.SessionID
			r.Report.UserID = session.UserID
			r.Report.CheckedAt = u.cfg.Now()
			if err := u.repo.SaveReport(ctx, r.Report); err != nil {
				return fmt.Errorf("save report for video %s: %w", r.Ref.VideoID, err)
			}
		}
		if err := session.Advance(r.Counters, u.cfg.Now()); err != nil {
			return err
		}
		if err := u.repo.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session %s: %w", session.SessionID, err)
		}
		if onProgress != nil {
			onProgress(session)
		}
		u.publish(session)
		return nil
	})
	if err != nil {
		return err
	}

	if err := session.Finalize(model.ScanCompleted, "", u.cfg.Now()); err != nil {
		return err
	}
	if err := u.repo.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session %s: %w", session.SessionID, err)
	}
	metrics.ScanDuration.WithLabelValues(string(session.Mode)).Observe(time.Since(started).Seconds())
	u.publish(session)

	logger.GetLogger().WithFields(logrus.Fields{
		"sessionId":       session.SessionID,
		"mode":            session.Mode,
		"processedVideos": session.ProcessedVideos,
		"totalLinks":      session.Statistics.TotalLinks,
		"brokenLinks":     session.Statistics.BrokenLinks,
	}).Info("Scan completed")
	return nil
}

func (u *scanUsecase) completeJob(ctx context.Context, job *model.ScanJob, session *model.ScanSession) error {
	result := &model.ScanJobResult{
		SessionID:       session.SessionID,
		TotalVideos:     session.TotalVideos,
		ProcessedVideos: session.ProcessedVideos,
		VideosWithLinks: session.VideosWithLinks,
		Statistics:      session.Statistics,
	}
	if err := job.Complete(result, u.cfg.Now()); err != nil {
		return nil
	}
	if err := u.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("complete job %s: %w", job.JobID, err)
	}
	metrics.ScanJobs.WithLabelValues(string(model.JobCompleted)).Inc()
	return nil
}

func (u *scanUsecase) failJob(ctx context.Context, job *model.ScanJob, session *model.ScanSession, msg string) error {
	if session != nil {
		u.failSession(ctx, session, msg)
	}
	if err := job.Fail(msg, u.cfg.Now()); err != nil {
		return nil
	}
	if err := u.repo.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("fail job %s: %w", job.JobID, err)
	}
	metrics.ScanJobs.WithLabelValues(string(model.JobFailed)).Inc()
	return nil
}

func (u *scanUsecase) failSession(ctx context.Context, session *model.ScanSession, msg string) {
	if err := session.Finalize(model.ScanFailed, msg, u.cfg.Now()); err != nil {
		return
	}
	if err := u.repo.SaveSession(ctx, session); err != nil {
		logger.GetLogger().WithField("sessionId", session.SessionID).WithField("error", err).Error("Failed to save failed session")
	}
	u.publish(session)
}

func (u *scanUsecase) publish(session *model.ScanSession) {
	if u.broadcast != nil {
		u.broadcast(model.NewScanEvent(session))
	}
}

// GetJobStatus is a pure read; jobs of other users are reported as not found.
func (u *scanUsecase) GetJobStatus(ctx context.Context, userID, jobID string) (*dto.ScanStatusResponse, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, apperror.New(apperror.KindInput, "jobId is required")
	}
	job, err := u.repo.GetJob(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && job.UserID != userID) {
		return nil, apperror.New(apperror.KindNotFound, "job %s not found", jobID)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not load job")
	}
	return &dto.ScanStatusResponse{
		JobID:     job.JobID,
		SessionID: job.SessionID,
		Status:    job.Status,
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.Error,
	}, nil
}

func (u *scanUsecase) GetSession(ctx context.Context, userID, sessionID string) (*dto.ScanResult, error) {
	session, err := u.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	reports, err := u.repo.ListReportsBySession(ctx, sessionID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not load scan reports")
	}
	return &dto.ScanResult{Session: session, Reports: reports}, nil
}

// ListSessions returns the user's sessions, newest first. limit <= 0 returns all.
func (u *scanUsecase) ListSessions(ctx context.Context, userID string, limit int) ([]*model.ScanSession, error) {
	sessions, err := u.repo.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not list scan sessions")
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (u *scanUsecase) ExportSessionCSV(ctx context.Context, userID, sessionID string, w io.Writer) error {
	if _, err := u.ownedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	reports, err := u.repo.ListReportsBySession(ctx, sessionID)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "could not load scan reports")
	}
	return filecsv.WriteLinkReports(w, reports)
}

func (u *scanUsecase) ownedSession(ctx context.Context, userID, sessionID string) (*model.ScanSession, error) {
	session, err := u.repo.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && session.UserID != userID) {
		return nil, apperror.New(apperror.KindNotFound, "scan session %s not found", sessionID)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "could not load scan session")
	}
	return session, nil
}

func (u *scanUsecase) resolveMode(requested model.ScanMode) (model.ScanMode, error) {
	mode := model.ScanMode(strings.ToLower(string(requested)))
	if mode == "" {
		mode = u.cfg.DefaultMode
	}
	if mode == "" {
		mode = model.ScanModeSync
		if u.queue != nil {
			mode = model.ScanModeAsync
		}
	}
	switch mode {
	case model.ScanModeSync:
		return mode, nil
	case model.ScanModeAsync:
		if u.queue == nil {
			return "", apperror.New(apperror.KindInput, "asynchronous scans are not available, use mode \"sync\"")
		}
		return mode, nil
	default:
		return "", apperror.New(apperror.KindInput, "unknown scan mode %q", requested)
	}
}

// resolveVideos merges every video source of the request, keeping the first
// occurrence of each video id. Channel sweeps are capped at maxVideos, or at
// the plan limit when the request names none.
func (u *scanUsecase) resolveVideos(ctx context.Context, req *dto.ScanRequest, planLimit int) ([]model.VideoRef, error) {
	refs := make([]model.VideoRef, 0, len(req.Videos)+len(req.VideoIDs)+len(req.VideoURLs))
	seen := make(map[string]struct{})
	add := func(ref model.VideoRef) {
		if _, dup := seen[ref.VideoID]; dup {
			return
		}
		seen[ref.VideoID] = struct{}{}
		refs = append(refs, ref)
	}

	for i, v := range req.Videos {
		raw := v.VideoID
		if raw == "" {
			raw = v.URL
		}
		id, ok := utils.ParseYouTubeVideoID(raw)
		if !ok {
			if raw == "" || (len(v.Links) == 0 && v.Description == nil) {
				return nil, apperror.New(apperror.KindInput, "videos[%d]: invalid video id or url %q", i, raw)
			}
			id = raw
		}
		add(model.VideoRef{VideoID: id, Title: v.Title, URL: v.URL, Description: v.Description, Links: v.Links})
	}
	for _, raw := range req.VideoIDs {
		id, ok := utils.ParseYouTubeVideoID(raw)
		if !ok {
			return nil, apperror.New(apperror.KindInput, "invalid video id %q", raw)
		}
		add(model.VideoRef{VideoID: id})
	}
	for _, raw := range req.VideoURLs {
		id, ok := utils.ParseYouTubeVideoID(raw)
		if !ok {
			return nil, apperror.New(apperror.KindInput, "invalid video url %q", raw)
		}
		add(model.VideoRef{VideoID: id, URL: strings.TrimSpace(raw)})
	}

	if channelID := strings.TrimSpace(req.ChannelID); channelID != "" {
		if u.videos == nil {
			return nil, apperror.New(apperror.KindInput, "channel scans are not available without a video provider")
		}
		if req.MaxVideos < 0 {
			return nil, apperror.New(apperror.KindInput, "maxVideos must not be negative")
		}
		max := req.MaxVideos
		if max == 0 {
			max = planLimit
		}
		ids, err := u.videos.ListChannelVideoIDs(ctx, channelID, max)
		if errors.Is(err, repository.ErrChannelNotFound) {
			return nil, apperror.Wrap(apperror.KindNotFound, err, "channel %s not found", channelID)
		}
		if err != nil {
			return nil, apperror.Wrap(apperror.KindUpstreamMetadata, err, "could not list videos of channel %s", channelID)
		}
		for _, id := range ids {
			add(model.VideoRef{VideoID: id})
		}
	}

	if len(refs) == 0 {
		return nil, apperror.New(apperror.KindInput, "no videos to scan: provide videos, videoIds, videoUrls or channelId")
	}
	return refs, nil
}

func (u *scanUsecase) planLimit(plan string) int {
	if u.cfg.PlanLimit == nil {
		return 0
	}
	return u.cfg.PlanLimit(plan)
}

func planName(plan string) string {
	if plan == "" {
		return "default"
	}
	return plan
}

func videoIDs(refs []model.VideoRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.VideoID
	}
	return ids
}
