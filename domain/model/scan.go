package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTerminalState is returned when a finalized session or job is mutated again.
var ErrTerminalState = errors.New("record already in a terminal state")

type ScanStatus string

const (
	ScanQueued     ScanStatus = "queued"
	ScanProcessing ScanStatus = "processing"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
)

func (s ScanStatus) IsTerminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

type ScanMode string

const (
	ScanModeSync  ScanMode = "sync"
	ScanModeAsync ScanMode = "async"
)

// ScanStatistics aggregates link verdicts. TotalLinks always equals the sum of the other three.
type ScanStatistics struct {
	TotalLinks   int `json:"totalLinks"   bson:"totalLinks"`
	WorkingLinks int `json:"workingLinks" bson:"workingLinks"`
	WarningLinks int `json:"warningLinks" bson:"warningLinks"`
	BrokenLinks  int `json:"brokenLinks"  bson:"brokenLinks"`
}

// Record folds one verdict into the statistics.
func (s *ScanStatistics) Record(status LinkStatus) {
	switch status {
	case LinkWorking:
		s.WorkingLinks++
	case LinkWarning:
		s.WarningLinks++
	case LinkBroken:
		s.BrokenLinks++
	default:
		return
	}
	s.TotalLinks++
}

// ScanCounters is a snapshot of the running counters kept by the batch scanner.
type ScanCounters struct {
	TotalVideos     int
	ProcessedVideos int
	VideosWithLinks int
	Statistics      ScanStatistics
}

// ScanSession is the externally observable lifecycle record of one scan.
type ScanSession struct {
	SessionID       string         `json:"sessionId"             bson:"sessionId"`
	UserID          string         `json:"userId"                bson:"userId"`
	JobID           string         `json:"jobId,omitempty"       bson:"jobId,omitempty"`
	Mode            ScanMode       `json:"mode"                  bson:"mode"`
	Status          ScanStatus     `json:"status"                bson:"status"`
	Progress        int            `json:"progress"              bson:"progress"`
	TotalVideos     int            `json:"totalVideos"           bson:"totalVideos"`
	ProcessedVideos int            `json:"processedVideos"       bson:"processedVideos"`
	VideosWithLinks int            `json:"videosWithLinks"       bson:"videosWithLinks"`
	Statistics      ScanStatistics `json:"statistics"            bson:"statistics"`
	VideoIDs        []string       `json:"videoIds"              bson:"videoIds"`
	Error           string         `json:"error,omitempty"       bson:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"             bson:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"             bson:"updatedAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// NewScanSession creates a session in the initial state of the given mode.
func NewScanSession(sessionID, userID string, mode ScanMode, videoIDs []string, now time.Time) *ScanSession {
	status := ScanProcessing
	if mode == ScanModeAsync {
		status = ScanQueued
	}
	return &ScanSession{
		SessionID:   sessionID,
		UserID:      userID,
		Mode:        mode,
		Status:      status,
		TotalVideos: len(videoIDs),
		VideoIDs:    videoIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start moves a queued session to processing.
func (s *ScanSession) Start(now time.Time) error {
	switch s.Status {
	case ScanProcessing:
		return nil
	case ScanQueued:
		s.Status = ScanProcessing
		s.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("start session %s: %w", s.SessionID, ErrTerminalState)
	}
}

// Advance applies a counter snapshot. Progress never decreases and stays
// below 100 until every video has been processed.
func (s *ScanSession) Advance(c ScanCounters, now time.Time) error {
	if s.Status.IsTerminal() {
		return fmt.Errorf("advance session %s: %w", s.SessionID, ErrTerminalState)
	}
	if c.TotalVideos > 0 {
		s.TotalVideos = c.TotalVideos
	}
	processed := c.ProcessedVideos
	if processed > s.TotalVideos {
		processed = s.TotalVideos
	}
	if processed > s.ProcessedVideos {
		s.ProcessedVideos = processed
	}
	s.VideosWithLinks = c.VideosWithLinks
	s.Statistics = c.Statistics
	if p := ProgressOf(s.ProcessedVideos, s.TotalVideos); p > s.Progress {
		s.Progress = p
	}
	s.UpdatedAt = now
	return nil
}

// Finalize writes the terminal status once.
func (s *ScanSession) Finalize(status ScanStatus, errMsg string, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize session %s with non-terminal status %q", s.SessionID, status)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("finalize session %s: %w", s.SessionID, ErrTerminalState)
	}
	s.Status = status
	s.Error = errMsg
	if status == ScanCompleted {
		s.ProcessedVideos = s.TotalVideos
		s.Progress = 100
	}
	s.UpdatedAt = now
	completed := now
	s.CompletedAt = &completed
	return nil
}

// ProgressOf computes round(processed/total*100), holding at 99 until processed reaches total.
func ProgressOf(processed, total int) int {
	if total <= 0 {
		return 0
	}
	if processed >= total {
		return 100
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p > 99 {
		p = 99
	}
	return p
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ScanJobResult is the payload attached to a completed job.
type ScanJobResult struct {
	SessionID       string         `json:"sessionId"       bson:"sessionId"`
	TotalVideos     int            `json:"totalVideos"     bson:"totalVideos"`
	ProcessedVideos int            `json:"processedVideos" bson:"processedVideos"`
	VideosWithLinks int            `json:"videosWithLinks" bson:"videosWithLinks"`
	Statistics      ScanStatistics `json:"statistics"      bson:"statistics"`
}

// ScanJob is the queue-facing record of an asynchronous scan.
type ScanJob struct {
	JobID       string         `json:"jobId"                 bson:"jobId"`
	UserID      string         `json:"userId"                bson:"userId"`
	SessionID   string         `json:"sessionId,omitempty"   bson:"sessionId,omitempty"`
	Status      JobStatus      `json:"status"                bson:"status"`
	Progress    int            `json:"progress"              bson:"progress"`
	Result      *ScanJobResult `json:"result,omitempty"      bson:"result,omitempty"`
	Error       string         `json:"error,omitempty"       bson:"error,omitempty"`
	Attempts    int            `json:"attempts"              bson:"attempts"`
	CreatedAt   time.Time      `json:"createdAt"             bson:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"             bson:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

func NewScanJob(jobID, userID string, now time.Time) *ScanJob {
	return &ScanJob{
		JobID:     jobID,
		UserID:    userID,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Activate marks the job as picked up by a worker. A redelivered active job stays active.
func (j *ScanJob) Activate(now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("activate job %s: %w", j.JobID, ErrTerminalState)
	}
	j.Status = JobActive
	j.Attempts++
	j.UpdatedAt = now
	return nil
}

// SetProgress raises the job progress; lower values are ignored.
func (j *ScanJob) SetProgress(progress int, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("progress job %s: %w", j.JobID, ErrTerminalState)
	}
	if progress > 100 {
		progress = 100
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = now
	return nil
}

func (j *ScanJob) Complete(result *ScanJobResult, now time.Time) error {
	if j.Status != JobActive {
		return fmt.Errorf("complete job %s from %q: %w", j.JobID, j.Status, ErrTerminalState)
	}
	j.Status = JobCompleted
	j.Progress = 100
	j.Result = result
	j.UpdatedAt = now
	completed := now
	j.CompletedAt = &completed
	return nil
}

func (j *ScanJob) Fail(errMsg string, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("fail job %s: %w", j.JobID, ErrTerminalState)
	}
	j.Status = JobFailed
	j.Error = errMsg
	j.UpdatedAt = now
	completed := now
	j.CompletedAt = &completed
	return nil
}

// ScanJobPayload is the body carried through the work queue.
type ScanJobPayload struct {
	UserID    string     `json:"userId"`
	Plan      string     `json:"plan,omitempty"`
	SessionID string     `json:"sessionId"`
	Videos    []VideoRef `json:"videos"`
}

// ScanEvent is pushed to live subscribers while a scan runs.
type ScanEvent struct {
	Type            string         `json:"type"`
	UserID          string         `json:"-"`
	SessionID       string         `json:"sessionId"`
	JobID           string         `json:"jobId,omitempty"`
	Status          ScanStatus     `json:"status"`
	Progress        int            `json:"progress"`
	ProcessedVideos int            `json:"processedVideos"`
	TotalVideos     int            `json:"totalVideos"`
	Statistics      ScanStatistics `json:"statistics"`
	Error           string         `json:"error,omitempty"`
}

func NewScanEvent(s *ScanSession) ScanEvent {
	kind := "scan_progress"
	if s.Status.IsTerminal() {
		kind = "scan_" + string(s.Status)
	}
	return ScanEvent{
		Type:            kind,
		UserID:          s.UserID,
		SessionID:       s.SessionID,
		JobID:           s.JobID,
		Status:          s.Status,
		Progress:        s.Progress,
		ProcessedVideos: s.ProcessedVideos,
		TotalVideos:     s.TotalVideos,
		Statistics:      s.Statistics,
		Error:           s.Error,
	}
}
