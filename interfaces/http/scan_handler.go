package http

import (
	"bytes"
	"net/http"
	"strings"

	"linkhealth/domain/apperror"
	"linkhealth/domain/dto"
	"linkhealth/domain/model"
	"linkhealth/infrastructure/logger"
	"linkhealth/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type IScanHandler interface {
	StartScan(ctx *gin.Context)
	GetScanStatus(ctx *gin.Context)
	ListSessions(ctx *gin.Context)
	GetSession(ctx *gin.Context)
	ExportSession(ctx *gin.Context)
}

type ScanHandler struct {
	scanUsecase usecase.IScanUsecase
}

func NewScanHandler(uc usecase.IScanUsecase) IScanHandler {
	return &ScanHandler{scanUsecase: uc}
}

func (h *ScanHandler) StartScan(ctx *gin.Context) {
	userID := ctx.GetString("user_id")
	if userID == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized: missing user_id"})
		return
	}
	var req dto.ScanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	res, err := h.scanUsecase.StartScan(ctx.Request.Context(), userID, ctx.GetString("plan"), &req)
	if err != nil {
		h.writeError(ctx, err, logrus.Fields{"user_id": userID})
		return
	}

	body := gin.H{
		"success":   true,
		"mode":      res.Mode,
		"sessionId": res.SessionID,
		"status":    res.Status,
	}
	if res.JobID != "" {
		body["jobId"] = res.JobID
	}
	if res.Result != nil {
		body["result"] = res.Result
	}
	ctx.JSON(http.StatusOK, body)
}

func (h *ScanHandler) GetScanStatus(ctx *gin.Context) {
	var q dto.ScanStatusQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid query"})
		return
	}
	status, err := h.scanUsecase.GetJobStatus(ctx.Request.Context(), ctx.GetString("user_id"), q.JobID)
	if err != nil {
		h.writeError(ctx, err, logrus.Fields{"job_id": q.JobID})
		return
	}

	body := gin.H{
		"success":  true,
		"jobId":    status.JobID,
		"status":   status.Status,
		"progress": status.Progress,
	}
	if status.SessionID != "" {
		body["sessionId"] = status.SessionID
	}
	if status.Result != nil {
		body["result"] = status.Result
	}
	if status.Error != "" {
		body["error"] = status.Error
	}
	ctx.JSON(http.StatusOK, body)
}

func (h *ScanHandler) ListSessions(ctx *gin.Context) {
	var q dto.SessionListQuery
	if err := ctx.ShouldBindQuery(&q); err != nil || q.Limit < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a non-negative integer"})
		return
	}
	sessions, err := h.scanUsecase.ListSessions(ctx.Request.Context(), ctx.GetString("user_id"), q.Limit)
	if err != nil {
		h.writeError(ctx, err, nil)
		return
	}
	if sessions == nil {
		sessions = []*model.ScanSession{}
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "sessions": sessions})
}

func (h *ScanHandler) GetSession(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	result, err := h.scanUsecase.GetSession(ctx.Request.Context(), ctx.GetString("user_id"), sessionID)
	if err != nil {
		h.writeError(ctx, err, logrus.Fields{"session_id": sessionID})
		return
	}
	if result.Reports == nil {
		result.Reports = []*model.VideoLinkReport{}
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "session": result.Session, "reports": result.Reports})
}

// ExportSession buffers the CSV so a failure can still be answered with JSON.
func (h *ScanHandler) ExportSession(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	var buf bytes.Buffer
	if err := h.scanUsecase.ExportSessionCSV(ctx.Request.Context(), ctx.GetString("user_id"), sessionID, &buf); err != nil {
		h.writeError(ctx, err, logrus.Fields{"session_id": sessionID})
		return
	}
	ctx.Header("Content-Disposition", `attachment; filename="scan-`+sanitizeFilename(sessionID)+`.csv"`)
	ctx.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *ScanHandler) writeError(ctx *gin.Context, err error, fields logrus.Fields) {
	status := statusForError(err)
	entry := logger.GetLogger().WithFields(fields).WithField("error", err.Error())
	if status >= http.StatusInternalServerError {
		entry.Error("scan request failed")
	} else {
		entry.Warn("scan request rejected")
	}
	ctx.JSON(status, gin.H{"success": false, "error": apperror.Message(err)})
}

func statusForError(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindInput:
		return http.StatusBadRequest
	case apperror.KindPlanLimit:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
